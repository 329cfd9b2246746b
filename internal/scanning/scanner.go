// Package scanning suggests reimbursement form values from a photo of a receipt.
package scanning

import "context"

// ReceiptData contains the values read off a receipt
type ReceiptData struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"` // dollars
	IsFood      bool    `json:"isFood"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image or PDF and suggests form values
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// receiptScanPrompt is shared by every model provider
const receiptScanPrompt = `You are reading a receipt that a club member wants reimbursed. Carefully read all text in the image and extract:

1. **Description**: the merchant name followed by a short summary of what was bought, e.g. "Costco - snacks for general meeting".
2. **Total Amount**: the final total actually paid, as a number of dollars (e.g. 42.75 for $42.75).
3. **Food**: true if the purchase is mostly food or drink, otherwise false.

Return ONLY valid JSON in this exact format:
{
  "description": "Store Name - what was bought",
  "amount": 0.00,
  "isFood": false
}

Important:
- The amount must be a number, not a string
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
