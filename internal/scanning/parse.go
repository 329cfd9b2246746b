package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const defaultDescription = "Reimbursement"

// parseReceiptJSON parses a model response into ReceiptData
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripFences(text)

	// Models sometimes wrap the object in prose
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Description = strings.TrimSpace(data.Description)
	if data.Description == "" {
		data.Description = defaultDescription
	}
	if data.Amount < 0 || math.IsNaN(data.Amount) {
		data.Amount = 0
	}

	return &data, nil
}

// stripFences removes markdown code fences around a model response
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
