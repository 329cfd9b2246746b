// Package board lays out reimbursement requests as status columns.
package board

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/clubhouse/internal/club"
	"github.com/zombor/clubhouse/internal/identity"
)

// Board is the rendered reimbursement board
type Board struct {
	Loaded  bool
	Columns []Column
}

// Column is one status bucket
type Column struct {
	Status            club.Status
	Title             string
	Total             string // empty when the bucket has no requests
	Cards             []Card
	ShowRequestButton bool
}

// Card is a single request along with whether the viewer may edit it
type Card struct {
	Request club.Request
	Mine    bool
}

// Heading returns the column title with its dollar total, if any
func (c Column) Heading() string {
	if c.Total == "" {
		return c.Title
	}
	return c.Title + ": $" + c.Total
}

// Build lays out requests in fixed status order. A nil requests value means
// nothing has loaded yet.
func Build(requests *club.AllRequests, treasurer bool, viewer identity.Viewer) Board {
	b := Board{Loaded: requests != nil}
	for _, status := range club.Statuses() {
		bucket := requests.Bucket(status)
		col := Column{
			Status:            status,
			Title:             status.Label(),
			Cards:             make([]Card, 0, len(bucket)),
			ShowRequestButton: status == club.StatusPendingReview && requests != nil,
		}
		if len(bucket) > 0 {
			col.Total = Sum(bucket).StringFixed(2)
		}
		for _, r := range bucket {
			col.Cards = append(col.Cards, Card{
				Request: r,
				Mine:    !treasurer || viewer.Owns(r.UserID),
			})
		}
		b.Columns = append(b.Columns, col)
	}
	return b
}

// Sum totals request amounts, truncated to cents
func Sum(requests []club.Request) decimal.Decimal {
	total := decimal.Zero
	for _, r := range requests {
		total = total.Add(decimal.NewFromFloat(r.Amount))
	}
	return Truncate2(total)
}

// Truncate2 drops everything past the second decimal place
func Truncate2(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}
