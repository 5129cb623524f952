package credit

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// Entry is one credit-balance ledger entry for an account. Entries are
// created by repairs (and operator credits) and drawn down FIFO by later
// charges. The sum of remaining amounts is the account's credit balance and
// is never negative.
type Entry struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `json:"amount"`
	Remaining       decimal.Decimal `json:"remaining"`
	EffectiveDate   time.Time       `json:"effective_date"`
	SourceInvoiceID string          `json:"source_invoice_id,omitempty"`
	SourceItemID    string          `json:"source_item_id,omitempty"`
	types.BaseModel
}

func (e *Entry) Validate() error {
	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return ierr.NewError("credit amount must be positive").
			WithReportableDetails(map[string]any{
				"amount": e.Amount,
			}).
			Mark(ierr.ErrValidation)
	}
	if e.Remaining.IsNegative() || e.Remaining.GreaterThan(e.Amount) {
		return ierr.NewError("remaining credit out of range").
			WithReportableDetails(map[string]any{
				"amount":    e.Amount,
				"remaining": e.Remaining,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Consumption records a draw-down against a single ledger entry.
type Consumption struct {
	EntryID string
	Amount  decimal.Decimal
}

// ConsumeFIFO draws the requested amount from the given entries, oldest
// credit-creation date first, and returns the per-entry consumptions along
// with the amount actually covered. Entries are mutated in place.
func ConsumeFIFO(entries []*Entry, requested decimal.Decimal) ([]Consumption, decimal.Decimal) {
	consumed := decimal.Zero
	var consumptions []Consumption

	for _, e := range entries {
		if consumed.GreaterThanOrEqual(requested) {
			break
		}
		if e.Remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(e.Remaining, requested.Sub(consumed))
		e.Remaining = e.Remaining.Sub(take)
		consumed = consumed.Add(take)
		consumptions = append(consumptions, Consumption{EntryID: e.ID, Amount: take})
	}

	return consumptions, consumed
}
