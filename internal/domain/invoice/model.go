package invoice

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice is an immutable-once-committed container of items for one account
// and target date. Draft invoices may be amended in place under the
// reuse-draft policy; committed invoices are corrected only via adjustment
// items on new invoices or an explicit void.
type Invoice struct {
	ID             string              `json:"id"`
	AccountID      string              `json:"account_id"`
	InvoiceNumber  *string             `json:"invoice_number,omitempty"`
	IdempotencyKey *string             `json:"idempotency_key,omitempty"`
	Status         types.InvoiceStatus `json:"status"`
	Currency       string              `json:"currency"`
	InvoiceDate    time.Time           `json:"invoice_date"`
	TargetDate     time.Time           `json:"target_date"`
	Items          []*InvoiceItem      `json:"items"`
	CommittedAt    *time.Time          `json:"committed_at,omitempty"`
	VoidedAt       *time.Time          `json:"voided_at,omitempty"`
	types.BaseModel
}

// InvoiceItem is one line of an invoice. The type is a closed variant set;
// adjustments carry a linked item ID pointing at the item being repaired or
// adjusted.
type InvoiceItem struct {
	ID             string                `json:"id"`
	InvoiceID      string                `json:"invoice_id"`
	AccountID      string                `json:"account_id"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	Type           types.InvoiceItemType `json:"type"`
	StartDate      time.Time             `json:"start_date"`
	// EndDate is nil for open-ended FIXED items
	EndDate      *time.Time      `json:"end_date,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	LinkedItemID *string         `json:"linked_item_id,omitempty"`
	PlanName     string          `json:"plan_name,omitempty"`
	PhaseName    string          `json:"phase_name,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Total returns the sum of all item amounts.
func (i *Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range i.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// IsCommitted reports whether the invoice is immutable.
func (i *Invoice) IsCommitted() bool {
	return i.Status == types.InvoiceStatusCommitted
}

func (i *Invoice) Validate() error {
	if i.AccountID == "" {
		return ierr.NewError("account is required").
			WithHint("Invoice account ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := i.Status.Validate(); err != nil {
		return err
	}
	for _, item := range i.Items {
		if item.Currency != i.Currency {
			return ierr.NewError("item currency must match invoice currency").
				WithReportableDetails(map[string]any{
					"invoice_currency": i.Currency,
					"item_currency":    item.Currency,
					"item_id":          item.ID,
				}).
				Mark(ierr.ErrValidation)
		}
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (item *InvoiceItem) Validate() error {
	if err := item.Type.Validate(); err != nil {
		return err
	}
	if item.EndDate != nil && item.EndDate.Before(item.StartDate) {
		return ierr.NewError("item end date before start date").
			WithReportableDetails(map[string]any{
				"item_id":    item.ID,
				"start_date": item.StartDate,
				"end_date":   item.EndDate,
			}).
			Mark(ierr.ErrValidation)
	}
	switch item.Type {
	case types.InvoiceItemRepairAdj:
		if item.Amount.GreaterThan(decimal.Zero) {
			return ierr.NewError("repair adjustment must be non-positive").
				WithReportableDetails(map[string]any{
					"item_id": item.ID,
					"amount":  item.Amount,
				}).
				Mark(ierr.ErrValidation)
		}
		if item.LinkedItemID == nil {
			return ierr.NewError("repair adjustment requires linked item").
				WithReportableDetails(map[string]any{
					"item_id": item.ID,
				}).
				Mark(ierr.ErrValidation)
		}
	case types.InvoiceItemItemAdj:
		if item.LinkedItemID == nil {
			return ierr.NewError("item adjustment requires linked item").
				WithReportableDetails(map[string]any{
					"item_id": item.ID,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// Overlaps reports whether the item's [start, end) range overlaps the given
// range. Open-ended items never overlap billable ranges.
func (item *InvoiceItem) Overlaps(start, end time.Time) bool {
	if item.EndDate == nil {
		return false
	}
	return item.StartDate.Before(end) && start.Before(*item.EndDate)
}
