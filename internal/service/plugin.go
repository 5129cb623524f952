package service

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/domain/invoice"
)

// InvoiceContext is handed to invoice plugins around a generation attempt.
type InvoiceContext struct {
	AccountID  string
	TargetDate time.Time
	DryRun     bool
	Invoice    *invoice.Invoice
}

// PriorCallResult lets a plugin abort or reschedule an invoicing attempt
// before any item is generated.
type PriorCallResult struct {
	Abort          bool
	RescheduleDate *time.Time
}

// InvoicePlugin is the collaborator interface called synchronously inside the
// locked invoicing section. Any error abandons the whole attempt; nothing is
// committed and the triggering notification is retried as a unit.
type InvoicePlugin interface {
	// PriorCall runs before generation; it may abort or reschedule
	PriorCall(ctx context.Context, ic *InvoiceContext) (*PriorCallResult, error)
	// GetAdditionalItems may add items (tax, external charges) to the
	// proposed invoice
	GetAdditionalItems(ctx context.Context, inv *invoice.Invoice, isDryRun bool) ([]*invoice.InvoiceItem, error)
	// OnSuccess runs after the invoice is committed
	OnSuccess(ctx context.Context, ic *InvoiceContext) error
	// OnFailure runs when the attempt is abandoned
	OnFailure(ctx context.Context, ic *InvoiceContext) error
}
