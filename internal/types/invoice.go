package types

import (
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/samber/lo"
)

// InvoiceItemType is the closed set of invoice item variants. Generators and
// the repair engine switch exhaustively over these.
type InvoiceItemType string

const (
	// InvoiceItemFixed is a one-time or zero-amount open-ended charge,
	// e.g. a trial marker item
	InvoiceItemFixed InvoiceItemType = "FIXED"
	// InvoiceItemRecurring is a (possibly prorated) recurring charge for a
	// billing segment
	InvoiceItemRecurring InvoiceItemType = "RECURRING"
	// InvoiceItemUsage is a usage-based charge for a billing segment
	InvoiceItemUsage InvoiceItemType = "USAGE"
	// InvoiceItemRepairAdj nets out the unconsumed portion of a previously
	// billed segment invalidated by a retroactive change
	InvoiceItemRepairAdj InvoiceItemType = "REPAIR_ADJ"
	// InvoiceItemCBAAdj moves amounts in and out of the account credit balance
	InvoiceItemCBAAdj InvoiceItemType = "CBA_ADJ"
	// InvoiceItemCreditAdj is an operator-issued account credit
	InvoiceItemCreditAdj InvoiceItemType = "CREDIT_ADJ"
	// InvoiceItemItemAdj is an operator adjustment against a specific item
	InvoiceItemItemAdj InvoiceItemType = "ITEM_ADJ"
	// InvoiceItemExternalCharge is a charge injected by an invoice plugin
	InvoiceItemExternalCharge InvoiceItemType = "EXTERNAL_CHARGE"
	// InvoiceItemTax is a tax amount injected by an invoice plugin
	InvoiceItemTax InvoiceItemType = "TAX"
)

func (t InvoiceItemType) String() string {
	return string(t)
}

func (t InvoiceItemType) Validate() error {
	allowed := []InvoiceItemType{
		InvoiceItemFixed,
		InvoiceItemRecurring,
		InvoiceItemUsage,
		InvoiceItemRepairAdj,
		InvoiceItemCBAAdj,
		InvoiceItemCreditAdj,
		InvoiceItemItemAdj,
		InvoiceItemExternalCharge,
		InvoiceItemTax,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid invoice item type").
			WithHint("Invalid invoice item type").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsAdjustment reports whether the item type adjusts another item or the
// account credit balance rather than billing a segment
func (t InvoiceItemType) IsAdjustment() bool {
	switch t {
	case InvoiceItemRepairAdj, InvoiceItemCBAAdj, InvoiceItemCreditAdj, InvoiceItemItemAdj:
		return true
	default:
		return false
	}
}

// InvoiceStatus is the lifecycle status of an invoice
type InvoiceStatus string

const (
	// InvoiceStatusDraft invoices may be amended in place under the
	// reuse-draft policy
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusCommitted invoices are immutable; corrections happen via
	// adjustment items on new invoices
	InvoiceStatusCommitted InvoiceStatus = "COMMITTED"
	// InvoiceStatusVoid invoices have had their effect removed
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusCommitted,
		InvoiceStatusVoid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invalid invoice status").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DryRunType selects how the dry-run target date is determined
type DryRunType string

const (
	// DryRunUpcomingInvoice targets the earliest pending wake-up date
	DryRunUpcomingInvoice DryRunType = "UPCOMING_INVOICE"
	// DryRunTargetDate targets an explicit, possibly mid-period date
	DryRunTargetDate DryRunType = "TARGET_DATE"
	// DryRunSubscriptionAction applies a hypothetical subscription action
	// before invoicing
	DryRunSubscriptionAction DryRunType = "SUBSCRIPTION_ACTION"
)

func (t DryRunType) Validate() error {
	allowed := []DryRunType{
		DryRunUpcomingInvoice,
		DryRunTargetDate,
		DryRunSubscriptionAction,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid dry run type").
			WithHint("Invalid dry run type").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// LifecycleEventType is the type of an event published on the lifecycle bus
// after a successful state transition
type LifecycleEventType string

const (
	LifecycleEventCreate         LifecycleEventType = "CREATE"
	LifecycleEventPhase          LifecycleEventType = "PHASE"
	LifecycleEventChange         LifecycleEventType = "CHANGE"
	LifecycleEventCancel         LifecycleEventType = "CANCEL"
	LifecycleEventUncancel       LifecycleEventType = "UNCANCEL"
	LifecycleEventBlock          LifecycleEventType = "BLOCK"
	LifecycleEventPause          LifecycleEventType = "PAUSE"
	LifecycleEventResume         LifecycleEventType = "RESUME"
	LifecycleEventTag            LifecycleEventType = "TAG"
	LifecycleEventInvoice        LifecycleEventType = "INVOICE"
	LifecycleEventInvoicePayment LifecycleEventType = "INVOICE_PAYMENT"
	LifecycleEventPayment        LifecycleEventType = "PAYMENT"
	LifecycleEventNullInvoice    LifecycleEventType = "NULL_INVOICE"
)
