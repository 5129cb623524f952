package subscription

import (
	"time"

	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// BillingEvent is one entry of a subscription timeline. It snapshots the
// plan/phase pricing and the governing catalog version at annotation time so
// that invoicing reproduces historical amounts bit-exactly. Once the event's
// effective date has passed "now" the catalog version is never re-resolved.
type BillingEvent struct {
	ID             string                 `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	Type           types.BillingEventType `json:"type"`
	EffectiveDate  time.Time              `json:"effective_date"`
	// Sequence is the insertion order, used as a deterministic tie-break
	// when effective dates coincide
	Sequence int64 `json:"sequence"`

	// Plan/phase snapshot
	PlanName          string              `json:"plan_name"`
	PhaseName         string              `json:"phase_name"`
	PhaseType         types.PhaseType     `json:"phase_type"`
	BillingPeriod     types.BillingPeriod `json:"billing_period"`
	BillingPeriodUnit int                 `json:"billing_period_unit"`
	FixedPrice        decimal.Decimal     `json:"fixed_price"`
	RecurringPrice    decimal.Decimal     `json:"recurring_price"`
	Currency          string              `json:"currency"`

	// Governing catalog and anchor annotations
	CatalogVersionID string                 `json:"catalog_version_id"`
	Alignment        types.BillingAlignment `json:"alignment"`
	AnchorDate       time.Time              `json:"anchor_date"`
	BCD              int                    `json:"bcd"`
}

// Clone returns a deep copy of the event.
func (e *BillingEvent) Clone() *BillingEvent {
	clone := *e
	return &clone
}

// StartsBilling reports whether the event opens a billable interval.
func (e *BillingEvent) StartsBilling() bool {
	switch e.Type {
	case types.BillingEventCreate, types.BillingEventPhase, types.BillingEventChange,
		types.BillingEventResume, types.BillingEventBCDChange:
		return true
	default:
		return false
	}
}

// StopsBilling reports whether the event closes the current billable interval
// without opening a new one.
func (e *BillingEvent) StopsBilling() bool {
	return e.Type == types.BillingEventCancel || e.Type == types.BillingEventPause
}
