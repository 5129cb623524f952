package subscription

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
)

// SubscriptionState is the lifecycle state of a subscription
type SubscriptionState string

const (
	SubscriptionStateActive    SubscriptionState = "active"
	SubscriptionStatePaused    SubscriptionState = "paused"
	SubscriptionStateCancelled SubscriptionState = "cancelled"
)

// Bundle groups a base subscription with its add-ons. The bundle's original
// creation date is the reference for START_OF_BUNDLE alignment.
type Bundle struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	ExternalKey string    `json:"external_key"`
	CreatedDate time.Time `json:"created_date"`
	types.BaseModel
}

// Subscription has an immutable identity and a mutable lifecycle. The billing
// start date may differ from the entitlement start date for migrated or
// pending subscriptions.
type Subscription struct {
	ID                   string                `json:"id"`
	BundleID             string                `json:"bundle_id"`
	AccountID            string                `json:"account_id"`
	Category             types.ProductCategory `json:"category"`
	PlanName             string                `json:"plan_name"`
	ProductName          string                `json:"product_name"`
	PriceList            string                `json:"price_list"`
	State                SubscriptionState     `json:"state"`
	CreationDate         time.Time             `json:"creation_date"`
	EntitlementStartDate time.Time             `json:"entitlement_start_date"`
	BillingStartDate     time.Time             `json:"billing_start_date"`
	// CancelDate stays mutable until it becomes effective
	CancelDate *time.Time `json:"cancel_date,omitempty"`
	// ChargedThroughDate is the date up to which the subscription has
	// already been invoiced
	ChargedThroughDate *time.Time `json:"charged_through_date,omitempty"`
	types.BaseModel
}

// IsActiveAt reports whether the subscription bills at the given instant.
func (s *Subscription) IsActiveAt(at time.Time) bool {
	if at.Before(s.BillingStartDate) {
		return false
	}
	if s.CancelDate != nil && !at.Before(*s.CancelDate) {
		return false
	}
	return true
}

func (s *Subscription) Validate() error {
	if s.BundleID == "" || s.AccountID == "" {
		return ierr.NewError("subscription requires bundle and account").
			WithHint("Bundle ID and Account ID are required").
			Mark(ierr.ErrValidation)
	}
	if s.BillingStartDate.IsZero() {
		return ierr.NewError("billing start date is required").
			WithHint("Billing start date is required").
			Mark(ierr.ErrValidation)
	}
	if s.CancelDate != nil && s.CancelDate.Before(s.EntitlementStartDate) {
		return ierr.NewError("cancel date before subscription start").
			WithHintf("requested date %s is before the subscription start %s",
				s.CancelDate.Format(time.DateOnly), s.EntitlementStartDate.Format(time.DateOnly)).
			WithReportableDetails(map[string]any{
				"subscription_id": s.ID,
				"cancel_date":     s.CancelDate,
				"start_date":      s.EntitlementStartDate,
			}).
			Mark(ierr.ErrInvalidRequested)
	}
	return nil
}
