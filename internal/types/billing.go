package types

import (
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/samber/lo"
)

// BillingPeriod is the recurrence of a plan's recurring charge
type BillingPeriod string

const (
	BILLING_PERIOD_DAILY   BillingPeriod = "DAILY"
	BILLING_PERIOD_WEEKLY  BillingPeriod = "WEEKLY"
	BILLING_PERIOD_MONTHLY BillingPeriod = "MONTHLY"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "ANNUAL"
	// BILLING_PERIOD_NONE is used by one-time fixed phases that carry no
	// recurring charge, e.g. zero-priced trials
	BILLING_PERIOD_NONE BillingPeriod = "NO_BILLING_PERIOD"
)

func (b BillingPeriod) String() string {
	return string(b)
}

func (b BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BILLING_PERIOD_DAILY,
		BILLING_PERIOD_WEEKLY,
		BILLING_PERIOD_MONTHLY,
		BILLING_PERIOD_ANNUAL,
		BILLING_PERIOD_NONE,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing period").
			WithHint("Invalid billing period").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": b,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BillingAlignment is the policy that picks the date a change (and its catalog
// version lookup) aligns to
type BillingAlignment string

const (
	// AlignmentStartOfBundle aligns to the bundle's original creation date
	AlignmentStartOfBundle BillingAlignment = "START_OF_BUNDLE"
	// AlignmentStartOfSubscription aligns to the subscription's own creation date
	AlignmentStartOfSubscription BillingAlignment = "START_OF_SUBSCRIPTION"
	// AlignmentChangeOfPlan aligns to the change's own effective date
	AlignmentChangeOfPlan BillingAlignment = "CHANGE_OF_PLAN"
	// AlignmentAccount aligns to the account-level billing anchor
	AlignmentAccount BillingAlignment = "ACCOUNT"
)

func (a BillingAlignment) String() string {
	return string(a)
}

func (a BillingAlignment) Validate() error {
	allowed := []BillingAlignment{
		AlignmentStartOfBundle,
		AlignmentStartOfSubscription,
		AlignmentChangeOfPlan,
		AlignmentAccount,
	}
	if !lo.Contains(allowed, a) {
		return ierr.NewError("invalid billing alignment").
			WithHint("Invalid billing alignment").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": a,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PhaseType is the type of a plan phase
type PhaseType string

const (
	PhaseTypeTrial     PhaseType = "TRIAL"
	PhaseTypeDiscount  PhaseType = "DISCOUNT"
	PhaseTypeEvergreen PhaseType = "EVERGREEN"
)

func (p PhaseType) String() string {
	return string(p)
}

// ProductCategory distinguishes the base subscription of a bundle from add-ons
type ProductCategory string

const (
	ProductCategoryBase  ProductCategory = "BASE"
	ProductCategoryAddOn ProductCategory = "ADD_ON"
)

// ProrationMode selects the denominator used when billing partial periods
type ProrationMode string

const (
	// ProrationModeCalendarDays prorates against the actual day count of the
	// calendar period the segment falls into
	ProrationModeCalendarDays ProrationMode = "calendar_days"
	// ProrationModeFixedDays prorates against a fixed day count (e.g. 30),
	// producing identical prorated amounts regardless of the month
	ProrationModeFixedDays ProrationMode = "fixed_days"
)

func (m ProrationMode) Validate() error {
	allowed := []ProrationMode{ProrationModeCalendarDays, ProrationModeFixedDays}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid proration mode").
			WithHint("Invalid proration mode").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BillingEventType is the type of an event on a subscription timeline
type BillingEventType string

const (
	BillingEventCreate    BillingEventType = "CREATE"
	BillingEventPhase     BillingEventType = "PHASE"
	BillingEventChange    BillingEventType = "CHANGE"
	BillingEventCancel    BillingEventType = "CANCEL"
	BillingEventUncancel  BillingEventType = "UNCANCEL"
	BillingEventPause     BillingEventType = "PAUSE"
	BillingEventResume    BillingEventType = "RESUME"
	BillingEventBCDChange BillingEventType = "BCD_CHANGE"
)

func (t BillingEventType) String() string {
	return string(t)
}

func (t BillingEventType) Validate() error {
	allowed := []BillingEventType{
		BillingEventCreate,
		BillingEventPhase,
		BillingEventChange,
		BillingEventCancel,
		BillingEventUncancel,
		BillingEventPause,
		BillingEventResume,
		BillingEventBCDChange,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid billing event type").
			WithHint("Invalid billing event type").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AccountState is the auto-invoicing state of an account.
// Parked accounts have auto-invoicing suspended pending operator remediation.
type AccountState string

const (
	AccountStateActive AccountState = "ACTIVE"
	AccountStateParked AccountState = "PARKED"
)

func (s AccountState) String() string {
	return string(s)
}
