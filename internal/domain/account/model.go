package account

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
)

// Account owns bundles and the credit balance. The UTC offset is pinned at
// account creation so DST transitions never shift historical billing cycle
// days.
type Account struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Currency         string             `json:"currency"`
	CatalogID        string             `json:"catalog_id"`
	BCD              int                `json:"bcd"`
	UTCOffsetMinutes int                `json:"utc_offset_minutes"`
	State            types.AccountState `json:"state"`
	ParkedReason     string             `json:"parked_reason,omitempty"`
	ParkedAt         *time.Time         `json:"parked_at,omitempty"`
	types.BaseModel
}

// Location returns the account's fixed UTC-offset location.
func (a *Account) Location() *time.Location {
	return types.FixedOffsetLocation(a.UTCOffsetMinutes)
}

// IsParked reports whether auto-invoicing is suspended for the account.
func (a *Account) IsParked() bool {
	return a.State == types.AccountStateParked
}

// Park suspends auto-invoicing after a detected consistency violation.
// Further invoicing requires operator remediation and an explicit Unpark.
func (a *Account) Park(reason string, at time.Time) {
	a.State = types.AccountStateParked
	a.ParkedReason = reason
	a.ParkedAt = &at
}

// Unpark reactivates auto-invoicing. Callers must re-validate consistency
// before invoking this.
func (a *Account) Unpark() error {
	if a.State != types.AccountStateParked {
		return ierr.NewError("account is not parked").
			WithReportableDetails(map[string]any{
				"account_id": a.ID,
				"state":      a.State,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	a.State = types.AccountStateActive
	a.ParkedReason = ""
	a.ParkedAt = nil
	return nil
}

func (a *Account) Validate() error {
	if a.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Account currency is required").
			Mark(ierr.ErrValidation)
	}
	if a.BCD < 0 || a.BCD > 31 {
		return ierr.NewError("invalid billing cycle day").
			WithHint("Billing cycle day must be between 0 and 31").
			WithReportableDetails(map[string]any{
				"bcd": a.BCD,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
