package subscription

import (
	"testing"
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/stretchr/testify/assert"
)

func testAccount(bcd int) *account.Account {
	return &account.Account{
		ID:       "acct_1",
		Currency: "USD",
		BCD:      bcd,
	}
}

func testSub(billingStart time.Time) *Subscription {
	return &Subscription{
		ID:               "subs_1",
		BundleID:         "bndl_1",
		AccountID:        "acct_1",
		BillingStartDate: billingStart,
	}
}

func TestResolveAnchorOnCreate(t *testing.T) {
	r := NewAlignmentResolver()
	sub := testSub(d(2016, 5, 15))

	t.Run("BCD from billing start day", func(t *testing.T) {
		got := r.ResolveAnchor(testAccount(0), sub, nil, nil,
			ev("e1", types.BillingEventCreate, d(2016, 5, 15)))
		assert.True(t, got.Date.Equal(d(2016, 5, 15)))
		assert.Equal(t, 15, got.BCD)
	})

	t.Run("explicit account BCD wins", func(t *testing.T) {
		got := r.ResolveAnchor(testAccount(1), sub, nil, nil,
			ev("e1", types.BillingEventCreate, d(2016, 5, 15)))
		assert.Equal(t, 1, got.BCD)
	})

	t.Run("day of month in the account offset", func(t *testing.T) {
		acct := testAccount(0)
		acct.UTCOffsetMinutes = 8 * 60
		lateStart := time.Date(2016, 5, 15, 23, 0, 0, 0, time.UTC)
		got := r.ResolveAnchor(acct, testSub(lateStart), nil, nil,
			ev("e1", types.BillingEventCreate, lateStart))
		// 23:00 UTC on the 15th is already the 16th at UTC+8
		assert.Equal(t, 16, got.BCD)
	})
}

func TestResolveAnchorOnPhaseTransition(t *testing.T) {
	r := NewAlignmentResolver()
	acct := testAccount(0)
	sub := testSub(d(2016, 5, 15))

	create := ev("e1", types.BillingEventCreate, d(2016, 5, 15))
	create.PhaseType = types.PhaseTypeTrial
	createAnchor := r.ResolveAnchor(acct, sub, nil, nil, create)

	t.Run("evergreen phase moves the anchor", func(t *testing.T) {
		phase := ev("e2", types.BillingEventPhase, d(2016, 6, 14))
		phase.PhaseType = types.PhaseTypeEvergreen
		phase.BillingPeriod = types.BILLING_PERIOD_MONTHLY

		got := r.ResolveAnchor(acct, sub, create, &createAnchor, phase)
		assert.True(t, got.Date.Equal(d(2016, 6, 14)))
		assert.Equal(t, 14, got.BCD)
	})

	t.Run("fixed lead-in phase keeps the prior anchor", func(t *testing.T) {
		discount := ev("e2", types.BillingEventPhase, d(2016, 6, 14))
		discount.PhaseType = types.PhaseTypeDiscount

		got := r.ResolveAnchor(acct, sub, create, &createAnchor, discount)
		assert.True(t, got.Date.Equal(createAnchor.Date))
		assert.Equal(t, createAnchor.BCD, got.BCD)
	})
}

func TestResolveAnchorOnChange(t *testing.T) {
	r := NewAlignmentResolver()
	acct := testAccount(0)
	sub := testSub(d(2016, 5, 1))

	prior := ev("e1", types.BillingEventCreate, d(2016, 5, 1))
	prior.PhaseType = types.PhaseTypeEvergreen
	prior.BillingPeriod = types.BILLING_PERIOD_MONTHLY
	priorAnchor := r.ResolveAnchor(acct, sub, nil, nil, prior)

	t.Run("same billing period keeps the running anchor", func(t *testing.T) {
		change := ev("e2", types.BillingEventChange, d(2016, 5, 20))
		change.PhaseType = types.PhaseTypeEvergreen
		change.BillingPeriod = types.BILLING_PERIOD_MONTHLY

		got := r.ResolveAnchor(acct, sub, prior, &priorAnchor, change)
		assert.True(t, got.Date.Equal(d(2016, 5, 1)))
		assert.Equal(t, 1, got.BCD)
	})

	t.Run("billing period change moves the anchor", func(t *testing.T) {
		change := ev("e2", types.BillingEventChange, d(2016, 5, 20))
		change.PhaseType = types.PhaseTypeEvergreen
		change.BillingPeriod = types.BILLING_PERIOD_ANNUAL

		got := r.ResolveAnchor(acct, sub, prior, &priorAnchor, change)
		assert.True(t, got.Date.Equal(d(2016, 5, 20)))
		assert.Equal(t, 20, got.BCD)
	})
}

func TestResolveAnchorLifecycleEventsKeepAnchor(t *testing.T) {
	r := NewAlignmentResolver()
	acct := testAccount(0)
	sub := testSub(d(2016, 5, 1))

	prior := ev("e1", types.BillingEventCreate, d(2016, 5, 1))
	priorAnchor := r.ResolveAnchor(acct, sub, nil, nil, prior)

	for _, evType := range []types.BillingEventType{
		types.BillingEventPause,
		types.BillingEventResume,
		types.BillingEventCancel,
		types.BillingEventUncancel,
	} {
		got := r.ResolveAnchor(acct, sub, prior, &priorAnchor,
			ev("e2", evType, d(2016, 7, 10)))
		assert.Equal(t, priorAnchor, got, "%s must not move the anchor", evType)
	}
}

func TestResolveAnchorOnBCDChange(t *testing.T) {
	r := NewAlignmentResolver()
	acct := testAccount(0)
	sub := testSub(d(2016, 5, 1))

	prior := ev("e1", types.BillingEventCreate, d(2016, 5, 1))
	priorAnchor := r.ResolveAnchor(acct, sub, nil, nil, prior)

	bcdChange := ev("e2", types.BillingEventBCDChange, d(2016, 7, 10))
	bcdChange.BCD = 31

	got := r.ResolveAnchor(acct, sub, prior, &priorAnchor, bcdChange)
	assert.True(t, got.Date.Equal(priorAnchor.Date), "anchor date is kept")
	assert.Equal(t, 31, got.BCD)
}
