package catalog

import (
	"testing"
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func standardPlan() *Plan {
	return &Plan{
		ID:                "plan_std",
		Name:              "standard-monthly",
		ProductName:       "Standard",
		ProductCategory:   types.ProductCategoryBase,
		PriceList:         "DEFAULT",
		Currency:          "USD",
		BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
		BillingPeriodUnit: 1,
		Phases: []*Phase{
			{
				ID:           "phase_trial",
				Name:         "standard-monthly-trial",
				Type:         types.PhaseTypeTrial,
				DurationDays: 30,
			},
			{
				ID:             "phase_evergreen",
				Name:           "standard-monthly-evergreen",
				Type:           types.PhaseTypeEvergreen,
				RecurringPrice: decimal.NewFromFloat(249.95),
			},
		},
	}
}

func twoVersionCatalog() *Catalog {
	v1 := &CatalogVersion{
		ID:            "catv_1",
		CatalogID:     "cat_1",
		EffectiveDate: d(2016, 1, 1),
		Plans:         []*Plan{standardPlan()},
	}
	// v2 retires the Standard product
	v2 := &CatalogVersion{
		ID:            "catv_2",
		CatalogID:     "cat_1",
		EffectiveDate: d(2016, 7, 1),
		Plans: []*Plan{
			{
				ID:                "plan_sports",
				Name:              "sports-monthly",
				ProductName:       "Sports",
				ProductCategory:   types.ProductCategoryBase,
				PriceList:         "DEFAULT",
				Currency:          "USD",
				BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
				BillingPeriodUnit: 1,
				Phases: []*Phase{
					{
						ID:             "phase_sports_evergreen",
						Name:           "sports-monthly-evergreen",
						Type:           types.PhaseTypeEvergreen,
						RecurringPrice: decimal.NewFromFloat(499.95),
					},
				},
			},
		},
	}
	return &Catalog{ID: "cat_1", Name: "main", Versions: []*CatalogVersion{v1, v2}}
}

func TestVersionEffectiveAt(t *testing.T) {
	c := twoVersionCatalog()

	t.Run("picks the latest version at or before the date", func(t *testing.T) {
		v, err := c.VersionEffectiveAt(d(2016, 5, 1))
		require.NoError(t, err)
		assert.Equal(t, "catv_1", v.ID)

		v, err = c.VersionEffectiveAt(d(2016, 7, 1))
		require.NoError(t, err)
		assert.Equal(t, "catv_2", v.ID)
	})

	t.Run("no version before the first effective date", func(t *testing.T) {
		_, err := c.VersionEffectiveAt(d(2015, 12, 31))
		assert.True(t, ierr.IsNotFound(err))
	})
}

func TestFindPlan(t *testing.T) {
	c := twoVersionCatalog()
	v1 := c.Versions[0]

	t.Run("match", func(t *testing.T) {
		p, err := v1.FindPlan("Standard", types.BILLING_PERIOD_MONTHLY, "DEFAULT")
		require.NoError(t, err)
		assert.Equal(t, "standard-monthly", p.Name)
	})

	t.Run("empty price list matches any", func(t *testing.T) {
		p, err := v1.FindPlan("Standard", types.BILLING_PERIOD_MONTHLY, "")
		require.NoError(t, err)
		assert.Equal(t, "standard-monthly", p.Name)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := v1.FindPlan("Gadget", types.BILLING_PERIOD_MONTHLY, "DEFAULT")
		require.Error(t, err)
		assert.ErrorIs(t, err, ierr.ErrNoSuchProduct)
	})

	t.Run("known product without a matching plan", func(t *testing.T) {
		_, err := v1.FindPlan("Standard", types.BILLING_PERIOD_ANNUAL, "DEFAULT")
		require.Error(t, err)
		assert.ErrorIs(t, err, ierr.ErrPlanNotFound)
	})

	t.Run("ambiguous price lists", func(t *testing.T) {
		v := &CatalogVersion{
			ID: "catv_x",
			Plans: []*Plan{
				{Name: "a", ProductName: "Standard", BillingPeriod: types.BILLING_PERIOD_MONTHLY, PriceList: "DEFAULT"},
				{Name: "b", ProductName: "Standard", BillingPeriod: types.BILLING_PERIOD_MONTHLY, PriceList: "PROMO"},
			},
		}
		_, err := v.FindPlan("Standard", types.BILLING_PERIOD_MONTHLY, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ierr.ErrMultiplePlans)
	})
}

func TestPhaseHelpers(t *testing.T) {
	plan := standardPlan()

	recurring := plan.RecurringPhase()
	require.NotNil(t, recurring)
	assert.Equal(t, "standard-monthly-evergreen", recurring.Name)

	trial, err := plan.FindPhase("standard-monthly-trial")
	require.NoError(t, err)
	assert.True(t, trial.IsFixedLength())
	assert.False(t, recurring.IsFixedLength())

	_, err = plan.FindPhase("missing")
	assert.True(t, ierr.IsNotFound(err))
}

func TestAlignmentReferenceDate(t *testing.T) {
	dates := AlignmentDates{
		BundleCreatedAt:       d(2016, 1, 10),
		SubscriptionCreatedAt: d(2016, 3, 10),
		ChangeEffective:       d(2016, 5, 10),
	}

	tests := []struct {
		alignment types.BillingAlignment
		want      time.Time
	}{
		{types.AlignmentStartOfBundle, d(2016, 1, 10)},
		{types.AlignmentStartOfSubscription, d(2016, 3, 10)},
		{types.AlignmentChangeOfPlan, d(2016, 5, 10)},
		{types.AlignmentAccount, d(2016, 5, 10)},
	}
	for _, tt := range tests {
		got, err := AlignmentReferenceDate(tt.alignment, dates)
		require.NoError(t, err)
		assert.True(t, got.Equal(tt.want), "%s", tt.alignment)
	}

	_, err := AlignmentReferenceDate(types.BillingAlignment("bogus"), dates)
	assert.Error(t, err)
}
