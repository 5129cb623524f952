package catalog

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// Catalog is a named list of immutable versions, each carrying the full plan
// set effective from its effective date.
type Catalog struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Versions []*CatalogVersion `json:"versions"`
	types.BaseModel
}

// CatalogVersion is an immutable snapshot of the plan set. Retiring a plan in
// version N+1 never affects subscriptions already billing under version N.
type CatalogVersion struct {
	ID            string    `json:"id"`
	CatalogID     string    `json:"catalog_id"`
	EffectiveDate time.Time `json:"effective_date"`
	Plans         []*Plan   `json:"plans"`
}

// Plan belongs to exactly one product and billing period.
type Plan struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	ProductName       string                `json:"product_name"`
	ProductCategory   types.ProductCategory `json:"product_category"`
	PriceList         string                `json:"price_list"`
	Currency          string                `json:"currency"`
	BillingPeriod     types.BillingPeriod   `json:"billing_period"`
	BillingPeriodUnit int                   `json:"billing_period_unit"`
	Phases            []*Phase              `json:"phases"`
}

// Phase is a stage of a plan's life. TRIAL and DISCOUNT phases have a fixed
// duration in days; EVERGREEN phases bill indefinitely.
type Phase struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Type              types.PhaseType `json:"type"`
	DurationDays      int             `json:"duration_days,omitempty"`
	FixedPrice        decimal.Decimal `json:"fixed_price"`
	RecurringPrice    decimal.Decimal `json:"recurring_price"`
	UsagePricePerUnit decimal.Decimal `json:"usage_price_per_unit"`
}

// IsFixedLength reports whether the phase ends exactly at start + duration,
// regardless of the billing cycle day.
func (p *Phase) IsFixedLength() bool {
	return p.Type != types.PhaseTypeEvergreen && p.DurationDays > 0
}

// RecurringPhase returns the first evergreen phase of the plan, or nil.
func (p *Plan) RecurringPhase() *Phase {
	for _, phase := range p.Phases {
		if phase.Type == types.PhaseTypeEvergreen {
			return phase
		}
	}
	return nil
}

// FindPhase returns the phase with the given name.
func (p *Plan) FindPhase(name string) (*Phase, error) {
	for _, phase := range p.Phases {
		if phase.Name == name {
			return phase, nil
		}
	}
	return nil, ierr.NewError("phase not found in plan").
		WithReportableDetails(map[string]any{
			"plan":  p.Name,
			"phase": name,
		}).
		Mark(ierr.ErrNotFound)
}

// FindPlan looks up a plan by product name, billing period and price list
// within this version. Retirement errors surface here, at operation time,
// never at invoicing time.
func (v *CatalogVersion) FindPlan(productName string, period types.BillingPeriod, priceList string) (*Plan, error) {
	var productSeen bool
	var matches []*Plan
	for _, plan := range v.Plans {
		if plan.ProductName != productName {
			continue
		}
		productSeen = true
		if plan.BillingPeriod != period {
			continue
		}
		if priceList != "" && plan.PriceList != priceList {
			continue
		}
		matches = append(matches, plan)
	}

	if !productSeen {
		return nil, ierr.NewError("product not found in catalog version").
			WithHintf("product %s does not exist in catalog version effective %s",
				productName, v.EffectiveDate.Format(time.DateOnly)).
			WithReportableDetails(map[string]any{
				"product":            productName,
				"catalog_version_id": v.ID,
			}).
			Mark(ierr.ErrNoSuchProduct)
	}
	switch len(matches) {
	case 0:
		return nil, ierr.NewError("plan not found in catalog version").
			WithHintf("no %s plan for product %s on price list %q", period, productName, priceList).
			WithReportableDetails(map[string]any{
				"product":            productName,
				"billing_period":     period,
				"price_list":         priceList,
				"catalog_version_id": v.ID,
			}).
			Mark(ierr.ErrPlanNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, ierr.NewError("multiple matching plans for price list").
			WithReportableDetails(map[string]any{
				"product":            productName,
				"billing_period":     period,
				"price_list":         priceList,
				"catalog_version_id": v.ID,
			}).
			Mark(ierr.ErrMultiplePlans)
	}
}

// FindPlanByName looks a plan up by its unique name within this version.
func (v *CatalogVersion) FindPlanByName(name string) (*Plan, error) {
	for _, plan := range v.Plans {
		if plan.Name == name {
			return plan, nil
		}
	}
	return nil, ierr.NewError("plan not found in catalog version").
		WithHintf("plan %s does not exist in catalog version effective %s",
			name, v.EffectiveDate.Format(time.DateOnly)).
		WithReportableDetails(map[string]any{
			"plan":               name,
			"catalog_version_id": v.ID,
		}).
		Mark(ierr.ErrPlanNotFound)
}

// VersionEffectiveAt returns the version whose effective date is the latest
// one at or before the given date.
func (c *Catalog) VersionEffectiveAt(date time.Time) (*CatalogVersion, error) {
	var result *CatalogVersion
	for _, v := range c.Versions {
		if v.EffectiveDate.After(date) {
			continue
		}
		if result == nil || v.EffectiveDate.After(result.EffectiveDate) {
			result = v
		}
	}
	if result == nil {
		return nil, ierr.NewError("no catalog version effective at date").
			WithHintf("catalog %s has no version effective at %s", c.Name, date.Format(time.DateOnly)).
			WithReportableDetails(map[string]any{
				"catalog_id": c.ID,
				"date":       date,
			}).
			Mark(ierr.ErrNotFound)
	}
	return result, nil
}
