package catalog

import (
	"context"
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/types"
	gocache "github.com/patrickmn/go-cache"
)

const (
	cacheTTL             = 5 * time.Minute
	cacheCleanupInterval = 10 * time.Minute
)

// AlignmentDates carries the candidate reference dates a change alignment
// policy can pick from.
type AlignmentDates struct {
	BundleCreatedAt       time.Time
	SubscriptionCreatedAt time.Time
	ChangeEffective       time.Time
}

// VersionResolver resolves the catalog version that governs billing from a
// given date. Versions are immutable once published, so resolved catalogs are
// cached with a short TTL to absorb new version publishes.
type VersionResolver struct {
	repo  Repository
	cache *gocache.Cache
	log   *logger.Logger
}

func NewVersionResolver(repo Repository, log *logger.Logger) *VersionResolver {
	return &VersionResolver{
		repo:  repo,
		cache: gocache.New(cacheTTL, cacheCleanupInterval),
		log:   log,
	}
}

// ResolveVersion returns the catalog version whose effective date is the
// latest one at or before the given date.
func (r *VersionResolver) ResolveVersion(ctx context.Context, catalogID string, date time.Time) (*CatalogVersion, error) {
	c, err := r.getCatalog(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	return c.VersionEffectiveAt(date)
}

// ResolveForAlignment returns the catalog version governing a change under the
// given alignment policy. The alignment-relevant date is not necessarily the
// change's own effective date: START_OF_BUNDLE changes are evaluated against
// the catalog effective at the bundle's original creation date.
func (r *VersionResolver) ResolveForAlignment(ctx context.Context, catalogID string, alignment types.BillingAlignment, dates AlignmentDates) (*CatalogVersion, error) {
	ref, err := AlignmentReferenceDate(alignment, dates)
	if err != nil {
		return nil, err
	}
	return r.ResolveVersion(ctx, catalogID, ref)
}

// AlignmentReferenceDate picks the date a change alignment policy resolves
// the catalog against.
func AlignmentReferenceDate(alignment types.BillingAlignment, dates AlignmentDates) (time.Time, error) {
	switch alignment {
	case types.AlignmentStartOfBundle:
		return dates.BundleCreatedAt, nil
	case types.AlignmentStartOfSubscription:
		return dates.SubscriptionCreatedAt, nil
	case types.AlignmentChangeOfPlan, types.AlignmentAccount:
		return dates.ChangeEffective, nil
	default:
		return time.Time{}, ierr.NewError("invalid billing alignment").
			WithReportableDetails(map[string]any{
				"alignment": alignment,
			}).
			Mark(ierr.ErrValidation)
	}
}

func (r *VersionResolver) getCatalog(ctx context.Context, catalogID string) (*Catalog, error) {
	if cached, found := r.cache.Get(catalogID); found {
		if c, ok := cached.(*Catalog); ok {
			return c, nil
		}
	}

	c, err := r.repo.Get(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(catalogID, c, gocache.DefaultExpiration)
	return c, nil
}

// InvalidateCache drops the cached catalog, e.g. after publishing a version.
func (r *VersionResolver) InvalidateCache(catalogID string) {
	r.cache.Delete(catalogID)
}
