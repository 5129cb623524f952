package service

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/domain/catalog"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/billcraft/billcraft/internal/validator"
)

type CreateCatalogRequest struct {
	Name string `json:"name" validate:"required"`
}

type PublishVersionRequest struct {
	CatalogID     string    `json:"catalog_id" validate:"required"`
	EffectiveDate time.Time `json:"effective_date" validate:"required"`
	Plans         []*catalog.Plan
}

// CatalogService manages catalogs and their immutable version stream.
type CatalogService interface {
	Create(ctx context.Context, req *CreateCatalogRequest) (*catalog.Catalog, error)
	Get(ctx context.Context, catalogID string) (*catalog.Catalog, error)
	// PublishVersion appends a new immutable version. Existing versions are
	// never modified; subscriptions pinned to them keep billing unchanged.
	PublishVersion(ctx context.Context, req *PublishVersionRequest) (*catalog.CatalogVersion, error)
}

type catalogService struct {
	ServiceParams
}

func NewCatalogService(params ServiceParams) CatalogService {
	return &catalogService{ServiceParams: params}
}

func (s *catalogService) Create(ctx context.Context, req *CreateCatalogRequest) (*catalog.Catalog, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	c := &catalog.Catalog{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CATALOG),
		Name:      req.Name,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := s.CatalogRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *catalogService) Get(ctx context.Context, catalogID string) (*catalog.Catalog, error) {
	return s.CatalogRepo.Get(ctx, catalogID)
}

func (s *catalogService) PublishVersion(ctx context.Context, req *PublishVersionRequest) (*catalog.CatalogVersion, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	if len(req.Plans) == 0 {
		return nil, ierr.NewError("a catalog version requires at least one plan").
			WithHint("Provide the full plan set of the new version").
			Mark(ierr.ErrValidation)
	}

	c, err := s.CatalogRepo.Get(ctx, req.CatalogID)
	if err != nil {
		return nil, err
	}
	for _, existing := range c.Versions {
		if existing.EffectiveDate.Equal(req.EffectiveDate) {
			return nil, ierr.NewError("a version with this effective date already exists").
				WithReportableDetails(map[string]any{
					"catalog_id":     c.ID,
					"effective_date": req.EffectiveDate,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	version := &catalog.CatalogVersion{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CATALOG_VERSION),
		CatalogID:     c.ID,
		EffectiveDate: req.EffectiveDate,
		Plans:         req.Plans,
	}
	for _, plan := range version.Plans {
		if plan.ID == "" {
			plan.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN)
		}
		for _, phase := range plan.Phases {
			if phase.ID == "" {
				phase.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PHASE)
			}
		}
	}

	if err := s.CatalogRepo.AddVersion(ctx, c.ID, version); err != nil {
		return nil, err
	}
	s.CatalogResolver.InvalidateCache(c.ID)

	s.Logger.Infow("published catalog version",
		"catalog_id", c.ID,
		"version_id", version.ID,
		"effective_date", req.EffectiveDate,
		"plans", len(version.Plans),
	)
	return version, nil
}
