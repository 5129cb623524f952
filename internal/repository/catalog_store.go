package repository

import (
	"context"

	"github.com/billcraft/billcraft/internal/domain/catalog"
)

// InMemoryCatalogStore implements catalog.Repository. Catalog versions are
// immutable, so copies share the version slice entries but never the slice
// header.
type InMemoryCatalogStore struct {
	*InMemoryStore[*catalog.Catalog]
}

func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		InMemoryStore: NewInMemoryStore[*catalog.Catalog](),
	}
}

func copyCatalog(c *catalog.Catalog) *catalog.Catalog {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Versions = make([]*catalog.CatalogVersion, len(c.Versions))
	copy(cp.Versions, c.Versions)
	return &cp
}

func (s *InMemoryCatalogStore) Create(ctx context.Context, c *catalog.Catalog) error {
	return s.InMemoryStore.Create(ctx, c.ID, copyCatalog(c))
}

func (s *InMemoryCatalogStore) Get(ctx context.Context, id string) (*catalog.Catalog, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyCatalog(c), nil
}

func (s *InMemoryCatalogStore) AddVersion(ctx context.Context, catalogID string, v *catalog.CatalogVersion) error {
	c, err := s.InMemoryStore.Get(ctx, catalogID)
	if err != nil {
		return err
	}
	updated := copyCatalog(c)
	updated.Versions = append(updated.Versions, v)
	return s.InMemoryStore.Update(ctx, catalogID, updated)
}
