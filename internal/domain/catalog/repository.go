package catalog

import "context"

// Repository provides access to catalogs and their versions
type Repository interface {
	Create(ctx context.Context, c *Catalog) error
	Get(ctx context.Context, id string) (*Catalog, error)
	// AddVersion publishes a new immutable version for the catalog
	AddVersion(ctx context.Context, catalogID string, v *CatalogVersion) error
}
