package invoice

import "context"

// Repository provides access to invoices
type Repository interface {
	Create(ctx context.Context, i *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, i *Invoice) error
	ListByAccount(ctx context.Context, accountID string) ([]*Invoice, error)
	// GetByIdempotencyKey returns the invoice created under the given key,
	// or a not-found error
	GetByIdempotencyKey(ctx context.Context, accountID, key string) (*Invoice, error)
	// GetDraft returns the open draft invoice for an account, or a
	// not-found error
	GetDraft(ctx context.Context, accountID string) (*Invoice, error)
}
