package account

import "context"

// Repository provides access to accounts
type Repository interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	List(ctx context.Context) ([]*Account, error)
}
