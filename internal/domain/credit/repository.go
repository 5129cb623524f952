package credit

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository provides access to the account credit ledger
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
	// ListByAccount returns entries ordered by credit-creation date ascending
	// (FIFO consumption order)
	ListByAccount(ctx context.Context, accountID string) ([]*Entry, error)
	// Balance returns the sum of remaining amounts for the account
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
}
