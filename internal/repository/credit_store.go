package repository

import (
	"context"

	"github.com/billcraft/billcraft/internal/domain/credit"
	"github.com/shopspring/decimal"
)

// InMemoryCreditStore implements credit.Repository
type InMemoryCreditStore struct {
	*InMemoryStore[*credit.Entry]
}

func NewInMemoryCreditStore() *InMemoryCreditStore {
	return &InMemoryCreditStore{
		InMemoryStore: NewInMemoryStore[*credit.Entry](),
	}
}

func copyEntry(e *credit.Entry) *credit.Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func (s *InMemoryCreditStore) Create(ctx context.Context, e *credit.Entry) error {
	return s.InMemoryStore.Create(ctx, e.ID, copyEntry(e))
}

func (s *InMemoryCreditStore) Update(ctx context.Context, e *credit.Entry) error {
	return s.InMemoryStore.Update(ctx, e.ID, copyEntry(e))
}

func (s *InMemoryCreditStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryCreditStore) ListByAccount(ctx context.Context, accountID string) ([]*credit.Entry, error) {
	items, err := s.InMemoryStore.List(ctx, func(_ context.Context, e *credit.Entry) bool {
		return e.AccountID == accountID
	}, func(i, j *credit.Entry) bool {
		if i.EffectiveDate.Equal(j.EffectiveDate) {
			return i.ID < j.ID
		}
		return i.EffectiveDate.Before(j.EffectiveDate)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*credit.Entry, len(items))
	for i, e := range items {
		out[i] = copyEntry(e)
	}
	return out, nil
}

func (s *InMemoryCreditStore) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	items, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, e := range items {
		balance = balance.Add(e.Remaining)
	}
	return balance, nil
}
