package repository

import (
	"context"

	"github.com/billcraft/billcraft/internal/domain/account"
)

// InMemoryAccountStore implements account.Repository
type InMemoryAccountStore struct {
	*InMemoryStore[*account.Account]
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{
		InMemoryStore: NewInMemoryStore[*account.Account](),
	}
}

func copyAccount(a *account.Account) *account.Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.ParkedAt != nil {
		t := *a.ParkedAt
		c.ParkedAt = &t
	}
	return &c
}

func (s *InMemoryAccountStore) Create(ctx context.Context, a *account.Account) error {
	return s.InMemoryStore.Create(ctx, a.ID, copyAccount(a))
}

func (s *InMemoryAccountStore) Get(ctx context.Context, id string) (*account.Account, error) {
	a, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyAccount(a), nil
}

func (s *InMemoryAccountStore) Update(ctx context.Context, a *account.Account) error {
	return s.InMemoryStore.Update(ctx, a.ID, copyAccount(a))
}

func (s *InMemoryAccountStore) List(ctx context.Context) ([]*account.Account, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(i, j *account.Account) bool {
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*account.Account, len(items))
	for i, a := range items {
		out[i] = copyAccount(a)
	}
	return out, nil
}
