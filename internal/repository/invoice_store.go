package repository

import (
	"context"

	"github.com/billcraft/billcraft/internal/domain/invoice"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func copyInvoice(i *invoice.Invoice) *invoice.Invoice {
	if i == nil {
		return nil
	}
	c := *i
	if i.InvoiceNumber != nil {
		n := *i.InvoiceNumber
		c.InvoiceNumber = &n
	}
	if i.IdempotencyKey != nil {
		k := *i.IdempotencyKey
		c.IdempotencyKey = &k
	}
	if i.CommittedAt != nil {
		t := *i.CommittedAt
		c.CommittedAt = &t
	}
	if i.VoidedAt != nil {
		t := *i.VoidedAt
		c.VoidedAt = &t
	}
	c.Items = make([]*invoice.InvoiceItem, len(i.Items))
	for idx, item := range i.Items {
		cp := *item
		if item.EndDate != nil {
			t := *item.EndDate
			cp.EndDate = &t
		}
		if item.LinkedItemID != nil {
			l := *item.LinkedItemID
			cp.LinkedItemID = &l
		}
		c.Items[idx] = &cp
	}
	return &c
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, i *invoice.Invoice) error {
	return s.InMemoryStore.Create(ctx, i.ID, copyInvoice(i))
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	i, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyInvoice(i), nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, i *invoice.Invoice) error {
	return s.InMemoryStore.Update(ctx, i.ID, copyInvoice(i))
}

func (s *InMemoryInvoiceStore) ListByAccount(ctx context.Context, accountID string) ([]*invoice.Invoice, error) {
	items, err := s.InMemoryStore.List(ctx, func(_ context.Context, i *invoice.Invoice) bool {
		return i.AccountID == accountID
	}, func(i, j *invoice.Invoice) bool {
		if i.InvoiceDate.Equal(j.InvoiceDate) {
			return i.ID < j.ID
		}
		return i.InvoiceDate.Before(j.InvoiceDate)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*invoice.Invoice, len(items))
	for idx, i := range items {
		out[idx] = copyInvoice(i)
	}
	return out, nil
}

func (s *InMemoryInvoiceStore) GetByIdempotencyKey(ctx context.Context, accountID, key string) (*invoice.Invoice, error) {
	items, err := s.InMemoryStore.List(ctx, func(_ context.Context, i *invoice.Invoice) bool {
		return i.AccountID == accountID && i.IdempotencyKey != nil && *i.IdempotencyKey == key
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewError("no invoice for idempotency key").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(items[0]), nil
}

func (s *InMemoryInvoiceStore) GetDraft(ctx context.Context, accountID string) (*invoice.Invoice, error) {
	items, err := s.InMemoryStore.List(ctx, func(_ context.Context, i *invoice.Invoice) bool {
		return i.AccountID == accountID && i.Status == types.InvoiceStatusDraft
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewError("no draft invoice for account").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(items[0]), nil
}
