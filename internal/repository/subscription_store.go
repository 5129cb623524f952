package repository

import (
	"context"
	"sync"

	"github.com/billcraft/billcraft/internal/domain/subscription"
	ierr "github.com/billcraft/billcraft/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository, holding
// bundles, subscriptions and their event timelines.
type InMemorySubscriptionStore struct {
	bundles *InMemoryStore[*subscription.Bundle]
	subs    *InMemoryStore[*subscription.Subscription]

	mu        sync.RWMutex
	timelines map[string]*subscription.Timeline
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		bundles:   NewInMemoryStore[*subscription.Bundle](),
		subs:      NewInMemoryStore[*subscription.Subscription](),
		timelines: make(map[string]*subscription.Timeline),
	}
}

func copySubscription(s *subscription.Subscription) *subscription.Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.CancelDate != nil {
		t := *s.CancelDate
		c.CancelDate = &t
	}
	if s.ChargedThroughDate != nil {
		t := *s.ChargedThroughDate
		c.ChargedThroughDate = &t
	}
	return &c
}

func (s *InMemorySubscriptionStore) CreateBundle(ctx context.Context, b *subscription.Bundle) error {
	c := *b
	return s.bundles.Create(ctx, b.ID, &c)
}

func (s *InMemorySubscriptionStore) GetBundle(ctx context.Context, id string) (*subscription.Bundle, error) {
	b, err := s.bundles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := *b
	return &c, nil
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	return s.subs.Create(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copySubscription(sub), nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	return s.subs.Update(ctx, sub.ID, copySubscription(sub))
}

func (s *InMemorySubscriptionStore) ListByAccount(ctx context.Context, accountID string) ([]*subscription.Subscription, error) {
	items, err := s.subs.List(ctx, func(_ context.Context, sub *subscription.Subscription) bool {
		return sub.AccountID == accountID
	}, func(i, j *subscription.Subscription) bool {
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*subscription.Subscription, len(items))
	for i, sub := range items {
		out[i] = copySubscription(sub)
	}
	return out, nil
}

func (s *InMemorySubscriptionStore) ListByBundle(ctx context.Context, bundleID string) ([]*subscription.Subscription, error) {
	items, err := s.subs.List(ctx, func(_ context.Context, sub *subscription.Subscription) bool {
		return sub.BundleID == bundleID
	}, func(i, j *subscription.Subscription) bool {
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*subscription.Subscription, len(items))
	for i, sub := range items {
		out[i] = copySubscription(sub)
	}
	return out, nil
}

func (s *InMemorySubscriptionStore) GetTimeline(ctx context.Context, subscriptionID string) (*subscription.Timeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tl, ok := s.timelines[subscriptionID]
	if !ok {
		return nil, ierr.NewError("timeline not found").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	return tl.Clone(), nil
}

func (s *InMemorySubscriptionStore) SaveTimeline(ctx context.Context, tl *subscription.Timeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelines[tl.SubscriptionID] = tl.Clone()
	return nil
}

func (s *InMemorySubscriptionStore) Clear() {
	s.bundles.Clear()
	s.subs.Clear()
	s.mu.Lock()
	s.timelines = make(map[string]*subscription.Timeline)
	s.mu.Unlock()
}
