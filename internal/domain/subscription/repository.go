package subscription

import "context"

// Repository provides access to bundles, subscriptions and their timelines
type Repository interface {
	CreateBundle(ctx context.Context, b *Bundle) error
	GetBundle(ctx context.Context, id string) (*Bundle, error)

	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	ListByAccount(ctx context.Context, accountID string) ([]*Subscription, error)
	ListByBundle(ctx context.Context, bundleID string) ([]*Subscription, error)

	// GetTimeline returns the event timeline for a subscription. Timelines
	// are stored whole; SaveTimeline persists the full ordered log.
	GetTimeline(ctx context.Context, subscriptionID string) (*Timeline, error)
	SaveTimeline(ctx context.Context, t *Timeline) error
}
