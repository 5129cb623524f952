package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/pubsub"
	"github.com/billcraft/billcraft/internal/types"
)

// LifecycleEvent is published on the bus after a successful state transition.
// Consumers (payment, notification scheduling) subscribe to these; delivery
// is at-least-once.
type LifecycleEvent struct {
	ID             string                   `json:"id"`
	Type           types.LifecycleEventType `json:"type"`
	TenantID       string                   `json:"tenant_id"`
	AccountID      string                   `json:"account_id"`
	BundleID       string                   `json:"bundle_id,omitempty"`
	SubscriptionID string                   `json:"subscription_id,omitempty"`
	InvoiceID      string                   `json:"invoice_id,omitempty"`
	EffectiveDate  time.Time                `json:"effective_date"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

// EventPublisher publishes lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event *LifecycleEvent) error
}

type eventPublisher struct {
	pub   pubsub.Publisher
	topic string
	log   *logger.Logger
}

// NewEventPublisher creates a lifecycle event publisher on the given topic
func NewEventPublisher(pub pubsub.Publisher, topic string, log *logger.Logger) EventPublisher {
	return &eventPublisher{
		pub:   pub,
		topic: topic,
		log:   log,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event *LifecycleEvent) error {
	// Dry runs must not emit anything
	if types.IsDryRun(ctx) {
		return nil
	}

	if event.ID == "" {
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LIFECYCLE_EVENT)
	}
	if event.TenantID == "" {
		event.TenantID = types.GetTenantID(ctx)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal lifecycle event").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("account_id", event.AccountID)

	if err := p.pub.Publish(ctx, p.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to publish lifecycle event %s", event.Type).
			Mark(ierr.ErrSystem)
	}

	p.log.Debugw("published lifecycle event",
		"event_id", event.ID,
		"event_type", event.Type,
		"account_id", event.AccountID,
		"subscription_id", event.SubscriptionID,
	)
	return nil
}
