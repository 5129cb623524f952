package notification

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

// WakeUp is a scheduled invoicing trigger keyed by account, subscription and
// effective date. The transport guarantees at-least-once delivery; handlers
// must tolerate duplicates and delays.
type WakeUp struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	EffectiveDate  time.Time `json:"effective_date"`
}

// Queue schedules future wake-ups for the invoicing engine
type Queue interface {
	Schedule(ctx context.Context, w *WakeUp) error
}

type queue struct {
	pub   pubsub.Publisher
	topic string
	log   *logger.Logger
}

// NewQueue creates a wake-up queue on the given topic
func NewQueue(pub pubsub.Publisher, topic string, log *logger.Logger) Queue {
	return &queue{
		pub:   pub,
		topic: topic,
		log:   log,
	}
}

func (q *queue) Schedule(ctx context.Context, w *WakeUp) error {
	// Dry runs must not schedule anything
	if types.IsDryRun(ctx) {
		return nil
	}

	if w.ID == "" {
		w.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION)
	}

	payload, err := json.Marshal(w)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal wake-up").
			Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(w.ID, payload)
	msg.Metadata.Set("account_id", w.AccountID)

	if err := q.pub.Publish(ctx, q.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to schedule wake-up").
			Mark(ierr.ErrSystem)
	}

	q.log.Debugw("scheduled wake-up",
		"wake_up_id", w.ID,
		"account_id", w.AccountID,
		"subscription_id", w.SubscriptionID,
		"effective_date", w.EffectiveDate,
	)
	return nil
}

// Decode unmarshals a wake-up from a transport message
func Decode(msg *message.Message) (*WakeUp, error) {
	var w WakeUp
	if err := json.Unmarshal(msg.Payload, &w); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal wake-up").
			Mark(ierr.ErrValidation)
	}
	return &w, nil
}
