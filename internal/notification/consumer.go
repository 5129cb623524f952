package notification

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/billcraft/billcraft/internal/config"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/pubsub"
)

// Handler processes one wake-up. Returning nil acks the message. A
// nothing-to-do outcome is a success, not a fault; handlers are expected to
// swallow it after using it to detect "already billed".
type Handler func(ctx context.Context, w *WakeUp) error

// Consumer drains the wake-up topic and drives the invoicing engine.
// Transient failures are retried with exponential backoff; the whole
// invoicing attempt for a notification is abandoned and retried as a unit.
type Consumer struct {
	sub pubsub.Subscriber
	cfg config.NotificationConfig
	log *logger.Logger
}

func NewConsumer(sub pubsub.Subscriber, cfg config.NotificationConfig, log *logger.Logger) *Consumer {
	return &Consumer{
		sub: sub,
		cfg: cfg,
		log: log,
	}
}

// Run consumes wake-ups until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	messages, err := c.sub.Subscribe(ctx, c.cfg.Topic)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to subscribe to %s", c.cfg.Topic).
			Mark(ierr.ErrSystem)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			w, err := Decode(msg)
			if err != nil {
				// Malformed payloads are dropped, not retried
				c.log.Errorw("dropping malformed wake-up", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}

			if err := c.handleWithRetry(ctx, handler, w); err != nil {
				c.log.Errorw("wake-up abandoned after retries",
					"wake_up_id", w.ID,
					"account_id", w.AccountID,
					"error", err,
				)
				// Nack so the transport redelivers later
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler Handler, w *WakeUp) error {
	policy := backoff.WithContext(c.retryPolicy(), ctx)

	return backoff.Retry(func() error {
		err := handler(ctx, w)
		if err == nil {
			return nil
		}
		// Validation and consistency errors will not heal on retry; only
		// transient collaborator failures are worth retrying
		if ierr.IsValidation(err) || ierr.IsInvalidOperation(err) ||
			ierr.IsDoubleBilling(err) || ierr.IsAccountParked(err) {
			return backoff.Permanent(err)
		}
		c.log.Warnw("retrying wake-up",
			"wake_up_id", w.ID,
			"account_id", w.AccountID,
			"error", err,
		)
		return err
	}, policy)
}

func (c *Consumer) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialInterval > 0 {
		b.InitialInterval = c.cfg.InitialInterval
	}
	if c.cfg.MaxInterval > 0 {
		b.MaxInterval = c.cfg.MaxInterval
	}
	b.MaxElapsedTime = 0 // bounded by retry count, not wall time

	var policy backoff.BackOff = b
	if c.cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries))
	}
	return policy
}
