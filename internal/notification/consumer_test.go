package notification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/billcraft/billcraft/internal/config"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/pubsub"
	"github.com/billcraft/billcraft/internal/pubsub/memory"
	"github.com/stretchr/testify/require"
)

const testTopic = "billing.wakeups.test"

type consumerHarness struct {
	consumer *Consumer
	queue    Queue
	ps       pubsub.PubSub
	ctx      context.Context
}

func newConsumerHarness(t *testing.T) *consumerHarness {
	t.Helper()

	cfg := config.GetDefaultConfig()
	log, err := logger.NewLogger(cfg)
	require.NoError(t, err)

	ps := memory.NewPubSub(log)
	q := NewQueue(ps, testTopic, log)

	nc := cfg.Notification
	nc.Topic = testTopic
	nc.MaxRetries = 2
	nc.InitialInterval = time.Millisecond
	nc.MaxInterval = 5 * time.Millisecond
	c := NewConsumer(ps, nc, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &consumerHarness{consumer: c, queue: q, ps: ps, ctx: ctx}
}

func TestConsumerDeliversWakeUp(t *testing.T) {
	h := newConsumerHarness(t)

	got := make(chan *WakeUp, 1)
	go func() {
		_ = h.consumer.Run(h.ctx, func(ctx context.Context, w *WakeUp) error {
			got <- w
			return nil
		})
	}()

	due := time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.queue.Schedule(h.ctx, &WakeUp{
		AccountID:     "acct_1",
		EffectiveDate: due,
	}))

	select {
	case w := <-got:
		require.Equal(t, "acct_1", w.AccountID)
		require.True(t, w.EffectiveDate.Equal(due))
		require.NotEmpty(t, w.ID, "queue assigns an ID on schedule")
	case <-time.After(5 * time.Second):
		t.Fatal("wake-up never delivered")
	}
}

func TestConsumerRetriesTransientErrors(t *testing.T) {
	h := newConsumerHarness(t)

	var calls atomic.Int64
	done := make(chan struct{})
	go func() {
		_ = h.consumer.Run(h.ctx, func(ctx context.Context, w *WakeUp) error {
			if calls.Add(1) == 1 {
				return ierr.NewError("store unavailable").Mark(ierr.ErrSystem)
			}
			close(done)
			return nil
		})
	}()

	require.NoError(t, h.queue.Schedule(h.ctx, &WakeUp{AccountID: "acct_1", EffectiveDate: time.Now()}))

	select {
	case <-done:
		require.Equal(t, int64(2), calls.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded after retry")
	}
}

func TestConsumerDoesNotRetryValidationErrors(t *testing.T) {
	h := newConsumerHarness(t)

	var calls atomic.Int64
	first := make(chan struct{}, 1)
	go func() {
		_ = h.consumer.Run(h.ctx, func(ctx context.Context, w *WakeUp) error {
			calls.Add(1)
			select {
			case first <- struct{}{}:
			default:
			}
			return ierr.NewError("bad wake-up").Mark(ierr.ErrValidation)
		})
	}()

	require.NoError(t, h.queue.Schedule(h.ctx, &WakeUp{AccountID: "acct_1", EffectiveDate: time.Now()}))

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never called")
	}
	// Give the backoff loop room to misbehave before asserting it didn't
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), calls.Load(), "permanent errors must not be retried")
}

func TestConsumerDropsMalformedPayloads(t *testing.T) {
	h := newConsumerHarness(t)

	got := make(chan *WakeUp, 1)
	go func() {
		_ = h.consumer.Run(h.ctx, func(ctx context.Context, w *WakeUp) error {
			got <- w
			return nil
		})
	}()

	// Raw garbage on the topic, then a well-formed wake-up
	require.NoError(t, h.ps.Publish(h.ctx, testTopic, message.NewMessage("garbage", []byte("{not json"))))
	require.NoError(t, h.queue.Schedule(h.ctx, &WakeUp{AccountID: "acct_2", EffectiveDate: time.Now()}))

	select {
	case w := <-got:
		require.Equal(t, "acct_2", w.AccountID, "the malformed message is skipped")
	case <-time.After(5 * time.Second):
		t.Fatal("well-formed wake-up never delivered")
	}
}
