package subscription

import (
	"sort"
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
)

// Timeline is the ordered, replayable sequence of billing events for one
// subscription. Events are totally ordered by (effective date, insertion
// sequence). Inserting an event with an effective date earlier than existing
// events invalidates every downstream event: their alignment and catalog
// version may have to be re-derived, and already-invoiced periods from that
// point must be revisited by the repair engine. The dirty-from marker records
// the earliest such date until the repair runs.
type Timeline struct {
	SubscriptionID string

	events    []*BillingEvent
	nextSeq   int64
	dirtyFrom *time.Time
}

func NewTimeline(subscriptionID string) *Timeline {
	return &Timeline{SubscriptionID: subscriptionID}
}

// Append adds an event at the end of the timeline. The event's effective date
// must not precede the last event's; retroactive inserts go through
// InsertRetroactive so invalidation is explicit.
func (t *Timeline) Append(ev *BillingEvent) error {
	if n := len(t.events); n > 0 && ev.EffectiveDate.Before(t.events[n-1].EffectiveDate) {
		return ierr.NewError("event predates timeline tail").
			WithHint("Use InsertRetroactive for back-dated events").
			WithReportableDetails(map[string]any{
				"subscription_id": t.SubscriptionID,
				"effective_date":  ev.EffectiveDate,
				"tail_date":       t.events[n-1].EffectiveDate,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	ev.Sequence = t.nextSeq
	t.nextSeq++
	t.events = append(t.events, ev)
	return nil
}

// InsertRetroactive inserts an event at its position by effective date and
// returns the indices of all downstream events (effective date >= the
// inserted one) whose annotations must be re-derived. The timeline is marked
// dirty from the inserted date.
func (t *Timeline) InsertRetroactive(ev *BillingEvent) []int {
	ev.Sequence = t.nextSeq
	t.nextSeq++

	pos := sort.Search(len(t.events), func(i int) bool {
		e := t.events[i]
		if !e.EffectiveDate.Equal(ev.EffectiveDate) {
			return e.EffectiveDate.After(ev.EffectiveDate)
		}
		// Equal dates: the new event carries the highest sequence, so it
		// sorts after existing ones
		return e.Sequence > ev.Sequence
	})

	t.events = append(t.events, nil)
	copy(t.events[pos+1:], t.events[pos:])
	t.events[pos] = ev

	t.MarkDirty(ev.EffectiveDate)

	// Everything with effective date >= the inserted one is downstream,
	// including same-date events that sort before it by sequence.
	invalidated := make([]int, 0, len(t.events))
	for i, e := range t.events {
		if i == pos {
			continue
		}
		if !e.EffectiveDate.Before(ev.EffectiveDate) {
			invalidated = append(invalidated, i)
		}
	}
	return invalidated
}

// Remove deletes an event by ID and marks the timeline dirty from its
// effective date. Used for uncancel of a pending cancellation.
func (t *Timeline) Remove(eventID string) (*BillingEvent, error) {
	for i, e := range t.events {
		if e.ID == eventID {
			t.events = append(t.events[:i], t.events[i+1:]...)
			t.MarkDirty(e.EffectiveDate)
			return e, nil
		}
	}
	return nil, ierr.NewError("event not found on timeline").
		WithReportableDetails(map[string]any{
			"subscription_id": t.SubscriptionID,
			"event_id":        eventID,
		}).
		Mark(ierr.ErrNotFound)
}

// Events returns the ordered event slice. Callers must not mutate it.
func (t *Timeline) Events() []*BillingEvent {
	return t.events
}

// EventsSince returns events with effective date >= the given date.
func (t *Timeline) EventsSince(date time.Time) []*BillingEvent {
	idx := sort.Search(len(t.events), func(i int) bool {
		return !t.events[i].EffectiveDate.Before(date)
	})
	return t.events[idx:]
}

// NextEventAfter returns the first event strictly after the given date, or nil.
func (t *Timeline) NextEventAfter(date time.Time) *BillingEvent {
	idx := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].EffectiveDate.After(date)
	})
	if idx == len(t.events) {
		return nil
	}
	return t.events[idx]
}

// LastEvent returns the event with the latest effective date, or nil.
func (t *Timeline) LastEvent() *BillingEvent {
	if len(t.events) == 0 {
		return nil
	}
	return t.events[len(t.events)-1]
}

// PendingCancel returns the cancellation event that has not yet become
// effective at the given instant, or nil.
func (t *Timeline) PendingCancel(now time.Time) *BillingEvent {
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if e.Type == types.BillingEventCancel {
			if e.EffectiveDate.After(now) {
				return e
			}
			return nil
		}
		if e.Type == types.BillingEventUncancel {
			return nil
		}
	}
	return nil
}

// MarkDirty records that already-invoiced periods from the given date must be
// revisited. An earlier existing mark wins.
func (t *Timeline) MarkDirty(from time.Time) {
	if t.dirtyFrom == nil || from.Before(*t.dirtyFrom) {
		d := from
		t.dirtyFrom = &d
	}
}

// DirtyFrom returns the earliest date from which invoiced periods need
// revisiting, or nil when the timeline is clean.
func (t *Timeline) DirtyFrom() *time.Time {
	return t.dirtyFrom
}

// ClearDirty resets the dirty marker after a successful repair pass.
func (t *Timeline) ClearDirty() {
	t.dirtyFrom = nil
}

// Clone returns a deep copy, used by the dry-run engine to fork state.
func (t *Timeline) Clone() *Timeline {
	clone := &Timeline{
		SubscriptionID: t.SubscriptionID,
		nextSeq:        t.nextSeq,
		events:         make([]*BillingEvent, len(t.events)),
	}
	for i, e := range t.events {
		clone.events[i] = e.Clone()
	}
	if t.dirtyFrom != nil {
		d := *t.dirtyFrom
		clone.dirtyFrom = &d
	}
	return clone
}
