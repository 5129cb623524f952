package subscription

import (
	"testing"
	"time"

	"github.com/billcraft/billcraft/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func ev(id string, evType types.BillingEventType, effective time.Time) *BillingEvent {
	return &BillingEvent{
		ID:            id,
		Type:          evType,
		EffectiveDate: effective,
	}
}

func TestTimelineAppend(t *testing.T) {
	tl := NewTimeline("subs_1")

	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	require.NoError(t, tl.Append(ev("e2", types.BillingEventPhase, d(2016, 6, 1))))

	// Same-date appends are fine; ordering falls to the sequence
	require.NoError(t, tl.Append(ev("e3", types.BillingEventChange, d(2016, 6, 1))))

	events := tl.Events()
	require.Len(t, events, 3)
	assert.Equal(t, int64(0), events[0].Sequence)
	assert.Equal(t, int64(2), events[2].Sequence)
	assert.Nil(t, tl.DirtyFrom())

	t.Run("rejects back-dated append", func(t *testing.T) {
		err := tl.Append(ev("e4", types.BillingEventCancel, d(2016, 5, 15)))
		assert.Error(t, err)
		assert.Len(t, tl.Events(), 3)
	})
}

func TestTimelineInsertRetroactive(t *testing.T) {
	tl := NewTimeline("subs_1")
	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	require.NoError(t, tl.Append(ev("e2", types.BillingEventPhase, d(2016, 6, 1))))
	require.NoError(t, tl.Append(ev("e3", types.BillingEventPhase, d(2016, 7, 1))))

	invalidated := tl.InsertRetroactive(ev("e4", types.BillingEventCancel, d(2016, 5, 20)))

	events := tl.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "e4", events[1].ID)

	// Both June and July events are downstream of the insert
	require.Len(t, invalidated, 2)
	assert.Equal(t, "e2", events[invalidated[0]].ID)
	assert.Equal(t, "e3", events[invalidated[1]].ID)

	require.NotNil(t, tl.DirtyFrom())
	assert.True(t, tl.DirtyFrom().Equal(d(2016, 5, 20)))
}

func TestTimelineInsertRetroactiveSameDate(t *testing.T) {
	tl := NewTimeline("subs_1")
	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	require.NoError(t, tl.Append(ev("e2", types.BillingEventPhase, d(2016, 6, 1))))

	// Same effective date as e2: the newer event sorts after it, and e2
	// still counts as downstream.
	invalidated := tl.InsertRetroactive(ev("e3", types.BillingEventChange, d(2016, 6, 1)))

	events := tl.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "e2", events[1].ID)
	assert.Equal(t, "e3", events[2].ID)
	require.Len(t, invalidated, 1)
	assert.Equal(t, "e2", events[invalidated[0]].ID)
}

func TestTimelineRemove(t *testing.T) {
	tl := NewTimeline("subs_1")
	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	require.NoError(t, tl.Append(ev("e2", types.BillingEventCancel, d(2016, 8, 1))))

	removed, err := tl.Remove("e2")
	require.NoError(t, err)
	assert.Equal(t, "e2", removed.ID)
	assert.Len(t, tl.Events(), 1)
	require.NotNil(t, tl.DirtyFrom())
	assert.True(t, tl.DirtyFrom().Equal(d(2016, 8, 1)))

	_, err = tl.Remove("missing")
	assert.Error(t, err)
}

func TestTimelineDirtyTracking(t *testing.T) {
	tl := NewTimeline("subs_1")

	tl.MarkDirty(d(2016, 6, 1))
	tl.MarkDirty(d(2016, 7, 1))
	require.NotNil(t, tl.DirtyFrom())
	assert.True(t, tl.DirtyFrom().Equal(d(2016, 6, 1)), "earlier mark wins")

	tl.MarkDirty(d(2016, 5, 1))
	assert.True(t, tl.DirtyFrom().Equal(d(2016, 5, 1)))

	tl.ClearDirty()
	assert.Nil(t, tl.DirtyFrom())
}

func TestTimelineQueries(t *testing.T) {
	tl := NewTimeline("subs_1")
	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	require.NoError(t, tl.Append(ev("e2", types.BillingEventPhase, d(2016, 6, 1))))
	require.NoError(t, tl.Append(ev("e3", types.BillingEventCancel, d(2016, 9, 1))))

	t.Run("events since", func(t *testing.T) {
		since := tl.EventsSince(d(2016, 6, 1))
		require.Len(t, since, 2)
		assert.Equal(t, "e2", since[0].ID)
	})

	t.Run("next event after", func(t *testing.T) {
		next := tl.NextEventAfter(d(2016, 6, 1))
		require.NotNil(t, next)
		assert.Equal(t, "e3", next.ID)
		assert.Nil(t, tl.NextEventAfter(d(2016, 9, 1)))
	})

	t.Run("last event", func(t *testing.T) {
		assert.Equal(t, "e3", tl.LastEvent().ID)
		assert.Nil(t, NewTimeline("subs_2").LastEvent())
	})

	t.Run("pending cancel", func(t *testing.T) {
		pending := tl.PendingCancel(d(2016, 8, 1))
		require.NotNil(t, pending)
		assert.Equal(t, "e3", pending.ID)

		// An effective cancellation is no longer pending
		assert.Nil(t, tl.PendingCancel(d(2016, 9, 1)))
	})
}

func TestTimelineClone(t *testing.T) {
	tl := NewTimeline("subs_1")
	require.NoError(t, tl.Append(ev("e1", types.BillingEventCreate, d(2016, 5, 1))))
	tl.MarkDirty(d(2016, 5, 1))

	clone := tl.Clone()
	clone.Events()[0].PlanName = "changed"
	clone.ClearDirty()
	require.NoError(t, clone.Append(ev("e2", types.BillingEventCancel, d(2016, 6, 1))))

	assert.Equal(t, "", tl.Events()[0].PlanName)
	assert.NotNil(t, tl.DirtyFrom())
	assert.Len(t, tl.Events(), 1)
	assert.Len(t, clone.Events(), 2)
}
