package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestAddClampedDate(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		years  int
		months int
		want   time.Time
	}{
		{"plain month add", d(2016, 5, 15), 0, 1, d(2016, 6, 15)},
		{"jan 31 clamps to feb 29 in a leap year", d(2016, 1, 31), 0, 1, d(2016, 2, 29)},
		{"jan 31 clamps to feb 28 otherwise", d(2015, 1, 31), 0, 1, d(2015, 2, 28)},
		{"year wrap", d(2016, 11, 30), 0, 3, d(2017, 2, 28)},
		{"negative months", d(2016, 3, 31), 0, -1, d(2016, 2, 29)},
		{"feb 29 plus a year clamps to feb 28", d(2016, 2, 29), 1, 0, d(2017, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddClampedDate(tt.start, tt.years, tt.months)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestNextBillingDate(t *testing.T) {
	t.Run("monthly", func(t *testing.T) {
		got, err := NextBillingDate(d(2016, 1, 31), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 2, 29)))
	})

	t.Run("quarterly via unit", func(t *testing.T) {
		got, err := NextBillingDate(d(2016, 5, 1), 3, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 8, 1)))
	})

	t.Run("weekly", func(t *testing.T) {
		got, err := NextBillingDate(d(2016, 5, 1), 2, BILLING_PERIOD_WEEKLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 5, 15)))
	})

	t.Run("annual", func(t *testing.T) {
		got, err := NextBillingDate(d(2016, 2, 29), 1, BILLING_PERIOD_ANNUAL)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2017, 2, 28)))
	})

	t.Run("rejects non-positive unit", func(t *testing.T) {
		_, err := NextBillingDate(d(2016, 5, 1), 0, BILLING_PERIOD_MONTHLY)
		assert.Error(t, err)
	})
}

// A day-31 anchor must clamp per-month against the anchor, not against the
// previous (already clamped) boundary: Jan 31 -> Feb 28 -> Mar 31, never
// Mar 28.
func TestBoundariesDoNotDriftAfterClamping(t *testing.T) {
	anchor := d(2015, 1, 31)

	b1, err := NextBoundaryAfter(anchor, anchor, 1, BILLING_PERIOD_MONTHLY)
	require.NoError(t, err)
	assert.True(t, b1.Equal(d(2015, 2, 28)), "got %v", b1)

	b2, err := NextBoundaryAfter(anchor, b1, 1, BILLING_PERIOD_MONTHLY)
	require.NoError(t, err)
	assert.True(t, b2.Equal(d(2015, 3, 31)), "got %v", b2)
}

func TestNextBoundaryAfter(t *testing.T) {
	anchor := d(2016, 5, 1)

	t.Run("mid period", func(t *testing.T) {
		got, err := NextBoundaryAfter(anchor, d(2016, 7, 15), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 8, 1)))
	})

	t.Run("exactly on a boundary moves to the next one", func(t *testing.T) {
		got, err := NextBoundaryAfter(anchor, d(2016, 6, 1), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 7, 1)))
	})

	t.Run("anchor in the future is the boundary", func(t *testing.T) {
		got, err := NextBoundaryAfter(anchor, d(2016, 4, 10), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(anchor))
	})
}

func TestLastBoundaryOnOrBefore(t *testing.T) {
	anchor := d(2016, 5, 1)

	t.Run("mid period", func(t *testing.T) {
		got, err := LastBoundaryOnOrBefore(anchor, d(2016, 7, 15), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 7, 1)))
	})

	t.Run("exactly on a boundary", func(t *testing.T) {
		got, err := LastBoundaryOnOrBefore(anchor, d(2016, 7, 1), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 7, 1)))
	})

	t.Run("before the anchor walks backwards", func(t *testing.T) {
		got, err := LastBoundaryOnOrBefore(anchor, d(2016, 3, 15), 1, BILLING_PERIOD_MONTHLY)
		require.NoError(t, err)
		assert.True(t, got.Equal(d(2016, 3, 1)))
	})
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 31, DaysBetween(d(2016, 5, 1), d(2016, 6, 1), time.UTC))
	assert.Equal(t, 29, DaysBetween(d(2016, 2, 1), d(2016, 3, 1), time.UTC))
	assert.Equal(t, 0, DaysBetween(d(2016, 5, 1), d(2016, 5, 1), time.UTC))
	assert.Equal(t, 0, DaysBetween(d(2016, 6, 1), d(2016, 5, 1), time.UTC))

	// Day counting happens in the account's location: 23:00 UTC on May 1 is
	// already May 2 at UTC+8, so a two-hour span that crosses midnight UTC
	// stays within a single local day there.
	loc := FixedOffsetLocation(8 * 60)
	late := time.Date(2016, 5, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(late, late.Add(2*time.Hour), time.UTC))
	assert.Equal(t, 0, DaysBetween(late, late.Add(2*time.Hour), loc))
}

func TestFixedOffsetLocation(t *testing.T) {
	loc := FixedOffsetLocation(330)
	assert.Equal(t, "UTC+05:30", loc.String())

	neg := FixedOffsetLocation(-480)
	assert.Equal(t, "UTC-08:00", neg.String())

	_, offset := time.Now().In(loc).Zone()
	assert.Equal(t, 330*60, offset)
}
