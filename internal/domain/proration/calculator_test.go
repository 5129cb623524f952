package proration

import (
	"testing"
	"time"

	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewCalculator(t *testing.T) {
	t.Run("calendar days mode", func(t *testing.T) {
		calc, err := NewCalculator(types.ProrationModeCalendarDays, 0)
		require.NoError(t, err)
		assert.NotNil(t, calc)
	})

	t.Run("fixed days mode requires positive days", func(t *testing.T) {
		_, err := NewCalculator(types.ProrationModeFixedDays, 0)
		assert.Error(t, err)

		calc, err := NewCalculator(types.ProrationModeFixedDays, 30)
		require.NoError(t, err)
		assert.NotNil(t, calc)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := NewCalculator(types.ProrationMode("bogus"), 0)
		assert.Error(t, err)
	})
}

func TestCalendarDaysProration(t *testing.T) {
	calc, err := NewCalculator(types.ProrationModeCalendarDays, 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  ProrationParams
		want    string
		wantErr bool
	}{
		{
			name: "full period bills full amount",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromFloat(249.95),
				PeriodStart:  date(2016, 5, 1),
				PeriodEnd:    date(2016, 6, 1),
				SegmentStart: date(2016, 5, 1),
				SegmentEnd:   date(2016, 6, 1),
				Location:     time.UTC,
			},
			want: "249.95",
		},
		{
			name: "half of a 30-day period",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromInt(30),
				PeriodStart:  date(2016, 4, 1),
				PeriodEnd:    date(2016, 5, 1),
				SegmentStart: date(2016, 4, 1),
				SegmentEnd:   date(2016, 4, 16),
				Location:     time.UTC,
			},
			want: "15",
		},
		{
			name: "lead-in from the 15th to the 1st across May",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromFloat(249.95),
				PeriodStart:  date(2016, 5, 1),
				PeriodEnd:    date(2016, 6, 1),
				SegmentStart: date(2016, 5, 15),
				SegmentEnd:   date(2016, 6, 1),
				Location:     time.UTC,
			},
			// 17/31 of 249.95
			want: "137.07",
		},
		{
			name: "empty segment bills zero",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromInt(100),
				PeriodStart:  date(2016, 5, 1),
				PeriodEnd:    date(2016, 6, 1),
				SegmentStart: date(2016, 5, 10),
				SegmentEnd:   date(2016, 5, 10),
				Location:     time.UTC,
			},
			want: "0",
		},
		{
			name: "missing location",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromInt(100),
				PeriodStart:  date(2016, 5, 1),
				PeriodEnd:    date(2016, 6, 1),
				SegmentStart: date(2016, 5, 1),
				SegmentEnd:   date(2016, 5, 10),
			},
			wantErr: true,
		},
		{
			name: "inverted period",
			params: ProrationParams{
				PeriodAmount: decimal.NewFromInt(100),
				PeriodStart:  date(2016, 6, 1),
				PeriodEnd:    date(2016, 5, 1),
				SegmentStart: date(2016, 5, 1),
				SegmentEnd:   date(2016, 5, 10),
				Location:     time.UTC,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Prorate(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", got, tt.want)
		})
	}
}

func TestFixedDaysProration(t *testing.T) {
	calc, err := NewCalculator(types.ProrationModeFixedDays, 30)
	require.NoError(t, err)

	t.Run("eight days of a 19.95 monthly plan", func(t *testing.T) {
		got, err := calc.Prorate(ProrationParams{
			PeriodAmount: decimal.NewFromFloat(19.95),
			PeriodStart:  date(2012, 5, 15),
			PeriodEnd:    date(2012, 6, 15),
			SegmentStart: date(2012, 5, 15),
			SegmentEnd:   date(2012, 5, 23),
			Location:     time.UTC,
		})
		require.NoError(t, err)
		// 19.95 * 8/30 = 5.32
		assert.True(t, got.Equal(decimal.NewFromFloat(5.32)), "got %s", got)
	})

	t.Run("same segment length bills the same across months", func(t *testing.T) {
		feb, err := calc.Prorate(ProrationParams{
			PeriodAmount: decimal.NewFromInt(100),
			PeriodStart:  date(2016, 2, 1),
			PeriodEnd:    date(2016, 3, 1),
			SegmentStart: date(2016, 2, 1),
			SegmentEnd:   date(2016, 2, 9),
			Location:     time.UTC,
		})
		require.NoError(t, err)

		jul, err := calc.Prorate(ProrationParams{
			PeriodAmount: decimal.NewFromInt(100),
			PeriodStart:  date(2016, 7, 1),
			PeriodEnd:    date(2016, 8, 1),
			SegmentStart: date(2016, 7, 1),
			SegmentEnd:   date(2016, 7, 9),
			Location:     time.UTC,
		})
		require.NoError(t, err)

		assert.True(t, feb.Equal(jul), "feb %s jul %s", feb, jul)
	})

	t.Run("segment longer than fixed days caps at full amount", func(t *testing.T) {
		got, err := calc.Prorate(ProrationParams{
			PeriodAmount: decimal.NewFromInt(100),
			PeriodStart:  date(2016, 7, 1),
			PeriodEnd:    date(2016, 8, 5),
			SegmentStart: date(2016, 7, 1),
			SegmentEnd:   date(2016, 8, 4),
			Location:     time.UTC,
		})
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(100)), "got %s", got)
	})
}

func TestProrationRounding(t *testing.T) {
	calc, err := NewCalculator(types.ProrationModeCalendarDays, 0)
	require.NoError(t, err)

	// 10/3 would repeat forever; the calculator rounds half-even to cents.
	got, err := calc.Prorate(ProrationParams{
		PeriodAmount: decimal.NewFromInt(10),
		PeriodStart:  date(2016, 5, 1),
		PeriodEnd:    date(2016, 5, 4),
		SegmentStart: date(2016, 5, 1),
		SegmentEnd:   date(2016, 5, 2),
		Location:     time.UTC,
	})
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromFloat(3.33)), "got %s", got)
}
