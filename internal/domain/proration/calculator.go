package proration

import (
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// CurrencyPrecision is the scale amounts are rounded to, using
// round-half-even.
const CurrencyPrecision = 2

// ProrationParams describes a (possibly partial) billing segment within its
// enclosing billing period.
type ProrationParams struct {
	// PeriodAmount is the full-period plan price
	PeriodAmount decimal.Decimal
	// PeriodStart/PeriodEnd bound the full billing period containing the
	// segment
	PeriodStart time.Time
	PeriodEnd   time.Time
	// SegmentStart/SegmentEnd bound the portion being billed
	SegmentStart time.Time
	SegmentEnd   time.Time
	// Location is the account's fixed-offset location for day counting
	Location *time.Location
}

// Calculator computes the amount due for a partial billing segment.
type Calculator interface {
	Prorate(params ProrationParams) (decimal.Decimal, error)
}

// NewCalculator creates a proration calculator for the given mode. fixedDays
// is only used in fixed-days mode.
func NewCalculator(mode types.ProrationMode, fixedDays int) (Calculator, error) {
	switch mode {
	case types.ProrationModeFixedDays:
		if fixedDays <= 0 {
			return nil, ierr.NewError("fixed proration days must be positive").
				WithReportableDetails(map[string]any{
					"fixed_days": fixedDays,
				}).
				Mark(ierr.ErrValidation)
		}
		return &fixedDaysCalculator{days: fixedDays}, nil
	case types.ProrationModeCalendarDays:
		return &calendarDaysCalculator{}, nil
	default:
		return nil, ierr.NewError("invalid proration mode").
			WithReportableDetails(map[string]any{
				"mode": mode,
			}).
			Mark(ierr.ErrValidation)
	}
}

// calendarDaysCalculator prorates against the actual day count of the
// enclosing calendar period.
type calendarDaysCalculator struct{}

func (c *calendarDaysCalculator) Prorate(params ProrationParams) (decimal.Decimal, error) {
	if err := validateParams(params); err != nil {
		return decimal.Zero, err
	}
	if full, amount := fullOrEmptySegment(params); full {
		return amount, nil
	}

	totalDays := types.DaysBetween(params.PeriodStart, params.PeriodEnd, params.Location)
	if totalDays <= 0 {
		return decimal.Zero, ierr.NewError("invalid billing period").
			WithHintf("total days is zero or negative (%v to %v)", params.PeriodStart, params.PeriodEnd).
			Mark(ierr.ErrValidation)
	}
	segmentDays := types.DaysBetween(params.SegmentStart, params.SegmentEnd, params.Location)

	return prorated(params.PeriodAmount, segmentDays, totalDays), nil
}

// fixedDaysCalculator prorates against a fixed day count, independent of the
// calendar period length. An 8-day lead-in on a monthly plan bills the same
// amount whichever month it falls into.
type fixedDaysCalculator struct {
	days int
}

func (c *fixedDaysCalculator) Prorate(params ProrationParams) (decimal.Decimal, error) {
	if err := validateParams(params); err != nil {
		return decimal.Zero, err
	}
	if full, amount := fullOrEmptySegment(params); full {
		return amount, nil
	}

	segmentDays := types.DaysBetween(params.SegmentStart, params.SegmentEnd, params.Location)
	return prorated(params.PeriodAmount, segmentDays, c.days), nil
}

// fullOrEmptySegment short-circuits the two exact cases: a zero-length
// segment bills zero, a segment equal to the full period bills the full plan
// amount with no rounding artifacts.
func fullOrEmptySegment(params ProrationParams) (bool, decimal.Decimal) {
	if !params.SegmentStart.Before(params.SegmentEnd) {
		return true, decimal.Zero
	}
	if params.SegmentStart.Equal(params.PeriodStart) && params.SegmentEnd.Equal(params.PeriodEnd) {
		return true, params.PeriodAmount.RoundBank(CurrencyPrecision)
	}
	return false, decimal.Zero
}

func prorated(amount decimal.Decimal, segmentDays, totalDays int) decimal.Decimal {
	if segmentDays <= 0 {
		return decimal.Zero
	}
	if segmentDays >= totalDays {
		return amount.RoundBank(CurrencyPrecision)
	}
	fraction := decimal.NewFromInt(int64(segmentDays)).Div(decimal.NewFromInt(int64(totalDays)))
	return amount.Mul(fraction).RoundBank(CurrencyPrecision)
}

func validateParams(params ProrationParams) error {
	if params.PeriodStart.IsZero() || params.PeriodEnd.IsZero() {
		return ierr.NewError("billing period start and end dates are required").
			Mark(ierr.ErrValidation)
	}
	if params.PeriodEnd.Before(params.PeriodStart) {
		return ierr.NewError("billing period end date cannot be before start date").
			Mark(ierr.ErrValidation)
	}
	if params.Location == nil {
		return ierr.NewError("location is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
