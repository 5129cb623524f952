package types

import (
	"fmt"
	"time"
)

// NextBillingDate calculates the next billing date based on the given start time,
// billing period, and billing period unit (the frequency multiplier).
// For example:
// - If billing period is MONTHLY and unit is 2, we add two months.
// - If billing period is ANNUAL and unit is 1, we add one year.
// - If billing period is WEEKLY and unit is 3, we add 21 days (3 weeks).
// This leverages clamped date addition, which properly handles month-boundary
// issues (a Jan 31 anchor bills on Feb 28).
func NextBillingDate(start time.Time, unit int, period BillingPeriod) (time.Time, error) {
	if unit <= 0 {
		return start, fmt.Errorf("billing period unit must be a positive integer, got %d", unit)
	}

	switch period {
	case BILLING_PERIOD_DAILY:
		return start.AddDate(0, 0, unit), nil
	case BILLING_PERIOD_WEEKLY:
		return start.AddDate(0, 0, 7*unit), nil
	case BILLING_PERIOD_MONTHLY:
		return AddClampedDate(start, 0, unit), nil
	case BILLING_PERIOD_ANNUAL:
		return AddClampedDate(start, unit, 0), nil
	default:
		return start, fmt.Errorf("invalid billing period type: %s", period)
	}
}

// AddClampedDate adds years/months to t, clamping the day of month to the
// last valid day instead of letting it roll over into the next month the way
// time.AddDate does.
func AddClampedDate(t time.Time, years, months int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d
	if newD > lastDay {
		// Clamp the carried-over day of month to the last valid day
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
}

// NextBoundaryAfter returns the earliest period boundary strictly after the
// given instant, where boundaries are anchor + n*period for n >= 0. The anchor
// is the date that fixed the billing cycle day, so a boundary falling on a
// short month clamps to its last day.
func NextBoundaryAfter(anchor, after time.Time, unit int, period BillingPeriod) (time.Time, error) {
	if !anchor.After(after) {
		// Walk forward from the anchor. Periods are at least a day long so
		// this terminates quickly for any realistic date span.
		boundary := anchor
		for n := 1; ; n++ {
			next, err := nthBillingDate(anchor, n, unit, period)
			if err != nil {
				return boundary, err
			}
			if next.After(after) {
				return next, nil
			}
			boundary = next
		}
	}
	return anchor, nil
}

// LastBoundaryOnOrBefore returns the latest period boundary at or before the
// given instant, where boundaries are anchor + n*period for any integer n.
func LastBoundaryOnOrBefore(anchor, at time.Time, unit int, period BillingPeriod) (time.Time, error) {
	// Always compute boundaries relative to the original anchor so that
	// day-of-month clamping never drifts (Feb 28 stepped forward must yield
	// Mar 31 for a day-31 anchor, not Mar 28).
	if anchor.After(at) {
		for n := -1; ; n-- {
			b, err := nthBillingDate(anchor, n, unit, period)
			if err != nil {
				return anchor, err
			}
			if !b.After(at) {
				return b, nil
			}
		}
	}
	last := anchor
	for n := 1; ; n++ {
		b, err := nthBillingDate(anchor, n, unit, period)
		if err != nil {
			return anchor, err
		}
		if b.After(at) {
			return last, nil
		}
		last = b
	}
}

// nthBillingDate computes anchor + n periods in one step so that repeated
// clamping does not drift (Jan 31 -> Feb 28 -> Mar 28 would be wrong; the
// anchor day 31 must clamp per-month to Mar 31).
func nthBillingDate(anchor time.Time, n, unit int, period BillingPeriod) (time.Time, error) {
	switch period {
	case BILLING_PERIOD_DAILY:
		return anchor.AddDate(0, 0, n*unit), nil
	case BILLING_PERIOD_WEEKLY:
		return anchor.AddDate(0, 0, 7*n*unit), nil
	case BILLING_PERIOD_MONTHLY:
		return AddClampedDate(anchor, 0, n*unit), nil
	case BILLING_PERIOD_ANNUAL:
		return AddClampedDate(anchor, n*unit, 0), nil
	default:
		return anchor, fmt.Errorf("invalid billing period type: %s", period)
	}
}

// FixedOffsetLocation returns a fixed UTC-offset location for the given offset
// in minutes. Accounts pin this offset at creation time so DST transitions do
// not retroactively shift historical billing cycle days.
func FixedOffsetLocation(offsetMinutes int) *time.Location {
	sign := "+"
	mins := offsetMinutes
	if mins < 0 {
		sign = "-"
		mins = -mins
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, mins/60, mins%60)
	return time.FixedZone(name, offsetMinutes*60)
}

// DaysBetween counts calendar days between two instants in the given location
// (inclusive start day, exclusive end day). Returns 0 when end <= start.
func DaysBetween(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.In(loc).Year(), start.In(loc).Month(), start.In(loc).Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.In(loc).Year(), end.In(loc).Month(), end.In(loc).Day(), 0, 0, 0, 0, loc)

	days := 0
	current := startDay
	for current.Before(endDay) {
		days++
		next := current.Add(24 * time.Hour)
		current = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
	}
	return days
}
