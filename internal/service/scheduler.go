package service

import (
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// Segment is one billable slice of a subscription timeline: the half-open
// range [Start, End) governed by a single plan phase and catalog version,
// together with the enclosing full billing period used for proration.
type Segment struct {
	SubscriptionID    string
	Start             time.Time
	End               time.Time
	PeriodStart       time.Time
	PeriodEnd         time.Time
	PlanName          string
	PhaseName         string
	PhaseType         types.PhaseType
	BillingPeriod     types.BillingPeriod
	BillingPeriodUnit int
	FixedPrice        decimal.Decimal
	RecurringPrice    decimal.Decimal
	Currency          string
	CatalogVersionID  string
}

// IsFullPeriod reports whether the segment spans its entire billing period.
func (s Segment) IsFullPeriod() bool {
	return s.Start.Equal(s.PeriodStart) && s.End.Equal(s.PeriodEnd)
}

// BillingPeriodScheduler walks a timeline and produces the deterministic
// stream of billing period boundaries: phase boundaries, BCD-aligned
// recurring boundaries and pause/resume gaps.
type BillingPeriodScheduler struct {
	log *logger.Logger
}

func NewBillingPeriodScheduler(log *logger.Logger) *BillingPeriodScheduler {
	return &BillingPeriodScheduler{log: log}
}

// Segments derives all billing segments of the timeline up to (and not
// including) upTo. Fixed-length phases end exactly at phaseStart + duration
// regardless of BCD (those ends exist as PHASE events on the timeline);
// evergreen intervals are cut at BCD-aligned recurring boundaries.
func (s *BillingPeriodScheduler) Segments(acct *account.Account, timeline *subscription.Timeline, upTo time.Time) ([]Segment, error) {
	loc := acct.Location()
	events := timeline.Events()

	var segments []Segment
	var snapshot *subscription.BillingEvent
	billing := false

	for i, ev := range events {
		switch ev.Type {
		case types.BillingEventCancel:
			// Nothing bills after a cancellation; an uncancel removes the
			// cancel event instead of reactivating past it
			return segments, nil
		case types.BillingEventPause:
			billing = false
		case types.BillingEventResume:
			snapshot = ev
			billing = true
		case types.BillingEventUncancel:
			// marker only
		default:
			snapshot = ev
			billing = true
		}

		if !billing || snapshot == nil {
			continue
		}

		intervalStart := ev.EffectiveDate
		intervalEnd := upTo
		if i+1 < len(events) {
			next := events[i+1].EffectiveDate
			if next.Before(intervalEnd) {
				intervalEnd = next
			}
		}
		if !intervalStart.Before(intervalEnd) {
			continue
		}

		slice, err := s.sliceInterval(snapshot, intervalStart, intervalEnd, loc)
		if err != nil {
			return nil, err
		}
		segments = append(segments, slice...)
	}

	return segments, nil
}

// sliceInterval cuts one billing-state interval into segments: a single
// slice for fixed-length phases, BCD-aligned recurring slices for evergreen
// phases.
func (s *BillingPeriodScheduler) sliceInterval(ev *subscription.BillingEvent, intervalStart, intervalEnd time.Time, loc *time.Location) ([]Segment, error) {
	if ev.PhaseType != types.PhaseTypeEvergreen {
		// The fixed-length phase itself is the proration period
		return []Segment{segmentFromEvent(ev, intervalStart, intervalEnd, intervalStart, intervalEnd)}, nil
	}

	anchor := subscription.Anchor{Date: ev.AnchorDate, BCD: ev.BCD}
	var segments []Segment
	cursor := intervalStart
	for cursor.Before(intervalEnd) {
		boundary, err := nextBCDBoundaryAfter(anchor, cursor, ev.BillingPeriodUnit, ev.BillingPeriod, loc)
		if err != nil {
			return nil, err
		}
		periodStart, err := lastBCDBoundaryOnOrBefore(anchor, cursor, ev.BillingPeriodUnit, ev.BillingPeriod, loc)
		if err != nil {
			return nil, err
		}

		segEnd := boundary
		if intervalEnd.Before(segEnd) {
			segEnd = intervalEnd
		}
		segments = append(segments, segmentFromEvent(ev, cursor, segEnd, periodStart, boundary))
		cursor = segEnd
	}
	return segments, nil
}

// NextWakeUp returns the earliest upcoming trigger across the given
// timelines: next phase end or lifecycle event, or next BCD-aligned recurring
// boundary of an active evergreen phase. Nil when nothing is pending.
func (s *BillingPeriodScheduler) NextWakeUp(acct *account.Account, timelines []*subscription.Timeline, after time.Time) (*time.Time, error) {
	loc := acct.Location()
	var earliest *time.Time

	consider := func(t time.Time) {
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
	}

	for _, timeline := range timelines {
		if next := timeline.NextEventAfter(after); next != nil {
			consider(next.EffectiveDate)
		}

		// The billing state running at the reference instant
		current := activeEventAt(timeline, after)
		if current == nil || current.PhaseType != types.PhaseTypeEvergreen {
			continue
		}
		anchor := subscription.Anchor{Date: current.AnchorDate, BCD: current.BCD}
		boundary, err := nextBCDBoundaryAfter(anchor, after, current.BillingPeriodUnit, current.BillingPeriod, loc)
		if err != nil {
			return nil, err
		}
		consider(boundary)
	}

	return earliest, nil
}

// activeEventAt returns the billing-state event in effect at the instant, or
// nil if billing is stopped (cancelled, paused, not started).
func activeEventAt(timeline *subscription.Timeline, at time.Time) *subscription.BillingEvent {
	var snapshot *subscription.BillingEvent
	billing := false
	for _, ev := range timeline.Events() {
		if ev.EffectiveDate.After(at) {
			break
		}
		switch ev.Type {
		case types.BillingEventCancel:
			return nil
		case types.BillingEventPause:
			billing = false
		case types.BillingEventResume:
			snapshot = ev
			billing = true
		case types.BillingEventUncancel:
		default:
			snapshot = ev
			billing = true
		}
	}
	if !billing {
		return nil
	}
	return snapshot
}

func segmentFromEvent(ev *subscription.BillingEvent, start, end, periodStart, periodEnd time.Time) Segment {
	return Segment{
		SubscriptionID:    ev.SubscriptionID,
		Start:             start,
		End:               end,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		PlanName:          ev.PlanName,
		PhaseName:         ev.PhaseName,
		PhaseType:         ev.PhaseType,
		BillingPeriod:     ev.BillingPeriod,
		BillingPeriodUnit: ev.BillingPeriodUnit,
		FixedPrice:        ev.FixedPrice,
		RecurringPrice:    ev.RecurringPrice,
		Currency:          ev.Currency,
		CatalogVersionID:  ev.CatalogVersionID,
	}
}

// nextBCDBoundaryAfter returns the earliest recurring boundary strictly after
// the given instant. Monthly and annual boundaries fall on the billing cycle
// day, clamped per month; weekly and daily boundaries step from the anchor.
func nextBCDBoundaryAfter(a subscription.Anchor, after time.Time, unit int, period types.BillingPeriod, loc *time.Location) (time.Time, error) {
	switch period {
	case types.BILLING_PERIOD_MONTHLY, types.BILLING_PERIOD_ANNUAL:
		for n := 0; ; n++ {
			b := bcdBoundary(a, n, unit, period, loc)
			if b.After(after) {
				return b, nil
			}
		}
	default:
		anchorDay := midnightIn(a.Date, loc)
		return types.NextBoundaryAfter(anchorDay, after, unit, period)
	}
}

// lastBCDBoundaryOnOrBefore returns the latest recurring boundary at or
// before the given instant.
func lastBCDBoundaryOnOrBefore(a subscription.Anchor, at time.Time, unit int, period types.BillingPeriod, loc *time.Location) (time.Time, error) {
	switch period {
	case types.BILLING_PERIOD_MONTHLY, types.BILLING_PERIOD_ANNUAL:
		for n := 0; ; n-- {
			b := bcdBoundary(a, n, unit, period, loc)
			if !b.After(at) {
				return b, nil
			}
		}
	default:
		anchorDay := midnightIn(a.Date, loc)
		return types.LastBoundaryOnOrBefore(anchorDay, at, unit, period)
	}
}

// bcdBoundary computes the n-th boundary (n may be negative) relative to the
// anchor's month, always clamping the BCD to the target month so that a
// day-31 cycle bills on Feb 28 and back on Mar 31.
func bcdBoundary(a subscription.Anchor, n, unit int, period types.BillingPeriod, loc *time.Location) time.Time {
	d := a.Date.In(loc)
	year, month := d.Year(), int(d.Month())

	switch period {
	case types.BILLING_PERIOD_ANNUAL:
		year += n * unit
	default:
		month += n * unit
		for month > 12 {
			month -= 12
			year++
		}
		for month < 1 {
			month += 12
			year--
		}
	}

	day := a.BCD
	if last := lastDayOfMonth(year, time.Month(month), loc); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

func midnightIn(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
