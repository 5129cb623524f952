package subscription

import (
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/types"
)

// Anchor is the resolved billing anchor for an event: the date that fixes the
// billing cycle day from that event on.
type Anchor struct {
	Date time.Time
	BCD  int
}

// AlignmentResolver computes the anchor date that fixes the billing cycle day
// for each timeline event. The anchor's day-of-month is taken in the
// account's fixed UTC offset, never a live IANA zone, so DST transitions do
// not retroactively shift historical BCDs.
type AlignmentResolver struct{}

func NewAlignmentResolver() *AlignmentResolver {
	return &AlignmentResolver{}
}

// ResolveAnchor computes the anchor for ev given the previous event and its
// resolved anchor (both nil for the first event). Rules, in order of
// precedence:
//  1. on creation the anchor is the billing start date and the BCD is the
//     anchor's day-of-month in the account's offset (unless the account
//     carries an explicit BCD);
//  2. on a billing period change whose new recurring phase is not already
//     running, the anchor moves to the date the new recurring phase starts
//     and the BCD is recomputed from it;
//  3. pause, resume and cancellation never change the anchor or the BCD.
func (r *AlignmentResolver) ResolveAnchor(acct *account.Account, sub *Subscription, prevEvent *BillingEvent, prevAnchor *Anchor, ev *BillingEvent) Anchor {
	loc := acct.Location()

	switch ev.Type {
	case types.BillingEventCreate:
		return anchorFromDate(sub.BillingStartDate, acct, loc)

	case types.BillingEventChange, types.BillingEventPhase:
		if ev.PhaseType != types.PhaseTypeEvergreen {
			// A fixed-length lead-in phase does not start a recurring
			// period; the anchor moves once its evergreen phase begins
			return keepOr(prevAnchor, sub, acct, loc)
		}
		if prevEvent != nil && prevAnchor != nil &&
			prevEvent.PhaseType == types.PhaseTypeEvergreen &&
			prevEvent.BillingPeriod == ev.BillingPeriod {
			// The new recurring phase is already running at this period
			return *prevAnchor
		}
		return anchorFromDate(ev.EffectiveDate, acct, loc)

	case types.BillingEventBCDChange:
		base := keepOr(prevAnchor, sub, acct, loc)
		return Anchor{Date: base.Date, BCD: ev.BCD}

	default:
		// CANCEL, UNCANCEL, PAUSE, RESUME
		return keepOr(prevAnchor, sub, acct, loc)
	}
}

func keepOr(prev *Anchor, sub *Subscription, acct *account.Account, loc *time.Location) Anchor {
	if prev != nil {
		return *prev
	}
	return anchorFromDate(sub.BillingStartDate, acct, loc)
}

func anchorFromDate(date time.Time, acct *account.Account, loc *time.Location) Anchor {
	bcd := acct.BCD
	if bcd == 0 {
		bcd = date.In(loc).Day()
	}
	return Anchor{Date: date, BCD: bcd}
}
