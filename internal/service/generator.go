package service

import (
	"context"
	"sort"
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/credit"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	"github.com/billcraft/billcraft/internal/domain/proration"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// billingState is the full input of one invoice computation: everything the
// generator reads, loaded (or forked) up front. The computation itself is a
// pure function of this state, the target date and "now" — the real run and
// the dry run share it verbatim, so their outputs are identical by
// construction.
type billingState struct {
	account   *account.Account
	subs      []*subscription.Subscription
	timelines map[string]*subscription.Timeline
	// committed holds COMMITTED invoices only; drafts and voids carry no
	// billing effect
	committed []*invoice.Invoice
	// credits is the FIFO-ordered ledger, deep-copied so consumption can be
	// simulated and rolled back
	credits []*credit.Entry
}

func (st *billingState) clone() *billingState {
	fork := &billingState{
		account:   st.account,
		subs:      make([]*subscription.Subscription, len(st.subs)),
		timelines: make(map[string]*subscription.Timeline, len(st.timelines)),
		committed: st.committed,
		credits:   make([]*credit.Entry, len(st.credits)),
	}
	for i, sub := range st.subs {
		s := *sub
		fork.subs[i] = &s
	}
	for id, tl := range st.timelines {
		fork.timelines[id] = tl.Clone()
	}
	for i, e := range st.credits {
		c := *e
		fork.credits[i] = &c
	}
	return fork
}

// invoiceProposal is the computed outcome before anything is persisted.
type invoiceProposal struct {
	items []*invoice.InvoiceItem
	// newCredits are the ledger entries the repairs generate; their source
	// invoice/item IDs are filled in at persist time
	newCredits []*credit.Entry
	// chargedThrough is the new charged-through date per subscription
	chargedThrough map[string]time.Time
	// repairedSubs lists subscriptions whose dirty marker clears on commit
	repairedSubs []string
}

// billedRange is the effective consumed range of a committed item: the full
// item range, shortened to the consumed head when the item has been repaired.
type billedRange struct {
	start, end time.Time
	itemID     string
	planName   string
	phaseName  string
}

// itemGenerator computes the items an invoice run owes for one account. It
// never touches a repository: all state comes in through billingState.
type itemGenerator struct {
	scheduler *BillingPeriodScheduler
	prorator  proration.Calculator
	log       *logger.Logger
}

func newItemGenerator(scheduler *BillingPeriodScheduler, prorator proration.Calculator, log *logger.Logger) *itemGenerator {
	return &itemGenerator{
		scheduler: scheduler,
		prorator:  prorator,
		log:       log,
	}
}

// compute walks every subscription of the account and produces, in order:
// repair and credit items for ranges invalidated by retroactive changes, then
// in-advance charges for every unbilled segment starting on or before the
// target date. A double-billing condition aborts the whole computation.
func (g *itemGenerator) compute(ctx context.Context, st *billingState, targetDate, now time.Time) (*invoiceProposal, error) {
	proposal := &invoiceProposal{
		chargedThrough: make(map[string]time.Time),
	}

	committedItems := collectCommittedItems(st.committed)
	repairs := collectRepairs(st.committed)

	for _, sub := range st.subs {
		tl, ok := st.timelines[sub.ID]
		if !ok {
			continue
		}

		// Billing runs in advance: a segment starting exactly on the target
		// date must close at its natural boundary, so the slicing horizon
		// reaches one billing period past the target. Committed items may
		// reach further when earlier runs billed ahead.
		horizon := targetDate
		for _, ev := range tl.Events() {
			if ev.BillingPeriod == "" || ev.BillingPeriod == types.BILLING_PERIOD_NONE || ev.BillingPeriodUnit <= 0 {
				continue
			}
			next, err := types.NextBillingDate(targetDate, ev.BillingPeriodUnit, ev.BillingPeriod)
			if err != nil {
				return nil, err
			}
			if next.After(horizon) {
				horizon = next
			}
		}
		for _, item := range committedItems[sub.ID] {
			if item.EndDate != nil && item.EndDate.After(horizon) {
				horizon = *item.EndDate
			}
		}
		segments, err := g.scheduler.Segments(st.account, tl, horizon)
		if err != nil {
			return nil, err
		}

		billed, err := g.repairSubscription(proposal, st, sub, tl, segments, committedItems[sub.ID], repairs, now)
		if err != nil {
			return nil, err
		}
		if err := g.chargeSubscription(proposal, st, sub, segments, billed, targetDate); err != nil {
			return nil, err
		}
	}

	return proposal, nil
}

// repairSubscription nets out committed items no longer (fully) backed by the
// current timeline and returns the effective billed ranges that remain. For
// every shortened item it emits a non-positive REPAIR_ADJ linked to the item
// plus a CBA_ADJ moving the same amount into the account credit balance, so
// that original + repair = consumed exactly.
func (g *itemGenerator) repairSubscription(
	proposal *invoiceProposal,
	st *billingState,
	sub *subscription.Subscription,
	tl *subscription.Timeline,
	segments []Segment,
	items []*invoice.InvoiceItem,
	repairs map[string]*invoice.InvoiceItem,
	now time.Time,
) ([]billedRange, error) {
	var billed []billedRange
	dirty := tl.DirtyFrom()
	if dirty != nil {
		proposal.repairedSubs = append(proposal.repairedSubs, sub.ID)
	}

	for _, item := range items {
		if item.Type != types.InvoiceItemRecurring && item.Type != types.InvoiceItemUsage {
			continue
		}
		if item.EndDate == nil {
			continue
		}

		if prior, ok := repairs[item.ID]; ok {
			// Already repaired: only the consumed head still counts
			if prior.StartDate.After(item.StartDate) {
				billed = append(billed, billedRange{start: item.StartDate, end: prior.StartDate, itemID: item.ID, planName: item.PlanName, phaseName: item.PhaseName})
			}
			continue
		}

		if dirty == nil || !item.EndDate.After(*dirty) {
			billed = append(billed, billedRange{start: item.StartDate, end: *item.EndDate, itemID: item.ID, planName: item.PlanName, phaseName: item.PhaseName})
			continue
		}

		covered := coverageEnd(segments, item)
		if !covered.Before(*item.EndDate) {
			billed = append(billed, billedRange{start: item.StartDate, end: *item.EndDate, itemID: item.ID, planName: item.PlanName, phaseName: item.PhaseName})
			continue
		}

		consumed := decimal.Zero
		if covered.After(item.StartDate) {
			var err error
			consumed, err = g.prorator.Prorate(proration.ProrationParams{
				PeriodAmount: item.Amount,
				PeriodStart:  item.StartDate,
				PeriodEnd:    *item.EndDate,
				SegmentStart: item.StartDate,
				SegmentEnd:   covered,
				Location:     st.account.Location(),
			})
			if err != nil {
				return nil, err
			}
		}

		repairAmount := consumed.Sub(item.Amount)
		if repairAmount.IsZero() {
			billed = append(billed, billedRange{start: item.StartDate, end: *item.EndDate, itemID: item.ID, planName: item.PlanName, phaseName: item.PhaseName})
			continue
		}

		// Credit lands at the earlier of now and the repaired segment's
		// start, but never before the retroactive change itself
		creditDate := now
		if item.StartDate.Before(creditDate) {
			creditDate = item.StartDate
		}
		if creditDate.Before(*dirty) {
			creditDate = *dirty
		}

		linkedID := item.ID
		repairItem := &invoice.InvoiceItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
			AccountID:      sub.AccountID,
			SubscriptionID: sub.ID,
			Type:           types.InvoiceItemRepairAdj,
			StartDate:      covered,
			EndDate:        item.EndDate,
			Amount:         repairAmount,
			Currency:       item.Currency,
			LinkedItemID:   &linkedID,
			PlanName:       item.PlanName,
			PhaseName:      item.PhaseName,
		}
		repairID := repairItem.ID
		cbaItem := &invoice.InvoiceItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
			AccountID:      sub.AccountID,
			SubscriptionID: sub.ID,
			Type:           types.InvoiceItemCBAAdj,
			StartDate:      creditDate,
			Amount:         repairAmount.Neg(),
			Currency:       item.Currency,
			LinkedItemID:   &repairID,
		}
		proposal.items = append(proposal.items, repairItem, cbaItem)
		proposal.newCredits = append(proposal.newCredits, &credit.Entry{
			ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ENTRY),
			AccountID:     sub.AccountID,
			Currency:      item.Currency,
			Amount:        repairAmount.Neg(),
			Remaining:     repairAmount.Neg(),
			EffectiveDate: creditDate,
			SourceItemID:  cbaItem.ID,
		})
		if covered.After(item.StartDate) {
			billed = append(billed, billedRange{start: item.StartDate, end: covered, itemID: item.ID, planName: item.PlanName, phaseName: item.PhaseName})
		}

		g.log.Infow("repaired invoice item",
			"subscription_id", sub.ID,
			"item_id", item.ID,
			"original", item.Amount,
			"consumed", consumed,
			"repair", repairAmount,
		)
	}

	return billed, nil
}

// chargeSubscription emits in-advance charges for every segment that starts
// on or before the target date and is not already covered by an effective
// billed range. A partial overlap with an effective range is an internal
// consistency violation and surfaces as a double-billing error.
func (g *itemGenerator) chargeSubscription(
	proposal *invoiceProposal,
	st *billingState,
	sub *subscription.Subscription,
	segments []Segment,
	billed []billedRange,
	targetDate time.Time,
) error {
	fixedBilled := collectFixedStarts(st.committed, sub.ID)
	chargedThrough := time.Time{}
	if sub.ChargedThroughDate != nil {
		chargedThrough = *sub.ChargedThroughDate
	}

	for _, seg := range segments {
		if seg.Start.After(targetDate) {
			break
		}
		if !seg.Start.Before(seg.End) {
			continue
		}

		if err := g.chargeFixed(proposal, st, sub, seg, fixedBilled); err != nil {
			return err
		}

		if seg.RecurringPrice.IsZero() {
			if seg.End.After(chargedThrough) {
				chargedThrough = seg.End
			}
			continue
		}

		switch classifyCoverage(billed, seg) {
		case coverageFull:
			if seg.End.After(chargedThrough) {
				chargedThrough = seg.End
			}
			continue
		case coveragePartial:
			return ierr.NewError("segment partially overlaps a billed range").
				WithHint("The account requires operator remediation before further invoicing").
				WithReportableDetails(map[string]any{
					"subscription_id": sub.ID,
					"segment_start":   seg.Start,
					"segment_end":     seg.End,
					"plan":            seg.PlanName,
					"phase":           seg.PhaseName,
				}).
				Mark(ierr.ErrDoubleBilling)
		}

		amount, err := g.prorator.Prorate(proration.ProrationParams{
			PeriodAmount: seg.RecurringPrice,
			PeriodStart:  seg.PeriodStart,
			PeriodEnd:    seg.PeriodEnd,
			SegmentStart: seg.Start,
			SegmentEnd:   seg.End,
			Location:     st.account.Location(),
		})
		if err != nil {
			return err
		}

		end := seg.End
		proposal.items = append(proposal.items, &invoice.InvoiceItem{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
			AccountID:      sub.AccountID,
			SubscriptionID: sub.ID,
			Type:           types.InvoiceItemRecurring,
			StartDate:      seg.Start,
			EndDate:        &end,
			Amount:         amount,
			Currency:       seg.Currency,
			PlanName:       seg.PlanName,
			PhaseName:      seg.PhaseName,
		})
		billed = append(billed, billedRange{start: seg.Start, end: seg.End, planName: seg.PlanName, phaseName: seg.PhaseName})
		if seg.End.After(chargedThrough) {
			chargedThrough = seg.End
		}
	}

	if !chargedThrough.IsZero() {
		proposal.chargedThrough[sub.ID] = chargedThrough
	}
	return nil
}

// chargeFixed emits the one-time fixed charge of a phase the first time any
// of its segments is billed. Trial phases produce a zero-amount marker item.
func (g *itemGenerator) chargeFixed(
	proposal *invoiceProposal,
	st *billingState,
	sub *subscription.Subscription,
	seg Segment,
	fixedBilled map[string]bool,
) error {
	if seg.PhaseType == types.PhaseTypeEvergreen && seg.FixedPrice.IsZero() {
		return nil
	}
	key := seg.PlanName + "/" + seg.PhaseName
	if fixedBilled[key] {
		return nil
	}
	for _, item := range proposal.items {
		if item.SubscriptionID == sub.ID && item.Type == types.InvoiceItemFixed &&
			item.PlanName == seg.PlanName && item.PhaseName == seg.PhaseName {
			return nil
		}
	}
	fixedBilled[key] = true

	proposal.items = append(proposal.items, &invoice.InvoiceItem{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
		AccountID:      sub.AccountID,
		SubscriptionID: sub.ID,
		Type:           types.InvoiceItemFixed,
		StartDate:      seg.Start,
		Amount:         seg.FixedPrice,
		Currency:       seg.Currency,
		PlanName:       seg.PlanName,
		PhaseName:      seg.PhaseName,
	})
	return nil
}

// consumeCredits draws the account credit balance against the invoice's
// positive charges, oldest credit first, including credits generated by this
// very run. It returns the consumption CBA_ADJ item, or nil when nothing was
// drawn.
func consumeCredits(st *billingState, proposal *invoiceProposal, items []*invoice.InvoiceItem, now time.Time) *invoice.InvoiceItem {
	charges := decimal.Zero
	for _, item := range items {
		if item.Type.IsAdjustment() || item.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		charges = charges.Add(item.Amount)
	}
	if charges.IsZero() {
		return nil
	}

	available := make([]*credit.Entry, 0, len(st.credits)+len(proposal.newCredits))
	available = append(available, st.credits...)
	available = append(available, proposal.newCredits...)
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].EffectiveDate.Before(available[j].EffectiveDate)
	})

	_, consumed := credit.ConsumeFIFO(available, charges)
	if consumed.IsZero() {
		return nil
	}

	return &invoice.InvoiceItem{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_ITEM),
		AccountID: st.account.ID,
		Type:      types.InvoiceItemCBAAdj,
		StartDate: now,
		Amount:    consumed.Neg(),
		Currency:  st.account.Currency,
	}
}

// coverageEnd computes how far into the item's range the current timeline
// still bills the same plan phase, scanning segments contiguously from the
// item's start.
func coverageEnd(segments []Segment, item *invoice.InvoiceItem) time.Time {
	cursor := item.StartDate
	for {
		advanced := false
		for _, seg := range segments {
			if seg.PlanName != item.PlanName || seg.PhaseName != item.PhaseName {
				continue
			}
			if !seg.Start.After(cursor) && seg.End.After(cursor) {
				cursor = seg.End
				advanced = true
			}
		}
		if !advanced || !cursor.Before(*item.EndDate) {
			break
		}
	}
	if cursor.After(*item.EndDate) {
		cursor = *item.EndDate
	}
	return cursor
}

type coverage int

const (
	coverageNone coverage = iota
	coveragePartial
	coverageFull
)

// classifyCoverage reports whether the segment is fully, partially or not at
// all covered by the effective billed ranges.
func classifyCoverage(billed []billedRange, seg Segment) coverage {
	cursor := seg.Start
	overlapped := false
	for {
		advanced := false
		for _, r := range billed {
			if r.start.After(cursor) || !r.end.After(cursor) {
				continue
			}
			overlapped = true
			cursor = r.end
			advanced = true
		}
		if !advanced || !cursor.Before(seg.End) {
			break
		}
	}
	if !overlapped {
		// A billed range strictly inside the segment still overlaps
		for _, r := range billed {
			if r.start.Before(seg.End) && seg.Start.Before(r.end) {
				return coveragePartial
			}
		}
		return coverageNone
	}
	if !cursor.Before(seg.End) {
		return coverageFull
	}
	return coveragePartial
}

func collectCommittedItems(invoices []*invoice.Invoice) map[string][]*invoice.InvoiceItem {
	out := make(map[string][]*invoice.InvoiceItem)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if item.SubscriptionID == "" {
				continue
			}
			out[item.SubscriptionID] = append(out[item.SubscriptionID], item)
		}
	}
	for _, items := range out {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].StartDate.Before(items[j].StartDate)
		})
	}
	return out
}

// collectRepairs indexes committed REPAIR_ADJ items by the item they repair.
func collectRepairs(invoices []*invoice.Invoice) map[string]*invoice.InvoiceItem {
	out := make(map[string]*invoice.InvoiceItem)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if item.Type == types.InvoiceItemRepairAdj && item.LinkedItemID != nil {
				out[*item.LinkedItemID] = item
			}
		}
	}
	return out
}

func collectFixedStarts(invoices []*invoice.Invoice, subscriptionID string) map[string]bool {
	out := make(map[string]bool)
	for _, inv := range invoices {
		for _, item := range inv.Items {
			if item.SubscriptionID == subscriptionID && item.Type == types.InvoiceItemFixed {
				out[item.PlanName+"/"+item.PhaseName] = true
			}
		}
	}
	return out
}
