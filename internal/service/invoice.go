package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/billcraft/billcraft/internal/domain/credit"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	"github.com/billcraft/billcraft/internal/domain/proration"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/idempotency"
	"github.com/billcraft/billcraft/internal/notification"
	"github.com/billcraft/billcraft/internal/publisher"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceService runs the invoicing engine for one account at a time: it
// repairs ranges invalidated by retroactive changes, bills every pending
// segment in advance through the target date, draws down the credit balance
// and commits the result atomically under the account lock.
type InvoiceService interface {
	GenerateInvoice(ctx context.Context, accountID string, targetDate time.Time) (*invoice.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, accountID string) ([]*invoice.Invoice, error)
	VoidInvoice(ctx context.Context, invoiceID string) error
	// DryRunInvoice previews an invoice on forked state without persisting,
	// publishing or scheduling anything
	DryRunInvoice(ctx context.Context, req *DryRunRequest) (*invoice.Invoice, error)
	// ProcessWakeUp handles one wake-up delivery; a pending-nothing outcome
	// publishes a NULL_INVOICE lifecycle event instead of failing
	ProcessWakeUp(ctx context.Context, w *notification.WakeUp) error
}

type invoiceService struct {
	ServiceParams
	scheduler *BillingPeriodScheduler
	generator *itemGenerator
}

func NewInvoiceService(params ServiceParams) (InvoiceService, error) {
	prorator, err := proration.NewCalculator(
		params.Config.Billing.ProrationMode,
		params.Config.Billing.FixedProrationDays,
	)
	if err != nil {
		return nil, err
	}
	scheduler := NewBillingPeriodScheduler(params.Logger)
	return &invoiceService{
		ServiceParams: params,
		scheduler:     scheduler,
		generator:     newItemGenerator(scheduler, prorator, params.Logger),
	}, nil
}

func (s *invoiceService) GenerateInvoice(ctx context.Context, accountID string, targetDate time.Time) (*invoice.Invoice, error) {
	unlock := s.Locker.Lock(accountID)
	defer unlock()

	st, err := s.loadState(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if st.account.IsParked() {
		return nil, ierr.NewError("account is parked, auto invoicing suspended").
			WithHintf("account was parked: %s", st.account.ParkedReason).
			WithReportableDetails(map[string]any{
				"account_id": accountID,
				"parked_at":  st.account.ParkedAt,
			}).
			Mark(ierr.ErrAccountParked)
	}

	ic := &InvoiceContext{AccountID: accountID, TargetDate: targetDate}
	abort, err := s.pluginsPriorCall(ctx, ic)
	if err != nil {
		return nil, err
	}
	if abort {
		return nil, nothingToDo(accountID, targetDate)
	}

	inv, proposal, err := s.buildInvoice(ctx, st, targetDate, false)
	if err != nil {
		if ierr.IsDoubleBilling(err) {
			s.parkAccount(ctx, st, err)
		}
		ic.Invoice = inv
		s.pluginsOnFailure(ctx, ic)
		return nil, err
	}

	key := s.IdempGen.GenerateKey(idempotency.ScopeSubscriptionInvoice, map[string]interface{}{
		"account_id":  accountID,
		"target_date": targetDate.Format(time.RFC3339),
		"items":       itemFingerprint(inv.Items),
	})
	if existing, err := s.InvoiceRepo.GetByIdempotencyKey(ctx, accountID, key); err == nil {
		s.Logger.Infow("invoice already committed for idempotency key",
			"account_id", accountID,
			"invoice_id", existing.ID,
		)
		return existing, nil
	}
	inv.IdempotencyKey = &key

	if err := s.commit(ctx, st, inv, proposal); err != nil {
		ic.Invoice = inv
		s.pluginsOnFailure(ctx, ic)
		return nil, err
	}

	ic.Invoice = inv
	s.pluginsOnSuccess(ctx, ic)

	s.publishInvoiceEvent(ctx, inv)
	s.scheduleNext(ctx, st, targetDate)

	s.Logger.Infow("committed invoice",
		"invoice_id", inv.ID,
		"account_id", accountID,
		"target_date", targetDate,
		"items", len(inv.Items),
		"total", inv.Total(),
	)
	return inv, nil
}

// buildInvoice runs the shared computation path: generator items, plugin
// items, then credit consumption. Both the real run and the dry run call it;
// only the caller decides whether anything is persisted.
func (s *invoiceService) buildInvoice(ctx context.Context, st *billingState, targetDate time.Time, dryRun bool) (*invoice.Invoice, *invoiceProposal, error) {
	now := s.Clock.Now()

	proposal, err := s.generator.compute(ctx, st, targetDate, now)
	if err != nil {
		return nil, nil, err
	}

	inv := s.newInvoice(ctx, st, targetDate, now, dryRun)
	inv.Items = append(inv.Items, proposal.items...)

	extra, err := s.pluginsAdditionalItems(ctx, inv, dryRun)
	if err != nil {
		return nil, nil, err
	}
	inv.Items = append(inv.Items, extra...)

	if len(inv.Items) == 0 {
		return nil, nil, nothingToDo(st.account.ID, targetDate)
	}

	if cba := consumeCredits(st, proposal, inv.Items, now); cba != nil {
		inv.Items = append(inv.Items, cba)
	}

	for _, item := range inv.Items {
		item.InvoiceID = inv.ID
		if item.AccountID == "" {
			item.AccountID = st.account.ID
		}
		if item.Currency == "" {
			item.Currency = inv.Currency
		}
	}
	if err := inv.Validate(); err != nil {
		return nil, nil, err
	}
	return inv, proposal, nil
}

// newInvoice starts a fresh invoice, or reuses the account's open draft when
// the reuse-draft policy is on.
func (s *invoiceService) newInvoice(ctx context.Context, st *billingState, targetDate, now time.Time, dryRun bool) *invoice.Invoice {
	if !dryRun && s.Config.Billing.ReuseDraft {
		if draft, err := s.InvoiceRepo.GetDraft(ctx, st.account.ID); err == nil {
			draft.TargetDate = targetDate
			draft.InvoiceDate = now
			return draft
		}
	}
	number := types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE)
	return &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		AccountID:     st.account.ID,
		InvoiceNumber: &number,
		Status:        types.InvoiceStatusDraft,
		Currency:      st.account.Currency,
		InvoiceDate:   now,
		TargetDate:    targetDate,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

// commit persists the whole outcome: the committed invoice, the credit
// ledger mutations, the advanced charged-through dates and the cleared dirty
// markers.
func (s *invoiceService) commit(ctx context.Context, st *billingState, inv *invoice.Invoice, proposal *invoiceProposal) error {
	now := s.Clock.Now()
	inv.Status = types.InvoiceStatusCommitted
	inv.CommittedAt = &now

	isNew := true
	if existing, err := s.InvoiceRepo.Get(ctx, inv.ID); err == nil && existing != nil {
		isNew = false
	}
	if isNew {
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return err
		}
	} else {
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}
	}

	for _, entry := range proposal.newCredits {
		entry.SourceInvoiceID = inv.ID
		entry.BaseModel = types.GetDefaultBaseModel(ctx)
		if err := s.CreditRepo.Create(ctx, entry); err != nil {
			return err
		}
	}
	// Draw-downs were simulated on the state's deep copies; write the new
	// remaining amounts back
	for _, entry := range st.credits {
		if err := s.CreditRepo.Update(ctx, entry); err != nil {
			return err
		}
	}

	for _, sub := range st.subs {
		ctd, ok := proposal.chargedThrough[sub.ID]
		if ok && (sub.ChargedThroughDate == nil || ctd.After(*sub.ChargedThroughDate)) {
			sub.ChargedThroughDate = &ctd
			if err := s.SubRepo.Update(ctx, sub); err != nil {
				return err
			}
		}
	}
	for _, subID := range proposal.repairedSubs {
		tl := st.timelines[subID]
		tl.ClearDirty()
		if err := s.SubRepo.SaveTimeline(ctx, tl); err != nil {
			return err
		}
	}
	return nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	return s.InvoiceRepo.Get(ctx, invoiceID)
}

func (s *invoiceService) ListInvoices(ctx context.Context, accountID string) ([]*invoice.Invoice, error) {
	return s.InvoiceRepo.ListByAccount(ctx, accountID)
}

// VoidInvoice removes a committed invoice's billing effect. Credits the
// invoice generated must be fully unconsumed, otherwise the void is rejected;
// credits the invoice consumed are restored as a fresh ledger entry.
func (s *invoiceService) VoidInvoice(ctx context.Context, invoiceID string) error {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}

	unlock := s.Locker.Lock(inv.AccountID)
	defer unlock()

	inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != types.InvoiceStatusCommitted {
		return ierr.NewError("only committed invoices can be voided").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"status":     inv.Status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	entries, err := s.CreditRepo.ListByAccount(ctx, inv.AccountID)
	if err != nil {
		return err
	}
	var generated []*credit.Entry
	for _, e := range entries {
		if e.SourceInvoiceID != inv.ID {
			continue
		}
		if e.Remaining.LessThan(e.Amount) {
			return ierr.NewError("invoice credit must be reclaimed before void").
				WithHint("A later invoice already consumed credit generated by this one").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"entry_id":   e.ID,
					"amount":     e.Amount,
					"remaining":  e.Remaining,
				}).
				Mark(ierr.ErrCreditNotReclaimed)
		}
		generated = append(generated, e)
	}
	for _, e := range generated {
		if err := s.CreditRepo.Delete(ctx, e.ID); err != nil {
			return err
		}
	}

	// Credit the invoice drew from the balance flows back
	restored := consumedCreditOf(inv)
	if restored.IsPositive() {
		entry := &credit.Entry{
			ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT_ENTRY),
			AccountID:       inv.AccountID,
			Currency:        inv.Currency,
			Amount:          restored,
			Remaining:       restored,
			EffectiveDate:   inv.InvoiceDate,
			SourceInvoiceID: inv.ID,
			BaseModel:       types.GetDefaultBaseModel(ctx),
		}
		if err := s.CreditRepo.Create(ctx, entry); err != nil {
			return err
		}
	}

	now := s.Clock.Now()
	inv.Status = types.InvoiceStatusVoid
	inv.VoidedAt = &now
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return err
	}

	// The voided ranges are billable again at the next run
	s.scheduleWakeUp(ctx, inv.AccountID, now)

	s.Logger.Infow("voided invoice",
		"invoice_id", inv.ID,
		"account_id", inv.AccountID,
		"restored_credit", restored,
	)
	return nil
}

func (s *invoiceService) ProcessWakeUp(ctx context.Context, w *notification.WakeUp) error {
	now := s.Clock.Now()
	if w.EffectiveDate.After(now) {
		// Delivered early; the transport re-offers it at its due time
		s.Logger.Debugw("wake-up not yet due",
			"account_id", w.AccountID,
			"effective_date", w.EffectiveDate,
		)
		return nil
	}

	inv, err := s.GenerateInvoice(ctx, w.AccountID, w.EffectiveDate)
	if err != nil {
		if ierr.IsNothingToDo(err) {
			s.publishNullInvoice(ctx, w)
			return nil
		}
		return err
	}

	s.Logger.Debugw("wake-up produced invoice",
		"account_id", w.AccountID,
		"invoice_id", inv.ID,
	)
	return nil
}

func (s *invoiceService) loadState(ctx context.Context, accountID string) (*billingState, error) {
	acct, err := s.AccountRepo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	subs, err := s.SubRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	timelines := make(map[string]*subscription.Timeline, len(subs))
	for _, sub := range subs {
		tl, err := s.SubRepo.GetTimeline(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		timelines[sub.ID] = tl
	}

	invoices, err := s.InvoiceRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	committed := lo.Filter(invoices, func(inv *invoice.Invoice, _ int) bool {
		return inv.Status == types.InvoiceStatusCommitted
	})

	entries, err := s.CreditRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// Deep-copy the ledger so draw-downs stay simulated until commit
	credits := make([]*credit.Entry, len(entries))
	for i, e := range entries {
		c := *e
		credits[i] = &c
	}

	return &billingState{
		account:   acct,
		subs:      subs,
		timelines: timelines,
		committed: committed,
		credits:   credits,
	}, nil
}

// parkAccount suspends auto-invoicing after an internal consistency
// violation. Further runs fail fast until an operator unparks the account.
func (s *invoiceService) parkAccount(ctx context.Context, st *billingState, cause error) {
	now := s.Clock.Now()
	st.account.Park(cause.Error(), now)
	if err := s.AccountRepo.Update(ctx, st.account); err != nil {
		s.Logger.Errorw("failed to park account",
			"error", err,
			"account_id", st.account.ID,
		)
		return
	}
	s.Logger.Errorw("parked account after consistency violation",
		"account_id", st.account.ID,
		"cause", cause.Error(),
	)
}

func (s *invoiceService) scheduleNext(ctx context.Context, st *billingState, after time.Time) {
	timelines := lo.Values(st.timelines)
	next, err := s.scheduler.NextWakeUp(st.account, timelines, after)
	if err != nil {
		s.Logger.Errorw("failed to compute next wake-up",
			"error", err,
			"account_id", st.account.ID,
		)
		return
	}
	if next == nil {
		return
	}
	s.scheduleWakeUp(ctx, st.account.ID, *next)
}

func (s *invoiceService) scheduleWakeUp(ctx context.Context, accountID string, effective time.Time) {
	err := s.WakeUpQueue.Schedule(ctx, &notification.WakeUp{
		AccountID:     accountID,
		EffectiveDate: effective,
	})
	if err != nil {
		s.Logger.Errorw("failed to schedule wake-up",
			"error", err,
			"account_id", accountID,
		)
	}
}

func (s *invoiceService) publishInvoiceEvent(ctx context.Context, inv *invoice.Invoice) {
	event := &publisher.LifecycleEvent{
		Type:          types.LifecycleEventInvoice,
		AccountID:     inv.AccountID,
		InvoiceID:     inv.ID,
		EffectiveDate: inv.TargetDate,
		OccurredAt:    s.Clock.Now(),
	}
	if err := s.EventPublisher.Publish(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish invoice event",
			"error", err,
			"invoice_id", inv.ID,
		)
	}
}

func (s *invoiceService) publishNullInvoice(ctx context.Context, w *notification.WakeUp) {
	event := &publisher.LifecycleEvent{
		Type:           types.LifecycleEventNullInvoice,
		AccountID:      w.AccountID,
		SubscriptionID: w.SubscriptionID,
		EffectiveDate:  w.EffectiveDate,
		OccurredAt:     s.Clock.Now(),
	}
	if err := s.EventPublisher.Publish(ctx, event); err != nil {
		s.Logger.Errorw("failed to publish null invoice event",
			"error", err,
			"account_id", w.AccountID,
		)
	}
}

func (s *invoiceService) pluginsPriorCall(ctx context.Context, ic *InvoiceContext) (bool, error) {
	for _, p := range s.Plugins {
		res, err := p.PriorCall(ctx, ic)
		if err != nil {
			return false, err
		}
		if res == nil {
			continue
		}
		if res.RescheduleDate != nil {
			s.scheduleWakeUp(ctx, ic.AccountID, *res.RescheduleDate)
			return true, nil
		}
		if res.Abort {
			return true, nil
		}
	}
	return false, nil
}

func (s *invoiceService) pluginsAdditionalItems(ctx context.Context, inv *invoice.Invoice, dryRun bool) ([]*invoice.InvoiceItem, error) {
	var extra []*invoice.InvoiceItem
	for _, p := range s.Plugins {
		items, err := p.GetAdditionalItems(ctx, inv, dryRun)
		if err != nil {
			return nil, err
		}
		extra = append(extra, items...)
	}
	return extra, nil
}

func (s *invoiceService) pluginsOnSuccess(ctx context.Context, ic *InvoiceContext) {
	for _, p := range s.Plugins {
		if err := p.OnSuccess(ctx, ic); err != nil {
			s.Logger.Errorw("invoice plugin OnSuccess failed",
				"error", err,
				"invoice_id", ic.Invoice.ID,
			)
		}
	}
}

func (s *invoiceService) pluginsOnFailure(ctx context.Context, ic *InvoiceContext) {
	for _, p := range s.Plugins {
		if err := p.OnFailure(ctx, ic); err != nil {
			s.Logger.Errorw("invoice plugin OnFailure failed",
				"error", err,
				"account_id", ic.AccountID,
			)
		}
	}
}

func nothingToDo(accountID string, targetDate time.Time) error {
	return ierr.NewError("no billable segment pending by target date").
		WithHintf("nothing to invoice for account through %s", targetDate.Format(time.DateOnly)).
		WithReportableDetails(map[string]any{
			"account_id":  accountID,
			"target_date": targetDate,
		}).
		Mark(ierr.ErrInvoiceNothingToDo)
}

// consumedCreditOf sums the credit an invoice drew from the account balance:
// the negated total of its negative unlinked CBA_ADJ items.
func consumedCreditOf(inv *invoice.Invoice) decimal.Decimal {
	consumed := decimal.Zero
	for _, item := range inv.Items {
		if item.Type == types.InvoiceItemCBAAdj && item.LinkedItemID == nil && item.Amount.IsNegative() {
			consumed = consumed.Sub(item.Amount)
		}
	}
	return consumed
}

// itemFingerprint summarizes the proposed items deterministically; together
// with the target date it makes the idempotency key content-addressed, so a
// redelivered trigger that computes the same outcome maps to the same key.
func itemFingerprint(items []*invoice.InvoiceItem) string {
	parts := lo.Map(items, func(item *invoice.InvoiceItem, _ int) string {
		end := ""
		if item.EndDate != nil {
			end = item.EndDate.Format(time.RFC3339)
		}
		return item.SubscriptionID + "|" + string(item.Type) + "|" +
			item.StartDate.Format(time.RFC3339) + "|" + end + "|" + item.Amount.String()
	})
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
