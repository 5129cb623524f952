package service

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/notification"
	"github.com/billcraft/billcraft/internal/publisher"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/billcraft/billcraft/internal/validator"
)

// CreateBundleRequest creates an empty bundle. The bundle's creation date is
// the reference for START_OF_BUNDLE alignment of every add-on created later.
type CreateBundleRequest struct {
	AccountID   string `json:"account_id" validate:"required"`
	ExternalKey string `json:"external_key"`
}

type CreateSubscriptionRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	// BundleID is empty for a base subscription; a fresh bundle is created
	BundleID      string              `json:"bundle_id"`
	ExternalKey   string              `json:"external_key"`
	ProductName   string              `json:"product_name" validate:"required"`
	BillingPeriod types.BillingPeriod `json:"billing_period" validate:"required"`
	PriceList     string              `json:"price_list"`
	// RequestedDate is the entitlement start; defaults to now
	RequestedDate *time.Time `json:"requested_date"`
	// BillingStartDate overrides the billing start for migrated accounts
	BillingStartDate *time.Time `json:"billing_start_date"`
}

type ChangePlanRequest struct {
	SubscriptionID string              `json:"subscription_id" validate:"required"`
	ProductName    string              `json:"product_name" validate:"required"`
	BillingPeriod  types.BillingPeriod `json:"billing_period" validate:"required"`
	PriceList      string              `json:"price_list"`
	// EffectiveDate defaults to now; an earlier date is a retroactive change
	// and triggers repair at the next invoice run
	EffectiveDate *time.Time `json:"effective_date"`
	// Alignment selects which catalog version governs the change; defaults
	// to CHANGE_OF_PLAN (the version effective at the change date)
	Alignment types.BillingAlignment `json:"alignment"`
}

// SubscriptionService owns the entitlement lifecycle: every operation mutates
// the billing event timeline under the account lock, re-derives annotations,
// publishes a lifecycle event and schedules the next invoicing wake-up.
type SubscriptionService interface {
	CreateBundle(ctx context.Context, req *CreateBundleRequest) (*subscription.Bundle, error)
	Create(ctx context.Context, req *CreateSubscriptionRequest) (*subscription.Subscription, error)
	ChangePlan(ctx context.Context, req *ChangePlanRequest) error
	Cancel(ctx context.Context, subscriptionID string, requestedDate *time.Time) error
	Uncancel(ctx context.Context, subscriptionID string) error
	Pause(ctx context.Context, subscriptionID string, effectiveDate *time.Time) error
	Resume(ctx context.Context, subscriptionID string, effectiveDate *time.Time) error
	ChangeBCD(ctx context.Context, subscriptionID string, bcd int, effectiveDate *time.Time) error
}

type subscriptionService struct {
	ServiceParams
	scheduler *BillingPeriodScheduler
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		scheduler:     NewBillingPeriodScheduler(params.Logger),
	}
}

func (s *subscriptionService) CreateBundle(ctx context.Context, req *CreateBundleRequest) (*subscription.Bundle, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.AccountRepo.Get(ctx, req.AccountID); err != nil {
		return nil, err
	}

	b := &subscription.Bundle{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUNDLE),
		AccountID:   req.AccountID,
		ExternalKey: req.ExternalKey,
		CreatedDate: s.Clock.Now(),
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
	if err := s.SubRepo.CreateBundle(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *subscriptionService) Create(ctx context.Context, req *CreateSubscriptionRequest) (*subscription.Subscription, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}

	unlock := s.Locker.Lock(req.AccountID)
	defer unlock()

	acct, err := s.AccountRepo.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	entitlementStart := now
	if req.RequestedDate != nil {
		entitlementStart = *req.RequestedDate
	}
	billingStart := entitlementStart
	if req.BillingStartDate != nil {
		billingStart = *req.BillingStartDate
	}

	bundle, err := s.resolveBundle(ctx, req, now)
	if err != nil {
		return nil, err
	}

	// Plan resolution is synchronous: a retired product or a missing plan
	// fails the creation here, never a later invoice run
	version, err := s.CatalogResolver.ResolveVersion(ctx, acct.CatalogID, billingStart)
	if err != nil {
		return nil, err
	}
	plan, err := version.FindPlan(req.ProductName, req.BillingPeriod, req.PriceList)
	if err != nil {
		return nil, err
	}

	alignment := defaultAlignment(plan.ProductCategory)
	if alignment == types.AlignmentStartOfBundle && !bundle.CreatedDate.Equal(billingStart) {
		// Add-ons bill under the catalog governing the bundle's creation
		version, err = s.CatalogResolver.ResolveVersion(ctx, acct.CatalogID, bundle.CreatedDate)
		if err != nil {
			return nil, err
		}
		plan, err = version.FindPlan(req.ProductName, req.BillingPeriod, req.PriceList)
		if err != nil {
			return nil, err
		}
	}

	sub := &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		BundleID:             bundle.ID,
		AccountID:            acct.ID,
		Category:             plan.ProductCategory,
		PlanName:             plan.Name,
		ProductName:          plan.ProductName,
		PriceList:            plan.PriceList,
		State:                subscription.SubscriptionStateActive,
		CreationDate:         now,
		EntitlementStartDate: entitlementStart,
		BillingStartDate:     billingStart,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	tl := subscription.NewTimeline(sub.ID)
	for _, ev := range buildPlanEvents(sub, plan, version.ID, alignment, billingStart, types.BillingEventCreate) {
		if err := tl.Append(ev); err != nil {
			return nil, err
		}
	}
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)

	if err := s.SubRepo.SaveTimeline(ctx, tl); err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, types.LifecycleEventCreate, acct.ID, sub, billingStart)

	// The first wake-up bills everything due through the billing start; the
	// invoice run schedules each subsequent one
	due := billingStart
	if due.Before(now) {
		due = now
	}
	s.scheduleWakeUp(ctx, acct.ID, sub.ID, due)

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"account_id", acct.ID,
		"plan", plan.Name,
		"billing_start", billingStart,
	)
	return sub, nil
}

func (s *subscriptionService) resolveBundle(ctx context.Context, req *CreateSubscriptionRequest, now time.Time) (*subscription.Bundle, error) {
	if req.BundleID == "" {
		b := &subscription.Bundle{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUNDLE),
			AccountID:   req.AccountID,
			ExternalKey: req.ExternalKey,
			CreatedDate: now,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		}
		if err := s.SubRepo.CreateBundle(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	b, err := s.SubRepo.GetBundle(ctx, req.BundleID)
	if err != nil {
		return nil, err
	}
	if b.AccountID != req.AccountID {
		return nil, ierr.NewError("bundle belongs to a different account").
			WithReportableDetails(map[string]any{
				"bundle_id":  b.ID,
				"account_id": req.AccountID,
			}).
			Mark(ierr.ErrValidation)
	}
	return b, nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, req *ChangePlanRequest) error {
	if err := validator.ValidateRequest(req); err != nil {
		return err
	}

	acct, bundle, sub, tl, unlock, err := s.loadForUpdate(ctx, req.SubscriptionID)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.Clock.Now()
	effective := now
	if req.EffectiveDate != nil {
		effective = *req.EffectiveDate
	}
	if effective.Before(sub.EntitlementStartDate) {
		return invalidRequestedDate(sub, effective)
	}
	if sub.CancelDate != nil && !effective.Before(*sub.CancelDate) {
		return invalidRequestedDate(sub, effective)
	}

	alignment := req.Alignment
	if alignment == "" {
		alignment = types.AlignmentChangeOfPlan
	}
	version, err := s.CatalogResolver.ResolveForAlignment(ctx, acct.CatalogID, alignment, catalog.AlignmentDates{
		BundleCreatedAt:       bundle.CreatedDate,
		SubscriptionCreatedAt: sub.CreationDate,
		ChangeEffective:       effective,
	})
	if err != nil {
		return err
	}
	plan, err := version.FindPlan(req.ProductName, req.BillingPeriod, req.PriceList)
	if err != nil {
		return err
	}

	// The new plan supersedes any pending phase transitions of the old one
	for _, ev := range tl.EventsSince(effective) {
		if ev.Type == types.BillingEventPhase && ev.EffectiveDate.After(effective) {
			if _, err := tl.Remove(ev.ID); err != nil {
				return err
			}
		}
	}

	for _, ev := range buildPlanEvents(sub, plan, version.ID, alignment, effective, types.BillingEventChange) {
		if err := insertEvent(tl, ev); err != nil {
			return err
		}
	}
	markBilledCoverageDirty(tl, sub, effective)
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)
	if err := s.reannotateCatalog(ctx, acct, bundle, sub, tl, now); err != nil {
		return err
	}

	sub.PlanName = plan.Name
	sub.ProductName = plan.ProductName
	sub.PriceList = plan.PriceList
	sub.Category = plan.ProductCategory
	if err := s.persist(ctx, sub, tl); err != nil {
		return err
	}

	s.publishLifecycle(ctx, types.LifecycleEventChange, acct.ID, sub, effective)

	due := effective
	if due.Before(now) {
		// Retroactive change: the next run emits repairs and re-bills
		due = now
	}
	s.scheduleWakeUp(ctx, acct.ID, sub.ID, due)

	s.Logger.Infow("changed plan",
		"subscription_id", sub.ID,
		"plan", plan.Name,
		"effective_date", effective,
		"retroactive", effective.Before(now),
	)
	return nil
}

func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID string, requestedDate *time.Time) error {
	acct, _, sub, tl, unlock, err := s.loadForUpdate(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer unlock()

	if sub.CancelDate != nil {
		return ierr.NewError("subscription already cancelled").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"cancel_date":     sub.CancelDate,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	now := s.Clock.Now()
	effective := now
	if requestedDate != nil {
		effective = *requestedDate
	}

	sub.CancelDate = &effective
	if err := sub.Validate(); err != nil {
		return err
	}
	if !effective.After(now) {
		sub.State = subscription.SubscriptionStateCancelled
	}

	ev := eventFromPrior(tl, sub, types.BillingEventCancel, effective)
	if err := insertEvent(tl, ev); err != nil {
		return err
	}
	markBilledCoverageDirty(tl, sub, effective)
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)

	if err := s.persist(ctx, sub, tl); err != nil {
		return err
	}

	s.publishLifecycle(ctx, types.LifecycleEventCancel, acct.ID, sub, effective)

	// The repair and credit for any billed-ahead coverage land at the
	// cancellation's effective date, or immediately for a retroactive one
	due := effective
	if due.Before(now) {
		due = now
	}
	s.scheduleWakeUp(ctx, acct.ID, sub.ID, due)

	s.Logger.Infow("cancelled subscription",
		"subscription_id", sub.ID,
		"effective_date", effective,
		"retroactive", effective.Before(now),
	)
	return nil
}

func (s *subscriptionService) Uncancel(ctx context.Context, subscriptionID string) error {
	acct, _, sub, tl, unlock, err := s.loadForUpdate(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.Clock.Now()
	pending := tl.PendingCancel(now)
	if pending == nil {
		return ierr.NewError("no pending cancellation to undo").
			WithHint("Only a future-dated cancellation can be undone").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	if _, err := tl.Remove(pending.ID); err != nil {
		return err
	}

	marker := eventFromPrior(tl, sub, types.BillingEventUncancel, now)
	if err := insertEvent(tl, marker); err != nil {
		return err
	}
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)

	sub.CancelDate = nil
	sub.State = subscription.SubscriptionStateActive
	if err := s.persist(ctx, sub, tl); err != nil {
		return err
	}

	s.publishLifecycle(ctx, types.LifecycleEventUncancel, acct.ID, sub, now)
	s.rescheduleFromTimeline(ctx, acct, sub, tl, now)

	s.Logger.Infow("uncancelled subscription", "subscription_id", sub.ID)
	return nil
}

func (s *subscriptionService) Pause(ctx context.Context, subscriptionID string, effectiveDate *time.Time) error {
	return s.transition(ctx, subscriptionID, types.BillingEventPause, effectiveDate)
}

func (s *subscriptionService) Resume(ctx context.Context, subscriptionID string, effectiveDate *time.Time) error {
	return s.transition(ctx, subscriptionID, types.BillingEventResume, effectiveDate)
}

func (s *subscriptionService) transition(ctx context.Context, subscriptionID string, typ types.BillingEventType, effectiveDate *time.Time) error {
	acct, _, sub, tl, unlock, err := s.loadForUpdate(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.Clock.Now()
	effective := now
	if effectiveDate != nil {
		effective = *effectiveDate
	}
	if effective.Before(sub.EntitlementStartDate) {
		return invalidRequestedDate(sub, effective)
	}
	if sub.CancelDate != nil && !effective.Before(*sub.CancelDate) {
		return invalidRequestedDate(sub, effective)
	}

	ev := eventFromPrior(tl, sub, typ, effective)
	if err := insertEvent(tl, ev); err != nil {
		return err
	}
	if typ == types.BillingEventPause {
		markBilledCoverageDirty(tl, sub, effective)
	}
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)

	lifecycle := types.LifecycleEventPause
	if typ == types.BillingEventPause {
		if !effective.After(now) {
			sub.State = subscription.SubscriptionStatePaused
		}
	} else {
		lifecycle = types.LifecycleEventResume
		if !effective.After(now) {
			sub.State = subscription.SubscriptionStateActive
		}
	}
	if err := s.persist(ctx, sub, tl); err != nil {
		return err
	}

	s.publishLifecycle(ctx, lifecycle, acct.ID, sub, effective)
	s.rescheduleFromTimeline(ctx, acct, sub, tl, now)
	return nil
}

// ChangeBCD overrides the subscription's billing cycle day from the effective
// date on. Periods already started keep their original boundaries; the next
// boundary after the effective date lands on the new BCD.
func (s *subscriptionService) ChangeBCD(ctx context.Context, subscriptionID string, bcd int, effectiveDate *time.Time) error {
	if bcd < 1 || bcd > 31 {
		return ierr.NewError("invalid billing cycle day").
			WithHint("Billing cycle day must be between 1 and 31").
			WithReportableDetails(map[string]any{
				"bcd": bcd,
			}).
			Mark(ierr.ErrValidation)
	}

	acct, _, sub, tl, unlock, err := s.loadForUpdate(ctx, subscriptionID)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.Clock.Now()
	effective := now
	if effectiveDate != nil {
		effective = *effectiveDate
	}
	if effective.Before(sub.EntitlementStartDate) {
		return invalidRequestedDate(sub, effective)
	}

	ev := eventFromPrior(tl, sub, types.BillingEventBCDChange, effective)
	ev.BCD = bcd
	if err := insertEvent(tl, ev); err != nil {
		return err
	}
	markBilledCoverageDirty(tl, sub, effective)
	annotateAnchors(s.AlignmentResolver, acct, sub, tl)

	if err := s.persist(ctx, sub, tl); err != nil {
		return err
	}
	s.rescheduleFromTimeline(ctx, acct, sub, tl, now)

	s.Logger.Infow("changed billing cycle day",
		"subscription_id", sub.ID,
		"bcd", bcd,
		"effective_date", effective,
	)
	return nil
}

// loadForUpdate locks the owning account, then loads the full mutation set
// under the lock.
func (s *subscriptionService) loadForUpdate(ctx context.Context, subscriptionID string) (*account.Account, *subscription.Bundle, *subscription.Subscription, *subscription.Timeline, func(), error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	unlock := s.Locker.Lock(sub.AccountID)

	fail := func(err error) (*account.Account, *subscription.Bundle, *subscription.Subscription, *subscription.Timeline, func(), error) {
		unlock()
		return nil, nil, nil, nil, nil, err
	}

	// Reload under the lock; the pre-lock read only located the account
	sub, err = s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return fail(err)
	}
	acct, err := s.AccountRepo.Get(ctx, sub.AccountID)
	if err != nil {
		return fail(err)
	}
	bundle, err := s.SubRepo.GetBundle(ctx, sub.BundleID)
	if err != nil {
		return fail(err)
	}
	tl, err := s.SubRepo.GetTimeline(ctx, subscriptionID)
	if err != nil {
		return fail(err)
	}
	return acct, bundle, sub, tl, unlock, nil
}

func (s *subscriptionService) persist(ctx context.Context, sub *subscription.Subscription, tl *subscription.Timeline) error {
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return err
	}
	return s.SubRepo.SaveTimeline(ctx, tl)
}

// reannotateCatalog re-resolves the governing catalog version for events that
// have not yet become effective. Events whose effective date has passed keep
// their pinned version forever.
func (s *subscriptionService) reannotateCatalog(ctx context.Context, acct *account.Account, bundle *subscription.Bundle, sub *subscription.Subscription, tl *subscription.Timeline, now time.Time) error {
	for _, ev := range tl.EventsSince(now) {
		if !ev.StartsBilling() || ev.PlanName == "" {
			continue
		}
		version, err := s.CatalogResolver.ResolveForAlignment(ctx, acct.CatalogID, ev.Alignment, catalog.AlignmentDates{
			BundleCreatedAt:       bundle.CreatedDate,
			SubscriptionCreatedAt: sub.CreationDate,
			ChangeEffective:       ev.EffectiveDate,
		})
		if err != nil {
			return err
		}
		if version.ID == ev.CatalogVersionID {
			continue
		}
		plan, err := version.FindPlanByName(ev.PlanName)
		if err != nil {
			return err
		}
		phase, err := plan.FindPhase(ev.PhaseName)
		if err != nil {
			return err
		}
		snapshotPhase(ev, plan, phase, version.ID)
	}
	return nil
}

func (s *subscriptionService) publishLifecycle(ctx context.Context, typ types.LifecycleEventType, accountID string, sub *subscription.Subscription, effective time.Time) {
	event := &publisher.LifecycleEvent{
		Type:           typ,
		AccountID:      accountID,
		BundleID:       sub.BundleID,
		SubscriptionID: sub.ID,
		EffectiveDate:  effective,
		OccurredAt:     s.Clock.Now(),
	}
	if err := s.EventPublisher.Publish(ctx, event); err != nil {
		// Lifecycle publication is best effort; the state change stands
		s.Logger.Errorw("failed to publish lifecycle event",
			"error", err,
			"event_type", typ,
			"subscription_id", sub.ID,
		)
	}
}

func (s *subscriptionService) scheduleWakeUp(ctx context.Context, accountID, subscriptionID string, effective time.Time) {
	err := s.WakeUpQueue.Schedule(ctx, &notification.WakeUp{
		AccountID:      accountID,
		SubscriptionID: subscriptionID,
		EffectiveDate:  effective,
	})
	if err != nil {
		s.Logger.Errorw("failed to schedule wake-up",
			"error", err,
			"account_id", accountID,
			"subscription_id", subscriptionID,
		)
	}
}

func (s *subscriptionService) rescheduleFromTimeline(ctx context.Context, acct *account.Account, sub *subscription.Subscription, tl *subscription.Timeline, now time.Time) {
	next, err := s.scheduler.NextWakeUp(acct, []*subscription.Timeline{tl}, now)
	if err != nil {
		s.Logger.Errorw("failed to compute next wake-up",
			"error", err,
			"subscription_id", sub.ID,
		)
		return
	}
	if next == nil {
		return
	}
	s.scheduleWakeUp(ctx, acct.ID, sub.ID, *next)
}

// defaultAlignment is the alignment policy implied by the product category:
// base subscriptions align to their own start, add-ons to the bundle.
func defaultAlignment(category types.ProductCategory) types.BillingAlignment {
	if category == types.ProductCategoryAddOn {
		return types.AlignmentStartOfBundle
	}
	return types.AlignmentStartOfSubscription
}

// buildPlanEvents expands a plan into its timeline events starting at the
// given date: the first phase under firstType, each later phase as a PHASE
// transition at the end of the preceding fixed-length phase.
func buildPlanEvents(sub *subscription.Subscription, plan *catalog.Plan, versionID string, alignment types.BillingAlignment, start time.Time, firstType types.BillingEventType) []*subscription.BillingEvent {
	var events []*subscription.BillingEvent
	cursor := start
	for i, phase := range plan.Phases {
		typ := firstType
		if i > 0 {
			typ = types.BillingEventPhase
		}
		ev := &subscription.BillingEvent{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_EVENT),
			SubscriptionID: sub.ID,
			Type:           typ,
			EffectiveDate:  cursor,
			Alignment:      alignment,
		}
		snapshotPhase(ev, plan, phase, versionID)
		events = append(events, ev)

		if !phase.IsFixedLength() {
			break
		}
		cursor = cursor.AddDate(0, 0, phase.DurationDays)
	}
	return events
}

func snapshotPhase(ev *subscription.BillingEvent, plan *catalog.Plan, phase *catalog.Phase, versionID string) {
	ev.PlanName = plan.Name
	ev.PhaseName = phase.Name
	ev.PhaseType = phase.Type
	ev.BillingPeriod = plan.BillingPeriod
	ev.BillingPeriodUnit = plan.BillingPeriodUnit
	ev.FixedPrice = phase.FixedPrice
	ev.RecurringPrice = phase.RecurringPrice
	ev.Currency = plan.Currency
	ev.CatalogVersionID = versionID
}

// eventFromPrior builds a lifecycle event carrying the snapshot of the latest
// preceding event, so every timeline entry is self-describing.
func eventFromPrior(tl *subscription.Timeline, sub *subscription.Subscription, typ types.BillingEventType, effective time.Time) *subscription.BillingEvent {
	ev := &subscription.BillingEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_EVENT),
		SubscriptionID: sub.ID,
		Type:           typ,
		EffectiveDate:  effective,
	}

	var prior *subscription.BillingEvent
	for _, e := range tl.Events() {
		if e.EffectiveDate.After(effective) {
			break
		}
		if e.PlanName != "" {
			prior = e
		}
	}
	if prior != nil {
		ev.PlanName = prior.PlanName
		ev.PhaseName = prior.PhaseName
		ev.PhaseType = prior.PhaseType
		ev.BillingPeriod = prior.BillingPeriod
		ev.BillingPeriodUnit = prior.BillingPeriodUnit
		ev.FixedPrice = prior.FixedPrice
		ev.RecurringPrice = prior.RecurringPrice
		ev.Currency = prior.Currency
		ev.CatalogVersionID = prior.CatalogVersionID
		ev.Alignment = prior.Alignment
	}
	return ev
}

// markBilledCoverageDirty flags already-invoiced coverage for repair when a
// timeline mutation lands before the subscription's charged-through date.
// Billing runs in advance, so an event can invalidate committed items even
// when it appends at the timeline tail.
func markBilledCoverageDirty(tl *subscription.Timeline, sub *subscription.Subscription, effective time.Time) {
	if sub.ChargedThroughDate != nil && effective.Before(*sub.ChargedThroughDate) {
		tl.MarkDirty(effective)
	}
}

// insertEvent appends when the event lands at or after the timeline tail and
// falls back to a retroactive insert otherwise.
func insertEvent(tl *subscription.Timeline, ev *subscription.BillingEvent) error {
	if last := tl.LastEvent(); last != nil && ev.EffectiveDate.Before(last.EffectiveDate) {
		tl.InsertRetroactive(ev)
		return nil
	}
	return tl.Append(ev)
}

// annotateAnchors recomputes the anchor chain over the whole timeline. The
// chain is a pure function of the ordered events, so replaying it after any
// mutation is deterministic.
func annotateAnchors(r *subscription.AlignmentResolver, acct *account.Account, sub *subscription.Subscription, tl *subscription.Timeline) {
	var prev *subscription.BillingEvent
	var prevAnchor *subscription.Anchor
	for _, ev := range tl.Events() {
		a := r.ResolveAnchor(acct, sub, prev, prevAnchor, ev)
		ev.AnchorDate = a.Date
		ev.BCD = a.BCD
		prev = ev
		prevAnchor = &a
	}
}

func invalidRequestedDate(sub *subscription.Subscription, requested time.Time) error {
	return ierr.NewError("requested date is invalid for subscription").
		WithHintf("requested date %s is outside the subscription's entitlement window",
			requested.Format(time.DateOnly)).
		WithReportableDetails(map[string]any{
			"subscription_id": sub.ID,
			"requested_date":  requested,
			"start_date":      sub.EntitlementStartDate,
			"cancel_date":     sub.CancelDate,
		}).
		Mark(ierr.ErrInvalidRequested)
}
