package service

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/billcraft/billcraft/internal/validator"
	"github.com/samber/lo"
)

// DryRunAction is a hypothetical subscription operation applied to a forked
// timeline before previewing.
type DryRunAction struct {
	SubscriptionID string                 `json:"subscription_id" validate:"required"`
	EventType      types.BillingEventType `json:"event_type" validate:"required"`
	EffectiveDate  *time.Time             `json:"effective_date"`
	// Plan selector, for CHANGE actions
	ProductName   string              `json:"product_name"`
	BillingPeriod types.BillingPeriod `json:"billing_period"`
	PriceList     string              `json:"price_list"`
}

type DryRunRequest struct {
	AccountID string           `json:"account_id" validate:"required"`
	Type      types.DryRunType `json:"type" validate:"required"`
	// TargetDate is required for TARGET_DATE previews
	TargetDate *time.Time `json:"target_date"`
	// Action is required for SUBSCRIPTION_ACTION previews
	Action *DryRunAction `json:"action"`
}

func (r *DryRunRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if r.Type == types.DryRunTargetDate && r.TargetDate == nil {
		return ierr.NewError("target date is required for this dry run type").
			WithHint("Provide a target date for TARGET_DATE previews").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.DryRunSubscriptionAction && r.Action == nil {
		return ierr.NewError("action is required for this dry run type").
			WithHint("Provide the hypothetical action for SUBSCRIPTION_ACTION previews").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DryRunInvoice previews the exact invoice a real run would commit, without
// persisting anything: the state is forked up front, the computation path is
// the same code, and the dry-run context suppresses every publish and
// schedule on the way out.
func (s *invoiceService) DryRunInvoice(ctx context.Context, req *DryRunRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = types.WithDryRun(ctx)
	now := s.Clock.Now()

	unlock := s.Locker.Lock(req.AccountID)
	defer unlock()

	st, err := s.loadState(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	fork := st.clone()

	var targetDate time.Time
	switch req.Type {
	case types.DryRunTargetDate:
		targetDate = *req.TargetDate

	case types.DryRunUpcomingInvoice:
		next, err := s.scheduler.NextWakeUp(fork.account, timelinesOf(fork), now)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, nothingToDo(req.AccountID, now)
		}
		targetDate = *next

	case types.DryRunSubscriptionAction:
		targetDate, err = s.applyDryRunAction(ctx, fork, req.Action, now)
		if err != nil {
			return nil, err
		}
	}

	inv, _, err := s.buildInvoice(ctx, fork, targetDate, true)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// applyDryRunAction mutates the forked timelines as the real operation would
// and returns the preview target date.
func (s *invoiceService) applyDryRunAction(ctx context.Context, st *billingState, action *DryRunAction, now time.Time) (time.Time, error) {
	var sub *subscriptionRef
	for _, candidate := range st.subs {
		if candidate.ID == action.SubscriptionID {
			sub = &subscriptionRef{sub: candidate, tl: st.timelines[candidate.ID]}
			break
		}
	}
	if sub == nil {
		return time.Time{}, ierr.NewError("subscription not found on account").
			WithReportableDetails(map[string]any{
				"subscription_id": action.SubscriptionID,
				"account_id":      st.account.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	effective := now
	if action.EffectiveDate != nil {
		effective = *action.EffectiveDate
	}

	switch action.EventType {
	case types.BillingEventCancel:
		ev := eventFromPrior(sub.tl, sub.sub, types.BillingEventCancel, effective)
		if err := insertEvent(sub.tl, ev); err != nil {
			return time.Time{}, err
		}
		markBilledCoverageDirty(sub.tl, sub.sub, effective)

	case types.BillingEventChange:
		bundle, err := s.SubRepo.GetBundle(ctx, sub.sub.BundleID)
		if err != nil {
			return time.Time{}, err
		}
		version, err := s.CatalogResolver.ResolveForAlignment(ctx, st.account.CatalogID, types.AlignmentChangeOfPlan, catalog.AlignmentDates{
			BundleCreatedAt:       bundle.CreatedDate,
			SubscriptionCreatedAt: sub.sub.CreationDate,
			ChangeEffective:       effective,
		})
		if err != nil {
			return time.Time{}, err
		}
		plan, err := version.FindPlan(action.ProductName, action.BillingPeriod, action.PriceList)
		if err != nil {
			return time.Time{}, err
		}
		for _, ev := range sub.tl.EventsSince(effective) {
			if ev.Type == types.BillingEventPhase && ev.EffectiveDate.After(effective) {
				if _, err := sub.tl.Remove(ev.ID); err != nil {
					return time.Time{}, err
				}
			}
		}
		for _, ev := range buildPlanEvents(sub.sub, plan, version.ID, types.AlignmentChangeOfPlan, effective, types.BillingEventChange) {
			if err := insertEvent(sub.tl, ev); err != nil {
				return time.Time{}, err
			}
		}
		markBilledCoverageDirty(sub.tl, sub.sub, effective)

	default:
		return time.Time{}, ierr.NewError("unsupported dry run action").
			WithHint("Only CANCEL and CHANGE actions can be previewed").
			WithReportableDetails(map[string]any{
				"event_type": action.EventType,
			}).
			Mark(ierr.ErrValidation)
	}

	annotateAnchors(s.AlignmentResolver, st.account, sub.sub, sub.tl)

	if effective.After(now) {
		return effective, nil
	}
	return now, nil
}

type subscriptionRef struct {
	sub *subscription.Subscription
	tl  *subscription.Timeline
}

func timelinesOf(st *billingState) []*subscription.Timeline {
	return lo.Values(st.timelines)
}
