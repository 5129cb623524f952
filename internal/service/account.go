package service

import (
	"context"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/billcraft/billcraft/internal/validator"
	"github.com/shopspring/decimal"
)

type CreateAccountRequest struct {
	Name      string `json:"name" validate:"required"`
	Currency  string `json:"currency" validate:"required,len=3"`
	CatalogID string `json:"catalog_id" validate:"required"`
	// BCD pins the account-level billing cycle day; 0 derives it from each
	// subscription's anchor
	BCD              int `json:"bcd" validate:"gte=0,lte=31"`
	UTCOffsetMinutes int `json:"utc_offset_minutes" validate:"gte=-720,lte=840"`
}

// AccountService owns accounts and the parked-state machine. Unparking
// revalidates consistency: the same violation that parked the account must
// not still be present.
type AccountService interface {
	Create(ctx context.Context, req *CreateAccountRequest) (*account.Account, error)
	Get(ctx context.Context, accountID string) (*account.Account, error)
	CreditBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Park(ctx context.Context, accountID, reason string) error
	Unpark(ctx context.Context, accountID string) error
}

type accountService struct {
	ServiceParams
	scheduler *BillingPeriodScheduler
}

func NewAccountService(params ServiceParams) AccountService {
	return &accountService{
		ServiceParams: params,
		scheduler:     NewBillingPeriodScheduler(params.Logger),
	}
}

func (s *accountService) Create(ctx context.Context, req *CreateAccountRequest) (*account.Account, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}

	acct := &account.Account{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ACCOUNT),
		Name:             req.Name,
		Currency:         req.Currency,
		CatalogID:        req.CatalogID,
		BCD:              req.BCD,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		State:            types.AccountStateActive,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := s.AccountRepo.Create(ctx, acct); err != nil {
		return nil, err
	}

	s.Logger.Infow("created account", "account_id", acct.ID, "currency", acct.Currency)
	return acct, nil
}

func (s *accountService) Get(ctx context.Context, accountID string) (*account.Account, error) {
	return s.AccountRepo.Get(ctx, accountID)
}

func (s *accountService) CreditBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.CreditRepo.Balance(ctx, accountID)
}

func (s *accountService) Park(ctx context.Context, accountID, reason string) error {
	unlock := s.Locker.Lock(accountID)
	defer unlock()

	acct, err := s.AccountRepo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	acct.Park(reason, s.Clock.Now())
	return s.AccountRepo.Update(ctx, acct)
}

func (s *accountService) Unpark(ctx context.Context, accountID string) error {
	unlock := s.Locker.Lock(accountID)
	defer unlock()

	acct, err := s.AccountRepo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.checkConsistency(ctx, accountID); err != nil {
		return err
	}
	if err := acct.Unpark(); err != nil {
		return err
	}
	if err := s.AccountRepo.Update(ctx, acct); err != nil {
		return err
	}

	s.Logger.Infow("unparked account", "account_id", accountID)
	return nil
}

// checkConsistency re-runs the invariants the invoicing engine parks on: no
// two committed unrepaired items may bill the same subscription range, and
// the credit balance may never be negative.
func (s *accountService) checkConsistency(ctx context.Context, accountID string) error {
	balance, err := s.CreditRepo.Balance(ctx, accountID)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return ierr.NewError("credit balance is negative").
			WithReportableDetails(map[string]any{
				"account_id": accountID,
				"balance":    balance,
			}).
			Mark(ierr.ErrDoubleBilling)
	}

	invoices, err := s.InvoiceRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	committed := make([]*invoice.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status == types.InvoiceStatusCommitted {
			committed = append(committed, inv)
		}
	}

	repairs := collectRepairs(committed)
	bySub := collectCommittedItems(committed)
	for subID, items := range bySub {
		var ranges []billedRange
		for _, item := range items {
			if item.Type != types.InvoiceItemRecurring && item.Type != types.InvoiceItemUsage {
				continue
			}
			if item.EndDate == nil {
				continue
			}
			end := *item.EndDate
			if prior, ok := repairs[item.ID]; ok {
				end = prior.StartDate
			}
			if !item.StartDate.Before(end) {
				continue
			}
			for _, r := range ranges {
				if item.PlanName == r.planName && item.PhaseName == r.phaseName &&
					item.StartDate.Before(r.end) && r.start.Before(end) {
					return ierr.NewError("committed items bill an overlapping range").
						WithHint("Repair or adjust the overlapping invoices before unparking").
						WithReportableDetails(map[string]any{
							"subscription_id": subID,
							"item_id":         item.ID,
							"overlaps_item":   r.itemID,
						}).
						Mark(ierr.ErrDoubleBilling)
				}
			}
			ranges = append(ranges, billedRange{
				start:     item.StartDate,
				end:       end,
				itemID:    item.ID,
				planName:  item.PlanName,
				phaseName: item.PhaseName,
			})
		}
	}
	return nil
}
