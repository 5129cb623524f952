package service

import (
	"context"
	"sync"
	"time"

	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/sourcegraph/conc/pool"
)

const invoiceRunConcurrency = 8

// InvoiceRunResult summarizes one sweep over all accounts.
type InvoiceRunResult struct {
	Accounts    int
	Invoiced    int
	NothingToDo int
	Parked      int
	Failed      int
}

// InvoiceRunService sweeps every account for pending invoices, e.g. from a
// periodic job backstopping the wake-up queue. Accounts fan out in parallel;
// the per-account lock keeps each account's run exclusive.
type InvoiceRunService interface {
	RunAll(ctx context.Context, targetDate time.Time) (*InvoiceRunResult, error)
}

type invoiceRunService struct {
	ServiceParams
	invoices InvoiceService
}

func NewInvoiceRunService(params ServiceParams, invoices InvoiceService) InvoiceRunService {
	return &invoiceRunService{
		ServiceParams: params,
		invoices:      invoices,
	}
}

func (s *invoiceRunService) RunAll(ctx context.Context, targetDate time.Time) (*InvoiceRunResult, error) {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &InvoiceRunResult{Accounts: len(accounts)}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(invoiceRunConcurrency)
	for _, acct := range accounts {
		accountID := acct.ID
		p.Go(func() {
			_, err := s.invoices.GenerateInvoice(ctx, accountID, targetDate)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Invoiced++
			case ierr.IsNothingToDo(err):
				result.NothingToDo++
			case ierr.IsAccountParked(err) || ierr.IsDoubleBilling(err):
				result.Parked++
			default:
				result.Failed++
				s.Logger.Errorw("invoice run failed for account",
					"error", err,
					"account_id", accountID,
					"target_date", targetDate,
				)
			}
		})
	}
	p.Wait()

	s.Logger.Infow("completed invoice run",
		"target_date", targetDate,
		"accounts", result.Accounts,
		"invoiced", result.Invoiced,
		"nothing_to_do", result.NothingToDo,
		"parked", result.Parked,
		"failed", result.Failed,
	)
	return result, nil
}
