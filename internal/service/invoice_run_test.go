package service

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type InvoiceRunSuite struct {
	engineTestSuite
}

func TestInvoiceRun(t *testing.T) {
	suite.Run(t, new(InvoiceRunSuite))
}

func (s *InvoiceRunSuite) TestRunAllCountsOutcomes() {
	c := s.createCatalog()

	// One account with a pending charge, one with nothing to bill and one
	// parked
	billable := s.createAccount(c.ID)
	s.createSubscription(billable, "Basic", nil)

	s.createAccount(c.ID)

	parked := s.createAccount(c.ID)
	s.createSubscription(parked, "Basic", nil)
	s.Require().NoError(s.accountSvc.Park(s.GetContext(), parked.ID, "manual review"))

	result, err := s.runSvc.RunAll(s.GetContext(), s.GetClock().Now())
	s.Require().NoError(err)

	s.Equal(3, result.Accounts)
	s.Equal(1, result.Invoiced)
	s.Equal(1, result.NothingToDo)
	s.Equal(1, result.Parked)
	s.Equal(0, result.Failed)

	invoices, err := s.invoiceSvc.ListInvoices(s.GetContext(), billable.ID)
	s.Require().NoError(err)
	s.Len(invoices, 1)
}

func (s *InvoiceRunSuite) TestRunAllIsIdempotent() {
	acct := s.setup()
	s.createSubscription(acct, "Basic", nil)

	first, err := s.runSvc.RunAll(s.GetContext(), s.GetClock().Now())
	s.Require().NoError(err)
	s.Equal(1, first.Invoiced)

	second, err := s.runSvc.RunAll(s.GetContext(), s.GetClock().Now())
	s.Require().NoError(err)
	s.Equal(0, second.Invoiced)
	s.Equal(1, second.NothingToDo)
}
