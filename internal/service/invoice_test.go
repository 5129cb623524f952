package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/billcraft/billcraft/internal/domain/invoice"
	ierr "github.com/billcraft/billcraft/internal/errors"
	"github.com/billcraft/billcraft/internal/notification"
	"github.com/billcraft/billcraft/internal/publisher"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	engineTestSuite
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func itemsOfType(inv *invoice.Invoice, typ types.InvoiceItemType) []*invoice.InvoiceItem {
	var out []*invoice.InvoiceItem
	for _, item := range inv.Items {
		if item.Type == typ {
			out = append(out, item)
		}
	}
	return out
}

func (s *InvoiceServiceSuite) TestTrialFirstInvoice() {
	acct := s.setup()
	sub := s.createSubscription(acct, "Standard", nil)

	inv, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)

	s.Equal(types.InvoiceStatusCommitted, inv.Status)
	s.Require().Len(inv.Items, 1)
	item := inv.Items[0]
	s.Equal(types.InvoiceItemFixed, item.Type)
	s.True(item.Amount.IsZero())
	s.Equal("standard-monthly", item.PlanName)
	s.Equal("standard-monthly-trial", item.PhaseName)
	s.True(inv.Total().IsZero())

	// The trial marker still advances coverage to the trial's end
	updated, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.Require().NotNil(updated.ChargedThroughDate)
	s.True(updated.ChargedThroughDate.Equal(time.Date(2016, 5, 31, 0, 0, 0, 0, time.UTC)))
}

func (s *InvoiceServiceSuite) TestFirstRecurringInvoice() {
	acct := s.setup()
	sub := s.createSubscription(acct, "Standard", nil)

	_, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)

	s.GetClock().SetTime(time.Date(2016, 5, 31, 0, 0, 0, 0, time.UTC))
	inv, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)

	recurring := itemsOfType(inv, types.InvoiceItemRecurring)
	s.Require().Len(recurring, 1)
	item := recurring[0]
	s.True(item.Amount.Equal(decimal.NewFromFloat(249.95)), "got %s", item.Amount)
	s.True(item.StartDate.Equal(time.Date(2016, 5, 31, 0, 0, 0, 0, time.UTC)))
	s.Require().NotNil(item.EndDate)
	// Anchored on the 31st, June clamps to the 30th
	s.True(item.EndDate.Equal(time.Date(2016, 6, 30, 0, 0, 0, 0, time.UTC)))

	updated, err := s.GetStores().SubscriptionRepo.Get(s.GetContext(), sub.ID)
	s.Require().NoError(err)
	s.True(updated.ChargedThroughDate.Equal(time.Date(2016, 6, 30, 0, 0, 0, 0, time.UTC)))
}

func (s *InvoiceServiceSuite) TestRerunHasNothingToDo() {
	acct := s.setup()
	s.createSubscription(acct, "Basic", nil)

	_, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)

	_, err = s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().Error(err)
	s.True(ierr.IsNothingToDo(err))

	invoices, err := s.invoiceSvc.ListInvoices(s.GetContext(), acct.ID)
	s.Require().NoError(err)
	s.Len(invoices, 1)
}

// cancelWithRepair bills a Basic subscription from May 15, cancels it on
// May 23 and runs the repair invoice. It returns the account and both
// invoices. The original charge is 19.95 over [May 15, Jun 15); eight days
// were used, so 14.80 flows back as credit.
func (s *InvoiceServiceSuite) cancelWithRepair() (string, *invoice.Invoice, *invoice.Invoice) {
	acct := s.setup()
	s.GetClock().SetTime(time.Date(2016, 5, 15, 0, 0, 0, 0, time.UTC))
	sub := s.createSubscription(acct, "Basic", nil)

	first, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)

	s.GetClock().SetTime(time.Date(2016, 5, 23, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.subSvc.Cancel(s.GetContext(), sub.ID, nil))

	repair, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().NoError(err)
	return acct.ID, first, repair
}

func (s *InvoiceServiceSuite) TestCancelGeneratesRepairAndCredit() {
	accountID, first, repair := s.cancelWithRepair()

	s.Require().Len(first.Items, 1)
	original := first.Items[0]
	s.True(original.Amount.Equal(decimal.NewFromFloat(19.95)))

	repairs := itemsOfType(repair, types.InvoiceItemRepairAdj)
	s.Require().Len(repairs, 1)
	// 8 of 31 days consumed: 5.15 kept, the rest returned
	s.True(repairs[0].Amount.Equal(decimal.NewFromFloat(-14.80)), "got %s", repairs[0].Amount)
	s.Require().NotNil(repairs[0].LinkedItemID)
	s.Equal(original.ID, *repairs[0].LinkedItemID)
	s.True(repairs[0].StartDate.Equal(time.Date(2016, 5, 23, 0, 0, 0, 0, time.UTC)))

	credits := itemsOfType(repair, types.InvoiceItemCBAAdj)
	s.Require().Len(credits, 1)
	s.True(credits[0].Amount.Equal(decimal.NewFromFloat(14.80)))
	s.True(credits[0].StartDate.Equal(time.Date(2016, 5, 23, 0, 0, 0, 0, time.UTC)))

	s.True(repair.Total().IsZero(), "repair and credit must balance, got %s", repair.Total())

	balance, err := s.accountSvc.CreditBalance(s.GetContext(), accountID)
	s.Require().NoError(err)
	s.True(balance.Equal(decimal.NewFromFloat(14.80)), "got %s", balance)
}

func (s *InvoiceServiceSuite) TestCreditConsumedOldestFirst() {
	accountID, _, _ := s.cancelWithRepair()

	acct, err := s.accountSvc.Get(s.GetContext(), accountID)
	s.Require().NoError(err)

	s.GetClock().SetTime(time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC))
	s.createSubscription(acct, "Basic", nil)

	inv, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), accountID, s.GetClock().Now())
	s.Require().NoError(err)

	recurring := itemsOfType(inv, types.InvoiceItemRecurring)
	s.Require().Len(recurring, 1)
	s.True(recurring[0].Amount.Equal(decimal.NewFromFloat(19.95)))

	consumed := itemsOfType(inv, types.InvoiceItemCBAAdj)
	s.Require().Len(consumed, 1)
	s.True(consumed[0].Amount.Equal(decimal.NewFromFloat(-14.80)))
	s.Nil(consumed[0].LinkedItemID)

	s.True(inv.Total().Equal(decimal.NewFromFloat(5.15)), "got %s", inv.Total())

	balance, err := s.accountSvc.CreditBalance(s.GetContext(), accountID)
	s.Require().NoError(err)
	s.True(balance.IsZero(), "got %s", balance)
}

func (s *InvoiceServiceSuite) TestVoidRestoresConsumedCredit() {
	accountID, _, repair := s.cancelWithRepair()

	acct, err := s.accountSvc.Get(s.GetContext(), accountID)
	s.Require().NoError(err)

	s.GetClock().SetTime(time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC))
	s.createSubscription(acct, "Basic", nil)
	consuming, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), accountID, s.GetClock().Now())
	s.Require().NoError(err)

	// The repair invoice's credit is spent, so it cannot be voided
	err = s.invoiceSvc.VoidInvoice(s.GetContext(), repair.ID)
	s.Require().Error(err)
	s.ErrorIs(err, ierr.ErrCreditNotReclaimed)

	// Voiding the consuming invoice returns what it drew
	s.Require().NoError(s.invoiceSvc.VoidInvoice(s.GetContext(), consuming.ID))

	voided, err := s.invoiceSvc.GetInvoice(s.GetContext(), consuming.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusVoid, voided.Status)

	balance, err := s.accountSvc.CreditBalance(s.GetContext(), accountID)
	s.Require().NoError(err)
	s.True(balance.Equal(decimal.NewFromFloat(14.80)), "got %s", balance)
}

func (s *InvoiceServiceSuite) TestVoidRequiresCommittedInvoice() {
	accountID, _, repair := s.cancelWithRepair()
	_ = accountID

	s.Require().NoError(s.invoiceSvc.VoidInvoice(s.GetContext(), repair.ID))

	err := s.invoiceSvc.VoidInvoice(s.GetContext(), repair.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *InvoiceServiceSuite) TestParkedAccountRefusesInvoicing() {
	acct := s.setup()
	s.createSubscription(acct, "Basic", nil)

	s.Require().NoError(s.accountSvc.Park(s.GetContext(), acct.ID, "manual review"))

	_, err := s.invoiceSvc.GenerateInvoice(s.GetContext(), acct.ID, s.GetClock().Now())
	s.Require().Error(err)
	s.True(ierr.IsAccountParked(err))
}

func (s *InvoiceServiceSuite) TestProcessWakeUpNotYetDue() {
	acct := s.setup()
	sub := s.createSubscription(acct, "Basic", nil)

	err := s.invoiceSvc.ProcessWakeUp(s.GetContext(), &notification.WakeUp{
		ID:             "wk-future",
		AccountID:      acct.ID,
		SubscriptionID: sub.ID,
		EffectiveDate:  time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	invoices, err := s.invoiceSvc.ListInvoices(s.GetContext(), acct.ID)
	s.Require().NoError(err)
	s.Empty(invoices)
}

func (s *InvoiceServiceSuite) TestProcessWakeUpPublishesNullInvoice() {
	acct := s.setup()

	messages, err := s.GetPubSub().Subscribe(s.GetContext(), s.GetConfig().Notification.LifecycleTopic)
	s.Require().NoError(err)

	// No subscriptions at all: the wake-up resolves to a null invoice
	err = s.invoiceSvc.ProcessWakeUp(s.GetContext(), &notification.WakeUp{
		ID:            "wk-null",
		AccountID:     acct.ID,
		EffectiveDate: s.GetClock().Now(),
	})
	s.Require().NoError(err)

	select {
	case msg := <-messages:
		var event publisher.LifecycleEvent
		s.Require().NoError(json.Unmarshal(msg.Payload, &event))
		s.Equal(types.LifecycleEventNullInvoice, event.Type)
		s.Equal(acct.ID, event.AccountID)
		msg.Ack()
	case <-time.After(2 * time.Second):
		s.Fail("expected a NULL_INVOICE lifecycle event")
	}

	invoices, err := s.invoiceSvc.ListInvoices(s.GetContext(), acct.ID)
	s.Require().NoError(err)
	s.Empty(invoices)
}
