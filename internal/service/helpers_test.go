package service

import (
	"time"

	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	"github.com/billcraft/billcraft/internal/testutil"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/shopspring/decimal"
)

// engineTestSuite wires the full service stack over in-memory stores. Every
// suite in this package embeds it.
type engineTestSuite struct {
	testutil.BaseServiceTestSuite
	accountSvc AccountService
	catalogSvc CatalogService
	subSvc     SubscriptionService
	invoiceSvc InvoiceService
	runSvc     InvoiceRunService
	resolver   *catalog.VersionResolver
}

func (s *engineTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.resolver = catalog.NewVersionResolver(stores.CatalogRepo, s.GetLogger())

	params := NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetClock(),
		stores.AccountRepo,
		stores.CatalogRepo,
		stores.SubscriptionRepo,
		stores.InvoiceRepo,
		stores.CreditRepo,
		s.resolver,
		subscription.NewAlignmentResolver(),
		s.GetPublisher(),
		s.GetQueue(),
		s.GetLocker(),
		s.GetIdempotencyGenerator(),
		nil,
	)

	s.accountSvc = NewAccountService(params)
	s.catalogSvc = NewCatalogService(params)
	s.subSvc = NewSubscriptionService(params)

	var err error
	s.invoiceSvc, err = NewInvoiceService(params)
	s.Require().NoError(err)
	s.runSvc = NewInvoiceRunService(params, s.invoiceSvc)
}

// standardPlans is the v1 plan set used across the suites: a trial-fronted
// base plan, an evergreen-only base plan and an add-on.
func standardPlans() []*catalog.Plan {
	return []*catalog.Plan{
		{
			Name:              "standard-monthly",
			ProductName:       "Standard",
			ProductCategory:   types.ProductCategoryBase,
			PriceList:         "DEFAULT",
			Currency:          "USD",
			BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
			BillingPeriodUnit: 1,
			Phases: []*catalog.Phase{
				{
					Name:         "standard-monthly-trial",
					Type:         types.PhaseTypeTrial,
					DurationDays: 30,
				},
				{
					Name:           "standard-monthly-evergreen",
					Type:           types.PhaseTypeEvergreen,
					RecurringPrice: decimal.NewFromFloat(249.95),
				},
			},
		},
		{
			Name:              "basic-monthly",
			ProductName:       "Basic",
			ProductCategory:   types.ProductCategoryBase,
			PriceList:         "DEFAULT",
			Currency:          "USD",
			BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
			BillingPeriodUnit: 1,
			Phases: []*catalog.Phase{
				{
					Name:           "basic-monthly-evergreen",
					Type:           types.PhaseTypeEvergreen,
					RecurringPrice: decimal.NewFromFloat(19.95),
				},
			},
		},
		{
			Name:              "oilslick-monthly",
			ProductName:       "OilSlick",
			ProductCategory:   types.ProductCategoryAddOn,
			PriceList:         "DEFAULT",
			Currency:          "USD",
			BillingPeriod:     types.BILLING_PERIOD_MONTHLY,
			BillingPeriodUnit: 1,
			Phases: []*catalog.Phase{
				{
					Name:           "oilslick-monthly-evergreen",
					Type:           types.PhaseTypeEvergreen,
					RecurringPrice: decimal.NewFromFloat(7.95),
				},
			},
		},
	}
}

func (s *engineTestSuite) createCatalog() *catalog.Catalog {
	c, err := s.catalogSvc.Create(s.GetContext(), &CreateCatalogRequest{Name: "main"})
	s.Require().NoError(err)
	_, err = s.catalogSvc.PublishVersion(s.GetContext(), &PublishVersionRequest{
		CatalogID:     c.ID,
		EffectiveDate: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
		Plans:         standardPlans(),
	})
	s.Require().NoError(err)
	return c
}

func (s *engineTestSuite) createAccount(catalogID string) *account.Account {
	acct, err := s.accountSvc.Create(s.GetContext(), &CreateAccountRequest{
		Name:      "Pierre",
		Currency:  "USD",
		CatalogID: catalogID,
	})
	s.Require().NoError(err)
	return acct
}

func (s *engineTestSuite) setup() *account.Account {
	c := s.createCatalog()
	return s.createAccount(c.ID)
}

func (s *engineTestSuite) createSubscription(acct *account.Account, product string, requested *time.Time) *subscription.Subscription {
	sub, err := s.subSvc.Create(s.GetContext(), &CreateSubscriptionRequest{
		AccountID:     acct.ID,
		ProductName:   product,
		BillingPeriod: types.BILLING_PERIOD_MONTHLY,
		PriceList:     "DEFAULT",
		RequestedDate: requested,
	})
	s.Require().NoError(err)
	return sub
}

func timePtr(t time.Time) *time.Time {
	return &t
}
