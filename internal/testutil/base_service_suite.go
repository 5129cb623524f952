package testutil

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/clock"
	"github.com/billcraft/billcraft/internal/config"
	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/credit"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	"github.com/billcraft/billcraft/internal/idempotency"
	"github.com/billcraft/billcraft/internal/locker"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/notification"
	"github.com/billcraft/billcraft/internal/publisher"
	"github.com/billcraft/billcraft/internal/pubsub"
	"github.com/billcraft/billcraft/internal/pubsub/memory"
	"github.com/billcraft/billcraft/internal/repository"
	"github.com/billcraft/billcraft/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	AccountRepo      account.Repository
	CatalogRepo      catalog.Repository
	SubscriptionRepo subscription.Repository
	InvoiceRepo      invoice.Repository
	CreditRepo       credit.Repository
}

// BaseServiceTestSuite provides common functionality for all service test
// suites: in-memory stores, a controllable clock and an in-process pubsub.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	clock     *clock.TestClock
	pubsub    pubsub.PubSub
	publisher publisher.EventPublisher
	queue     notification.Queue
	locker    *locker.AccountLocker
	idempGen  *idempotency.Generator
	logger    *logger.Logger
	config    *config.Configuration
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.clock = clock.NewTestClock(time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC))
	s.locker = locker.NewAccountLocker()
	s.idempGen = idempotency.NewGenerator()
	s.pubsub = memory.NewPubSub(s.logger)
	s.publisher = publisher.NewEventPublisher(s.pubsub, s.config.Notification.LifecycleTopic, s.logger)
	s.queue = notification.NewQueue(s.pubsub, s.config.Notification.Topic, s.logger)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		AccountRepo:      repository.NewInMemoryAccountStore(),
		CatalogRepo:      repository.NewInMemoryCatalogStore(),
		SubscriptionRepo: repository.NewInMemorySubscriptionStore(),
		InvoiceRepo:      repository.NewInMemoryInvoiceStore(),
		CreditRepo:       repository.NewInMemoryCreditStore(),
	}
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetClock() *clock.TestClock {
	return s.clock
}

func (s *BaseServiceTestSuite) GetPubSub() pubsub.PubSub {
	return s.pubsub
}

func (s *BaseServiceTestSuite) GetPublisher() publisher.EventPublisher {
	return s.publisher
}

func (s *BaseServiceTestSuite) GetQueue() notification.Queue {
	return s.queue
}

func (s *BaseServiceTestSuite) GetLocker() *locker.AccountLocker {
	return s.locker
}

func (s *BaseServiceTestSuite) GetIdempotencyGenerator() *idempotency.Generator {
	return s.idempGen
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}
