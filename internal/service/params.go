package service

import (
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
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Clock  clock.Clock

	// Repositories
	AccountRepo account.Repository
	CatalogRepo catalog.Repository
	SubRepo     subscription.Repository
	InvoiceRepo invoice.Repository
	CreditRepo  credit.Repository

	// Collaborators
	CatalogResolver   *catalog.VersionResolver
	AlignmentResolver *subscription.AlignmentResolver
	EventPublisher    publisher.EventPublisher
	WakeUpQueue       notification.Queue
	Locker            *locker.AccountLocker
	IdempGen          *idempotency.Generator
	Plugins           []InvoicePlugin
}

// NewServiceParams assembles the common service dependencies
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	clock clock.Clock,
	accountRepo account.Repository,
	catalogRepo catalog.Repository,
	subRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	creditRepo credit.Repository,
	catalogResolver *catalog.VersionResolver,
	alignmentResolver *subscription.AlignmentResolver,
	eventPublisher publisher.EventPublisher,
	wakeUpQueue notification.Queue,
	locker *locker.AccountLocker,
	idempGen *idempotency.Generator,
	plugins []InvoicePlugin,
) ServiceParams {
	return ServiceParams{
		Logger:            logger,
		Config:            config,
		Clock:             clock,
		AccountRepo:       accountRepo,
		CatalogRepo:       catalogRepo,
		SubRepo:           subRepo,
		InvoiceRepo:       invoiceRepo,
		CreditRepo:        creditRepo,
		CatalogResolver:   catalogResolver,
		AlignmentResolver: alignmentResolver,
		EventPublisher:    eventPublisher,
		WakeUpQueue:       wakeUpQueue,
		Locker:            locker,
		IdempGen:          idempGen,
		Plugins:           plugins,
	}
}
