package main

import (
	"context"
	"time"

	"github.com/billcraft/billcraft/internal/clock"
	"github.com/billcraft/billcraft/internal/config"
	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/subscription"
	"github.com/billcraft/billcraft/internal/idempotency"
	"github.com/billcraft/billcraft/internal/locker"
	"github.com/billcraft/billcraft/internal/logger"
	"github.com/billcraft/billcraft/internal/notification"
	"github.com/billcraft/billcraft/internal/publisher"
	"github.com/billcraft/billcraft/internal/pubsub"
	"github.com/billcraft/billcraft/internal/pubsub/memory"
	"github.com/billcraft/billcraft/internal/repository"
	"github.com/billcraft/billcraft/internal/service"
	"github.com/billcraft/billcraft/internal/types"
	"github.com/billcraft/billcraft/internal/validator"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// Load .env if present; real config still comes from viper
	_ = godotenv.Load()

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Clock
			clock.New,

			// Transport
			memory.NewPubSub,
			providePublisher,
			provideSubscriber,
			provideEventPublisher,
			provideWakeUpQueue,
			provideConsumer,

			// Locking and idempotency
			locker.NewAccountLocker,
			idempotency.NewGenerator,
		),
	)

	// Repositories
	opts = append(opts,
		fx.Provide(
			repository.NewAccountRepository,
			repository.NewCatalogRepository,
			repository.NewSubscriptionRepository,
			repository.NewInvoiceRepository,
			repository.NewCreditRepository,
		),
	)

	// Resolvers and services
	opts = append(opts,
		fx.Provide(
			catalog.NewVersionResolver,
			subscription.NewAlignmentResolver,
			provideInvoicePlugins,
			service.NewServiceParams,
			service.NewAccountService,
			service.NewCatalogService,
			service.NewSubscriptionService,
			service.NewInvoiceService,
			service.NewInvoiceRunService,
		),
		fx.Invoke(startServer),
	)

	app := fx.New(opts...)
	app.Run()
}

func providePublisher(ps pubsub.PubSub) pubsub.Publisher {
	return ps
}

func provideSubscriber(ps pubsub.PubSub) pubsub.Subscriber {
	return ps
}

func provideEventPublisher(ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) publisher.EventPublisher {
	return publisher.NewEventPublisher(ps, cfg.Notification.LifecycleTopic, log)
}

func provideWakeUpQueue(ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) notification.Queue {
	return notification.NewQueue(ps, cfg.Notification.Topic, log)
}

func provideConsumer(ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) *notification.Consumer {
	return notification.NewConsumer(ps, cfg.Notification, log)
}

// provideInvoicePlugins is the extension point for invoice plugins; the
// default deployment carries none.
func provideInvoicePlugins() []service.InvoicePlugin {
	return nil
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	consumer *notification.Consumer,
	invoiceService service.InvoiceService,
	invoiceRunService service.InvoiceRunService,
	cl clock.Clock,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startConsumer(lc, consumer, invoiceService, log)
		startSweeper(lc, invoiceRunService, cl, log)
	case types.ModeConsumer:
		startConsumer(lc, consumer, invoiceService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startConsumer(
	lc fx.Lifecycle,
	consumer *notification.Consumer,
	invoiceService service.InvoiceService,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("Starting wake-up consumer...")
			go func() {
				if err := consumer.Run(ctx, invoiceService.ProcessWakeUp); err != nil && ctx.Err() == nil {
					log.Fatalf("Wake-up consumer stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("Stopping wake-up consumer...")
			cancel()
			return nil
		},
	})
}

// startSweeper runs a daily invoicing pass over every account as a
// safety net for missed or dropped wake-ups.
func startSweeper(
	lc fx.Lifecycle,
	invoiceRunService service.InvoiceRunService,
	cl clock.Clock,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("Starting daily invoice sweeper...")
			go func() {
				ticker := time.NewTicker(24 * time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						sweepCtx := types.SetUserID(types.SetTenantID(ctx, types.DefaultTenantID), types.DefaultUserID)
						result, err := invoiceRunService.RunAll(sweepCtx, cl.Now())
						if err != nil {
							log.Errorw("invoice sweep failed", "error", err)
							continue
						}
						log.Infow("invoice sweep complete",
							"accounts", result.Accounts,
							"invoiced", result.Invoiced,
							"nothing_to_do", result.NothingToDo,
							"parked", result.Parked,
							"failed", result.Failed,
						)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
