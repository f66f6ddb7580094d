package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/mspfin/billing-engine/internal/api"
	"github.com/mspfin/billing-engine/internal/api/cron"
	v1 "github.com/mspfin/billing-engine/internal/api/v1"
	"github.com/mspfin/billing-engine/internal/cache"
	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/pubsub"
	"github.com/mspfin/billing-engine/internal/pubsub/memory"
	"github.com/mspfin/billing-engine/internal/repository"
	"github.com/mspfin/billing-engine/internal/scheduler"
	"github.com/mspfin/billing-engine/internal/sentry"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	// local runs keep BILLING_* overrides in a .env file; deployed modes set
	// them in the environment and have no file
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	// the repository backend depends on the configuration, so it is read
	// before the container is built
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Supply(cfg),
		fx.Provide(
			logger.NewLogger,

			sentry.NewSentryService,

			clock.NewReal,

			cache.NewInMemoryCache,

			lock.NewLocker,

			memory.NewPubSub,
			providePublisher,
			provideSubscriber,
		),
	)

	opts = append(opts, repository.Module(repository.TypeFor(cfg)))

	opts = append(opts,
		fx.Provide(
			service.NewAuditPublisher,
			service.NewAuditLogSink,

			service.NewServiceParams,

			service.NewTaxService,
			service.NewInvoiceService,
			service.NewContractService,
			service.NewRecurringInvoiceService,
			service.NewPaymentService,
			service.NewCalculationService,

			scheduler.NewScheduler,
		),
	)

	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
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

func provideHandlers(
	cfg *config.Configuration,
	logger *logger.Logger,
	clk clock.Clock,
	invoiceService service.InvoiceService,
	taxService service.TaxService,
	contractService service.ContractService,
	recurringService service.RecurringInvoiceService,
	paymentService service.PaymentService,
	calculationService service.CalculationService,
) api.Handlers {
	return api.Handlers{
		Health:        v1.NewHealthHandler(cfg, clk),
		Calculation:   v1.NewCalculationHandler(invoiceService, taxService, contractService, calculationService, logger),
		Invoice:       v1.NewInvoiceHandler(invoiceService, logger),
		Contract:      v1.NewContractHandler(contractService, logger),
		Recurring:     v1.NewRecurringInvoiceHandler(recurringService, clk, logger),
		Payment:       v1.NewPaymentHandler(paymentService, logger),
		TaxRate:       v1.NewTaxRateHandler(taxService, logger),
		CronRecurring: cron.NewRecurringInvoiceHandler(recurringService, clk, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	s *scheduler.Scheduler,
	ps pubsub.PubSub,
	sink *service.AuditLogSink,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	startAuditSink(lc, ps, sink, log)

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		scheduler.RegisterHooks(lc, s)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeScheduler:
		scheduler.RegisterHooks(lc, s)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down API server")
			return srv.Shutdown(ctx)
		},
	})
}

func startAuditSink(
	lc fx.Lifecycle,
	ps pubsub.PubSub,
	sink *service.AuditLogSink,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := sink.Run(ctx); err != nil {
					log.Errorw("audit sink stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return ps.Close()
		},
	})
}
