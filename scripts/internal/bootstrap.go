package internal

import (
	"context"

	"github.com/mspfin/billing-engine/internal/cache"
	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/pubsub/memory"
	postgresRepo "github.com/mspfin/billing-engine/internal/repository/postgres"
	"github.com/mspfin/billing-engine/internal/service"
)

// app is the service graph the scripts run against. It talks to the same
// postgres and redis as the server, so scripts are safe to run next to it.
type app struct {
	cfg    *config.Configuration
	log    *logger.Logger
	params service.ServiceParams
	close  func()
}

func newApp() (*app, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}
	locker, closeLocker, err := lock.Open(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := memory.NewPubSub(cfg, log)
	sinkCtx, stopSink := context.WithCancel(context.Background())
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		_ = service.NewAuditLogSink(bus, log).Run(sinkCtx)
	}()

	client := postgres.NewClient(db, log)
	params := service.NewServiceParams(
		log,
		cfg,
		client,
		clock.NewReal(),
		locker,
		cache.NewInMemoryCache(cfg, log),
		nil,
		postgresRepo.NewInvoiceRepository(client, log),
		postgresRepo.NewContractRepository(client, log),
		postgresRepo.NewRecurringInvoiceRepository(client, log),
		postgresRepo.NewPaymentRepository(client, log),
		postgresRepo.NewTaxRateRepository(client, log),
		service.NewAuditPublisher(bus, log),
	)

	return &app{
		cfg:    cfg,
		log:    log,
		params: params,
		close: func() {
			stopSink()
			<-sinkDone
			_ = bus.Close()
			_ = closeLocker()
			db.Close()
			_ = log.Sync()
		},
	}, nil
}
