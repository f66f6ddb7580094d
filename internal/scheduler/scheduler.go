package scheduler

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/sentry"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

// Scheduler runs the recurring invoice billing run on the configured cron
// expression. A run still in progress when the next tick fires makes that
// tick a no-op.
type Scheduler struct {
	cron    *cron.Cron
	service service.RecurringInvoiceService
	clock   clock.Clock
	config  *config.Configuration
	sentry  *sentry.Service
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Summary is the outcome of one billing run
type Summary struct {
	AsOf      time.Time
	Companies int
	Processed int
	Failed    int
}

func NewScheduler(
	recurringService service.RecurringInvoiceService,
	clk clock.Clock,
	cfg *config.Configuration,
	sentry *sentry.Service,
	log *logger.Logger,
) *Scheduler {
	cronLog := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
			cron.WithLogger(cronLog),
		),
		service: recurringService,
		clock:   clk,
		config:  cfg,
		sentry:  sentry,
		logger:  log,
	}
}

// RegisterHooks starts the scheduler with the application and stops it,
// waiting for a running job, on shutdown.
func RegisterHooks(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

func (s *Scheduler) Start() error {
	if !s.config.Scheduler.Enabled {
		s.logger.Info("recurring invoice scheduler is disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Scheduler.Cron, s.tick); err != nil {
		return ierr.WithError(err).
			WithHintf("Invalid scheduler cron expression %q", s.config.Scheduler.Cron).
			Mark(ierr.ErrConfiguration)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	s.logger.Infow("recurring invoice scheduler started", "cron", s.config.Scheduler.Cron)
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("recurring invoice scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		s.logger.Errorw("recurring invoice billing run failed", "error", err)
	}
}

// RunOnce bills every due recurring invoice as of the current clock time.
func (s *Scheduler) RunOnce(ctx context.Context) (*Summary, error) {
	asOf := s.clock.Now().UTC()

	span, ctx := s.sentry.StartTransaction(ctx, "scheduler.process_all_due")
	if span != nil {
		defer span.Finish()
	}

	started := time.Now()
	responses, err := s.service.ProcessAllDue(ctx, asOf)
	if err != nil {
		s.sentry.CaptureException(err)
		return nil, err
	}

	summary := &Summary{AsOf: asOf, Companies: len(responses)}
	for _, resp := range responses {
		summary.Processed += resp.Processed
		summary.Failed += resp.Failed
	}

	s.logger.Infow("recurring invoice billing run completed",
		"as_of", asOf,
		"companies", summary.Companies,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"duration_ms", time.Since(started).Milliseconds())
	return summary, nil
}

// cronLogger adapts the application logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
