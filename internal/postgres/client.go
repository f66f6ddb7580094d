package postgres

import (
	"context"

	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/logger"
	sentryService "github.com/mspfin/billing-engine/internal/sentry"
	"go.uber.org/fx"
)

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction. Nested calls run in a
	// savepoint of the outer transaction.
	WithTx(ctx context.Context, fn func(context.Context) error) error

	// Querier returns the transaction from ctx if there is one, or the pool
	Querier(ctx context.Context) Querier
}

// Client adapts DB to IClient
type Client struct {
	db     *DB
	logger *logger.Logger
}

// Module provides an fx.Option wiring the sqlx pool and the instrumented client
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewDB,
			NewInstrumentedClient,
		),
		fx.Invoke(registerHooks),
	)
}

func registerHooks(lc fx.Lifecycle, db *DB, cfg *config.Configuration, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Postgres.AutoMigrate {
				return nil
			}
			logger.Info("applying database migrations")
			return MigrateUp(db)
		},
		OnStop: func(ctx context.Context) error {
			db.Close()
			return nil
		},
	})
}

func NewClient(db *DB, logger *logger.Logger) *Client {
	return &Client{db: db, logger: logger}
}

// NewInstrumentedClient returns the client wrapped with sentry spans when sentry is enabled.
func NewInstrumentedClient(db *DB, cfg *config.Configuration, sentry *sentryService.Service, logger *logger.Logger) IClient {
	client := NewClient(db, logger)
	if !cfg.Sentry.Enabled {
		return client
	}
	return NewSentryClient(client, sentry, logger)
}

func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.db.WithTx(ctx, fn)
}

func (c *Client) Querier(ctx context.Context) Querier {
	return c.db.GetQuerier(ctx)
}
