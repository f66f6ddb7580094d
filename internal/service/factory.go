package service

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mspfin/billing-engine/internal/cache"
	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/payment"
	"github.com/mspfin/billing-engine/internal/domain/recurring"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/sentry"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Clock  clock.Clock
	Locker lock.Locker
	Cache  cache.Cache
	Sentry *sentry.Service

	// Repositories
	InvoiceRepo   invoice.Repository
	ContractRepo  contract.Repository
	RecurringRepo recurring.Repository
	PaymentRepo   payment.Repository
	TaxRateRepo   tax.Repository

	// Publishers
	AuditPublisher AuditPublisher
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	clk clock.Clock,
	locker lock.Locker,
	cache cache.Cache,
	sentry *sentry.Service,
	invoiceRepo invoice.Repository,
	contractRepo contract.Repository,
	recurringRepo recurring.Repository,
	paymentRepo payment.Repository,
	taxRateRepo tax.Repository,
	auditPublisher AuditPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		Clock:          clk,
		Locker:         locker,
		Cache:          cache,
		Sentry:         sentry,
		InvoiceRepo:    invoiceRepo,
		ContractRepo:   contractRepo,
		RecurringRepo:  recurringRepo,
		PaymentRepo:    paymentRepo,
		TaxRateRepo:    taxRateRepo,
		AuditPublisher: auditPublisher,
	}
}

func (p ServiceParams) now() time.Time {
	return p.Clock.Now().UTC()
}

func (p ServiceParams) lockTTL() time.Duration {
	if p.Config.Scheduler.LockTTL > 0 {
		return p.Config.Scheduler.LockTTL
	}
	return lock.DefaultTTL
}

func (p ServiceParams) taxEngine() *tax.Engine {
	return tax.NewEngine(tax.Rates{
		FederalExciseRate:      p.Config.Billing.FederalExciseRate,
		FederalExciseThreshold: p.Config.Billing.FederalExciseThreshold,
		USFContributionFactor:  p.Config.Billing.USFContributionFactor,
	})
}

func (p ServiceParams) lateFeePolicy() recurring.LateFeePolicy {
	lf := p.Config.Billing.LateFee
	return recurring.NewLateFeePolicy(lf.Type, lf.Amount, lf.Rate, lf.AfterAttempts)
}

// mutate runs fn inside one transaction while holding every lock in keys.
// Locks are taken in sorted order so two mutations never wait on each other
// crosswise. A version conflict, including a lock wait that timed out, makes
// the whole read-modify-write run again from a fresh read.
func (p ServiceParams) mutate(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	keys = lo.Uniq(keys)
	sort.Strings(keys)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := p.withLocks(ctx, keys, func(ctx context.Context) error {
			return p.DB.WithTx(ctx, fn)
		})
		if err == nil {
			return nil
		}
		if !ierr.IsVersionConflict(err) {
			return backoff.Permanent(err)
		}
		p.Logger.WithContext(ctx).Warnw("version conflict, retrying",
			"attempt", attempt,
			"keys", keys,
			"error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, p.Config.Scheduler.MaxRetries), ctx))
}

func (p ServiceParams) withLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return p.Locker.WithLock(ctx, keys[0], p.lockTTL(), func(ctx context.Context) error {
		return p.withLocks(ctx, keys[1:], fn)
	})
}

// loadContract reads a contract through the cache. Callers must not modify it.
func (p ServiceParams) loadContract(ctx context.Context, companyID, id string) (*contract.Contract, error) {
	key := cache.GenerateKey(cache.PrefixContract, companyID, id)
	if cached, ok := p.Cache.Get(ctx, key); ok {
		if c, ok := cached.(*contract.Contract); ok {
			return c, nil
		}
	}
	c, err := p.ContractRepo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	p.Cache.Set(ctx, key, c, 0)
	return c, nil
}

func (p ServiceParams) forgetContract(ctx context.Context, companyID, id string) {
	p.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixContract, companyID, id))
}

// refreshBalance recomputes paid amount, balance and status of inv from the
// completed payments recorded against it.
func (p ServiceParams) refreshBalance(ctx context.Context, inv *invoice.Invoice) error {
	paid, err := p.PaymentRepo.SumCompletedForInvoice(ctx, inv.CompanyID, inv.ID)
	if err != nil {
		return err
	}
	inv.ApplyPayments(paid, p.Config.Billing.StatusTolerance)
	return nil
}

func validateCompany(cc types.CompanyContext) error {
	if cc.CompanyID == "" {
		return ierr.NewError("company id is required").
			WithHint("Every billing operation runs for a company").
			Mark(ierr.ErrPermissionDenied)
	}
	return nil
}
