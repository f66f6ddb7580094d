package repository

import (
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/payment"
	"github.com/mspfin/billing-engine/internal/domain/recurring"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/repository/memory"
	postgresRepo "github.com/mspfin/billing-engine/internal/repository/postgres"
	"github.com/mspfin/billing-engine/internal/types"
	"go.uber.org/fx"
)

type RepositoryType string

const (
	PostgresRepo RepositoryType = "postgres"
	MemoryRepo   RepositoryType = "memory"
)

// TypeFor picks the store backing the deployment. Local mode keeps
// everything in process.
func TypeFor(cfg *config.Configuration) RepositoryType {
	if cfg.Deployment.Mode == types.ModeLocal && cfg.Postgres.Host == "" {
		return MemoryRepo
	}
	return PostgresRepo
}

// Module provides the record store and every repository.
func Module(repoType RepositoryType) fx.Option {
	if repoType == MemoryRepo {
		return fx.Options(
			fx.Provide(
				fx.Annotate(memory.NewTxClient, fx.As(new(postgres.IClient))),
				fx.Annotate(memory.NewInvoiceStore, fx.As(new(invoice.Repository))),
				fx.Annotate(memory.NewContractStore, fx.As(new(contract.Repository))),
				fx.Annotate(memory.NewRecurringInvoiceStore, fx.As(new(recurring.Repository))),
				fx.Annotate(memory.NewPaymentStore, fx.As(new(payment.Repository))),
				fx.Annotate(memory.NewTaxRateStore, fx.As(new(tax.Repository))),
			),
		)
	}

	return fx.Options(
		postgres.Module(),
		fx.Provide(
			postgresRepo.NewInvoiceRepository,
			postgresRepo.NewContractRepository,
			postgresRepo.NewRecurringInvoiceRepository,
			postgresRepo.NewPaymentRepository,
			postgresRepo.NewTaxRateRepository,
		),
	)
}
