package postgres

import (
	"context"

	"github.com/lib/pq"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

type taxRateRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewTaxRateRepository(client postgres.IClient, logger *logger.Logger) tax.Repository {
	return &taxRateRepository{client: client, logger: logger}
}

type taxRateRow struct {
	tax.TaxRate
	ServiceTypeList pq.StringArray `db:"service_types"`
}

func (r *taxRateRow) toDomain() *tax.TaxRate {
	rate := r.TaxRate
	rate.ServiceTypes = fromStringArray[types.ServiceType](r.ServiceTypeList)
	return &rate
}

const taxRateColumns = `id, company_id, name, type, state, county, city, rate, service_types, status,
	created_at, updated_at, created_by, updated_by`

func (r *taxRateRepository) Create(ctx context.Context, rate *tax.TaxRate) error {
	r.logger.Debugw("creating tax rate",
		"tax_rate_id", rate.ID,
		"company_id", rate.CompanyID,
		"type", rate.Type,
		"state", rate.State,
	)

	query := `
		INSERT INTO tax_rates (` + taxRateColumns + `) VALUES (
			:id, :company_id, :name, :type, :state, :county, :city, :rate, :service_types, :status,
			:created_at, :updated_at, :created_by, :updated_by
		)`
	row := &taxRateRow{TaxRate: *rate, ServiceTypeList: toStringArray(rate.ServiceTypes)}
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, query, row)
	return dbError(err, "tax rate", rate.ID)
}

func (r *taxRateRepository) Get(ctx context.Context, companyID, id string) (*tax.TaxRate, error) {
	var row taxRateRow
	query := `SELECT ` + taxRateColumns + ` FROM tax_rates WHERE id = $1 AND company_id = $2 AND status = 'published'`
	if err := r.client.Querier(ctx).GetContext(ctx, &row, query, id, companyID); err != nil {
		return nil, dbError(err, "tax rate", id)
	}
	return row.toDomain(), nil
}

func (r *taxRateRepository) List(ctx context.Context, companyID string, filter *types.QueryFilter) ([]*tax.TaxRate, error) {
	var c conditions
	c.add("company_id = $%d", companyID)
	c.raw("status = 'published'")
	query := `SELECT ` + taxRateColumns + ` FROM tax_rates` + c.where() +
		` ORDER BY state, county, city, id` + c.page(filter)
	return r.selectRates(ctx, query, c.args...)
}

func (r *taxRateRepository) selectRates(ctx context.Context, query string, args ...interface{}) ([]*tax.TaxRate, error) {
	var rows []*taxRateRow
	if err := r.client.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError(err, "tax rates", "")
	}
	return lo.Map(rows, func(row *taxRateRow, _ int) *tax.TaxRate { return row.toDomain() }), nil
}

// Delete archives the row so invoices taxed with it can still be explained.
func (r *taxRateRepository) Delete(ctx context.Context, companyID, id string) error {
	query := `UPDATE tax_rates SET status = 'archived', updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = 'published'`
	result, err := r.client.Querier(ctx).ExecContext(ctx, query, id, companyID)
	if err != nil {
		return dbError(err, "tax rate", id)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return dbError(lo.Ternary(err != nil, err, errNoRows), "tax rate", id)
	}
	return nil
}

func (r *taxRateRepository) ListByState(ctx context.Context, companyID, state string) ([]*tax.TaxRate, error) {
	query := `SELECT ` + taxRateColumns + ` FROM tax_rates
		WHERE company_id = $1 AND UPPER(state) = UPPER($2) AND status = 'published'`
	rates, err := r.selectRates(ctx, query, companyID, state)
	if err != nil {
		return nil, err
	}
	tax.SortRates(rates)
	return rates, nil
}
