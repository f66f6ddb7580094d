package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/mspfin/billing-engine/internal/domain/recurring"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

type recurringRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewRecurringInvoiceRepository(client postgres.IClient, logger *logger.Logger) recurring.Repository {
	return &recurringRepository{client: client, logger: logger}
}

type recurringRow struct {
	recurring.RecurringInvoice
	ExemptionList pq.StringArray `db:"exemptions"`
}

func newRecurringRow(ri *recurring.RecurringInvoice) *recurringRow {
	return &recurringRow{RecurringInvoice: *ri, ExemptionList: toStringArray(ri.Exemptions)}
}

func (r *recurringRow) toDomain() *recurring.RecurringInvoice {
	ri := r.RecurringInvoice
	ri.Exemptions = fromStringArray[types.TaxCategory](r.ExemptionList)
	return &ri
}

const recurringColumns = `id, company_id, client_id, contract_id, description, currency, amount, frequency,
	custom_months, day_count, start_date, end_date, next_billing_date, billing_anchor, payment_term_days,
	service_type, recurring_status, failed_attempts, last_error, last_invoice_id, last_billed_at,
	jurisdiction, service_state, service_county, service_city, include_usf, exemptions, version, status,
	created_at, updated_at, created_by, updated_by`

func (r *recurringRepository) Create(ctx context.Context, ri *recurring.RecurringInvoice) error {
	r.logger.Debugw("creating recurring invoice",
		"recurring_invoice_id", ri.ID,
		"company_id", ri.CompanyID,
		"next_billing_date", ri.NextBillingDate,
	)

	query := `
		INSERT INTO recurring_invoices (` + recurringColumns + `) VALUES (
			:id, :company_id, :client_id, :contract_id, :description, :currency, :amount, :frequency,
			:custom_months, :day_count, :start_date, :end_date, :next_billing_date, :billing_anchor,
			:payment_term_days, :service_type, :recurring_status, :failed_attempts, :last_error,
			:last_invoice_id, :last_billed_at, :jurisdiction, :service_state, :service_county,
			:service_city, :include_usf, :exemptions, :version, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)`

	_, err := r.client.Querier(ctx).NamedExecContext(ctx, query, newRecurringRow(ri))
	return dbError(err, "recurring invoice", ri.ID)
}

func (r *recurringRepository) Get(ctx context.Context, companyID, id string) (*recurring.RecurringInvoice, error) {
	var row recurringRow
	query := `SELECT ` + recurringColumns + ` FROM recurring_invoices WHERE id = $1 AND company_id = $2`
	if err := r.client.Querier(ctx).GetContext(ctx, &row, query, id, companyID); err != nil {
		return nil, dbError(err, "recurring invoice", id)
	}
	return row.toDomain(), nil
}

func (r *recurringRepository) List(ctx context.Context, filter *recurring.Filter) ([]*recurring.RecurringInvoice, error) {
	if filter == nil {
		filter = &recurring.Filter{}
	}

	var c conditions
	c.add("company_id = $%d", filter.CompanyID)
	c.raw("status = 'published'")
	if filter.ClientID != "" {
		c.add("client_id = $%d", filter.ClientID)
	}
	if filter.ContractID != "" {
		c.add("contract_id = $%d", filter.ContractID)
	}
	if filter.Status != "" {
		c.add("recurring_status = $%d", filter.Status)
	}

	query := `SELECT ` + recurringColumns + ` FROM recurring_invoices` + c.where() +
		` ORDER BY next_billing_date, id` + c.page(filter.QueryFilter)

	return r.selectRows(ctx, query, c.args...)
}

func (r *recurringRepository) selectRows(ctx context.Context, query string, args ...interface{}) ([]*recurring.RecurringInvoice, error) {
	var rows []*recurringRow
	if err := r.client.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError(err, "recurring invoices", "")
	}
	return lo.Map(rows, func(row *recurringRow, _ int) *recurring.RecurringInvoice { return row.toDomain() }), nil
}

func (r *recurringRepository) Update(ctx context.Context, ri *recurring.RecurringInvoice) error {
	r.logger.Debugw("updating recurring invoice",
		"recurring_invoice_id", ri.ID,
		"version", ri.Version,
		"next_billing_date", ri.NextBillingDate,
	)

	query := `
		UPDATE recurring_invoices SET
			description = :description,
			amount = :amount,
			end_date = :end_date,
			next_billing_date = :next_billing_date,
			payment_term_days = :payment_term_days,
			recurring_status = :recurring_status,
			failed_attempts = :failed_attempts,
			last_error = :last_error,
			last_invoice_id = :last_invoice_id,
			last_billed_at = :last_billed_at,
			jurisdiction = :jurisdiction,
			service_state = :service_state,
			service_county = :service_county,
			service_city = :service_city,
			include_usf = :include_usf,
			exemptions = :exemptions,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by,
			version = version + 1
		WHERE id = :id AND company_id = :company_id AND version = :version`

	result, err := r.client.Querier(ctx).NamedExecContext(ctx, query, newRecurringRow(ri))
	if err != nil {
		return dbError(err, "recurring invoice", ri.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "recurring invoice", ri.ID)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, ri.CompanyID, ri.ID); err != nil {
			return err
		}
		return ierr.NewError("recurring invoice version conflict").
			WithHintf("Recurring invoice %s was modified concurrently, retry the operation", ri.ID).
			WithReportableDetails(map[string]any{"recurring_invoice_id": ri.ID, "expected_version": ri.Version}).
			Mark(ierr.ErrVersionConflict)
	}

	ri.Version++
	return nil
}

func (r *recurringRepository) ListDue(ctx context.Context, companyID string, asOf time.Time) ([]*recurring.RecurringInvoice, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_invoices
		WHERE company_id = $1
			AND status = 'published'
			AND recurring_status = 'active'
			AND next_billing_date <= $2
		ORDER BY next_billing_date, id`
	return r.selectRows(ctx, query, companyID, types.DateOnly(asOf))
}

func (r *recurringRepository) ListDueCompanies(ctx context.Context, asOf time.Time) ([]string, error) {
	var companies []string
	query := `SELECT DISTINCT company_id FROM recurring_invoices
		WHERE status = 'published'
			AND recurring_status = 'active'
			AND next_billing_date <= $1
		ORDER BY company_id`
	if err := r.client.Querier(ctx).SelectContext(ctx, &companies, query, types.DateOnly(asOf)); err != nil {
		return nil, dbError(err, "recurring invoices", "")
	}
	return companies, nil
}
