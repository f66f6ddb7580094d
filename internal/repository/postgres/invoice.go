package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

type invoiceRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewInvoiceRepository(client postgres.IClient, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{client: client, logger: logger}
}

type invoiceRow struct {
	invoice.Invoice
	ExemptionList pq.StringArray `db:"exemptions"`
}

func newInvoiceRow(inv *invoice.Invoice) *invoiceRow {
	return &invoiceRow{Invoice: *inv, ExemptionList: toStringArray(inv.Exemptions)}
}

func (r *invoiceRow) toDomain() *invoice.Invoice {
	inv := r.Invoice
	inv.Exemptions = fromStringArray[types.TaxCategory](r.ExemptionList)
	return &inv
}

const invoiceColumns = `id, company_id, client_id, currency, issue_date, due_date, discount, subtotal,
	total_tax, amount, amount_paid, balance, invoice_status, jurisdiction, service_state, service_county,
	service_city, include_usf, exemptions, contract_id, recurring_invoice_id, period_start, period_end,
	notes, version, status, created_at, updated_at, created_by, updated_by`

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	r.logger.Debugw("creating invoice",
		"invoice_id", inv.ID,
		"company_id", inv.CompanyID,
		"items", len(inv.Items),
	)

	query := `
		INSERT INTO invoices (` + invoiceColumns + `) VALUES (
			:id, :company_id, :client_id, :currency, :issue_date, :due_date, :discount, :subtotal,
			:total_tax, :amount, :amount_paid, :balance, :invoice_status, :jurisdiction, :service_state,
			:service_county, :service_city, :include_usf, :exemptions, :contract_id, :recurring_invoice_id,
			:period_start, :period_end, :notes, :version, :status, :created_at, :updated_at, :created_by,
			:updated_by
		)`

	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, newInvoiceRow(inv)); err != nil {
		return dbError(err, "invoice", inv.ID)
	}
	return r.insertItems(ctx, inv)
}

func (r *invoiceRepository) insertItems(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoice_items (
			id, invoice_id, description, unit_price, quantity, service_type, subtotal, tax_amount,
			position, created_at
		) VALUES (
			:id, :invoice_id, :description, :unit_price, :quantity, :service_type, :subtotal, :tax_amount,
			:position, :created_at
		)`

	q := r.client.Querier(ctx)
	for i, item := range inv.Items {
		item.InvoiceID = inv.ID
		item.Position = i
		if _, err := q.NamedExecContext(ctx, query, item); err != nil {
			return dbError(err, "invoice item", item.ID)
		}
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, companyID, id string) (*invoice.Invoice, error) {
	var row invoiceRow
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND company_id = $2`
	if err := r.client.Querier(ctx).GetContext(ctx, &row, query, id, companyID); err != nil {
		return nil, dbError(err, "invoice", id)
	}

	inv := row.toDomain()
	if err := r.loadItems(ctx, []*invoice.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepository) loadItems(ctx context.Context, invoices []*invoice.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}

	ids := lo.Map(invoices, func(inv *invoice.Invoice, _ int) string { return inv.ID })
	var items []*invoice.InvoiceItem
	query := `
		SELECT id, invoice_id, description, unit_price, quantity, service_type, subtotal, tax_amount,
			position, created_at
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, position, id`
	if err := r.client.Querier(ctx).SelectContext(ctx, &items, query, pq.Array(ids)); err != nil {
		return dbError(err, "invoice items", "")
	}

	byInvoice := lo.GroupBy(items, func(item *invoice.InvoiceItem) string { return item.InvoiceID })
	for _, inv := range invoices {
		inv.Items = byInvoice[inv.ID]
	}
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &invoice.Filter{}
	}

	var c conditions
	c.add("company_id = $%d", filter.CompanyID)
	c.raw("status = 'published'")
	if filter.ClientID != "" {
		c.add("client_id = $%d", filter.ClientID)
	}
	if filter.RecurringInvoiceID != "" {
		c.add("recurring_invoice_id = $%d", filter.RecurringInvoiceID)
	}
	if len(filter.Statuses) > 0 {
		c.add("invoice_status = ANY($%d)", toStringArray(filter.Statuses))
	}
	if filter.OutstandingOnly {
		c.raw("balance > 0")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices` + c.where() +
		` ORDER BY due_date, issue_date, id` + c.page(filter.QueryFilter)

	var rows []*invoiceRow
	if err := r.client.Querier(ctx).SelectContext(ctx, &rows, query, c.args...); err != nil {
		return nil, dbError(err, "invoices", "")
	}

	invoices := lo.Map(rows, func(row *invoiceRow, _ int) *invoice.Invoice { return row.toDomain() })
	if err := r.loadItems(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	r.logger.Debugw("updating invoice",
		"invoice_id", inv.ID,
		"company_id", inv.CompanyID,
		"version", inv.Version,
	)

	query := `
		UPDATE invoices SET
			client_id = :client_id,
			currency = :currency,
			issue_date = :issue_date,
			due_date = :due_date,
			discount = :discount,
			subtotal = :subtotal,
			total_tax = :total_tax,
			amount = :amount,
			amount_paid = :amount_paid,
			balance = :balance,
			invoice_status = :invoice_status,
			jurisdiction = :jurisdiction,
			service_state = :service_state,
			service_county = :service_county,
			service_city = :service_city,
			include_usf = :include_usf,
			exemptions = :exemptions,
			notes = :notes,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by,
			version = version + 1
		WHERE id = :id AND company_id = :company_id AND version = :version`

	q := r.client.Querier(ctx)
	result, err := q.NamedExecContext(ctx, query, newInvoiceRow(inv))
	if err != nil {
		return dbError(err, "invoice", inv.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return dbError(err, "invoice", inv.ID)
	}
	if affected == 0 {
		return r.conflictOrMissing(ctx, inv)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return dbError(err, "invoice items", inv.ID)
	}
	if err := r.insertItems(ctx, inv); err != nil {
		return err
	}

	inv.Version++
	return nil
}

func (r *invoiceRepository) conflictOrMissing(ctx context.Context, inv *invoice.Invoice) error {
	var current int
	err := r.client.Querier(ctx).GetContext(ctx, &current,
		`SELECT version FROM invoices WHERE id = $1 AND company_id = $2`, inv.ID, inv.CompanyID)
	if err != nil {
		return dbError(err, "invoice", inv.ID)
	}
	return ierr.NewError("invoice version conflict").
		WithHintf("Invoice %s was modified concurrently, retry the operation", inv.ID).
		WithReportableDetails(map[string]any{
			"invoice_id":       inv.ID,
			"expected_version": inv.Version,
			"current_version":  current,
		}).
		Mark(ierr.ErrVersionConflict)
}

func (r *invoiceRepository) GetForPeriod(ctx context.Context, companyID, recurringInvoiceID string, periodStart time.Time) (*invoice.Invoice, error) {
	var row invoiceRow
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE company_id = $1 AND recurring_invoice_id = $2 AND period_start = $3`
	err := r.client.Querier(ctx).GetContext(ctx, &row, query, companyID, recurringInvoiceID, types.DateOnly(periodStart))
	if err != nil {
		return nil, dbError(err, "invoice for period", periodStart.Format(time.DateOnly))
	}

	inv := row.toDomain()
	if err := r.loadItems(ctx, []*invoice.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}
