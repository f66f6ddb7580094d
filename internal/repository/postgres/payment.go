package postgres

import (
	"context"

	"github.com/lib/pq"
	"github.com/mspfin/billing-engine/internal/domain/payment"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type paymentRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewPaymentRepository(client postgres.IClient, logger *logger.Logger) payment.Repository {
	return &paymentRepository{client: client, logger: logger}
}

const paymentColumns = `id, company_id, client_id, invoice_id, kind, amount, processing_fee, method,
	payment_status, payment_date, reference, reason, original_payment_id, exceed_override, status,
	created_at, updated_at, created_by, updated_by`

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	r.logger.Debugw("creating payment",
		"payment_id", p.ID,
		"company_id", p.CompanyID,
		"kind", p.Kind,
		"amount", p.Amount,
		"allocations", len(p.Allocations),
	)

	query := `
		INSERT INTO payments (` + paymentColumns + `) VALUES (
			:id, :company_id, :client_id, :invoice_id, :kind, :amount, :processing_fee, :method,
			:payment_status, :payment_date, :reference, :reason, :original_payment_id, :exceed_override,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	q := r.client.Querier(ctx)
	if _, err := q.NamedExecContext(ctx, query, p); err != nil {
		return dbError(err, "payment", p.ID)
	}

	allocationQuery := `
		INSERT INTO payment_allocations (id, company_id, payment_id, invoice_id, amount, sequence, created_at)
		VALUES (:id, :company_id, :payment_id, :invoice_id, :amount, :sequence, :created_at)`
	for _, a := range p.Allocations {
		a.PaymentID = p.ID
		a.CompanyID = p.CompanyID
		if _, err := q.NamedExecContext(ctx, allocationQuery, a); err != nil {
			return dbError(err, "payment allocation", a.ID)
		}
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, companyID, id string) (*payment.Payment, error) {
	var p payment.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND company_id = $2`
	if err := r.client.Querier(ctx).GetContext(ctx, &p, query, id, companyID); err != nil {
		return nil, dbError(err, "payment", id)
	}
	if err := r.loadAllocations(ctx, []*payment.Payment{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) loadAllocations(ctx context.Context, payments []*payment.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	ids := lo.Map(payments, func(p *payment.Payment, _ int) string { return p.ID })

	var allocations []*payment.Allocation
	query := `
		SELECT id, company_id, payment_id, invoice_id, amount, sequence, created_at
		FROM payment_allocations
		WHERE payment_id = ANY($1)
		ORDER BY payment_id, sequence, id`
	if err := r.client.Querier(ctx).SelectContext(ctx, &allocations, query, pq.Array(ids)); err != nil {
		return dbError(err, "payment allocations", "")
	}

	byPayment := lo.GroupBy(allocations, func(a *payment.Allocation) string { return a.PaymentID })
	for _, p := range payments {
		p.Allocations = byPayment[p.ID]
	}
	return nil
}

func (r *paymentRepository) List(ctx context.Context, filter *payment.Filter) ([]*payment.Payment, error) {
	if filter == nil {
		filter = &payment.Filter{}
	}

	var c conditions
	c.add("company_id = $%d", filter.CompanyID)
	if filter.ClientID != "" {
		c.add("client_id = $%d", filter.ClientID)
	}
	if filter.InvoiceID != "" {
		c.add("(invoice_id = $%[1]d OR id IN (SELECT payment_id FROM payment_allocations WHERE invoice_id = $%[1]d))", filter.InvoiceID)
	}
	if filter.Kind != "" {
		c.add("kind = $%d", filter.Kind)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments` + c.where() +
		` ORDER BY payment_date, created_at, id` + c.page(filter.QueryFilter)
	return r.selectPayments(ctx, query, c.args...)
}

func (r *paymentRepository) selectPayments(ctx context.Context, query string, args ...interface{}) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	if err := r.client.Querier(ctx).SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, dbError(err, "payments", "")
	}
	if err := r.loadAllocations(ctx, payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) ListRefunds(ctx context.Context, companyID, originalPaymentID string) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE company_id = $1 AND original_payment_id = $2 AND kind = 'refund'
		ORDER BY payment_date, created_at, id`
	return r.selectPayments(ctx, query, companyID, originalPaymentID)
}

func (r *paymentRepository) SumCompletedForInvoice(ctx context.Context, companyID, invoiceID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(a.amount), 0)
		FROM payment_allocations a
		JOIN payments p ON p.id = a.payment_id
		WHERE a.company_id = $1 AND a.invoice_id = $2 AND p.payment_status = 'completed'`
	if err := r.client.Querier(ctx).GetContext(ctx, &total, query, companyID, invoiceID); err != nil {
		return decimal.Zero, dbError(err, "payment allocations", invoiceID)
	}
	return total, nil
}

func (r *paymentRepository) CreateCreditEntry(ctx context.Context, entry *payment.CreditEntry) error {
	query := `
		INSERT INTO credit_entries (id, company_id, client_id, payment_id, amount, reason, created_at)
		VALUES (:id, :company_id, :client_id, :payment_id, :amount, :reason, :created_at)`
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, query, entry)
	return dbError(err, "credit entry", entry.ID)
}

func (r *paymentRepository) GetCreditBalance(ctx context.Context, companyID, clientID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE company_id = $1 AND client_id = $2`
	if err := r.client.Querier(ctx).GetContext(ctx, &total, query, companyID, clientID); err != nil {
		return decimal.Zero, dbError(err, "credit entries", clientID)
	}
	return total, nil
}
