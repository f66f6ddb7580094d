package payment

import (
	"context"

	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Filter narrows payment listings.
type Filter struct {
	*types.QueryFilter
	CompanyID string
	ClientID  string
	InvoiceID string
	Kind      types.PaymentKind
}

// Repository defines the interface for payment persistence operations.
type Repository interface {
	// Create stores the payment with its allocations.
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, companyID, id string) (*Payment, error)
	List(ctx context.Context, filter *Filter) ([]*Payment, error)

	// ListRefunds returns refunds linked to the original payment.
	ListRefunds(ctx context.Context, companyID, originalPaymentID string) ([]*Payment, error)

	// SumCompletedForInvoice adds the allocations of completed payments and
	// refunds on the invoice.
	SumCompletedForInvoice(ctx context.Context, companyID, invoiceID string) (decimal.Decimal, error)

	CreateCreditEntry(ctx context.Context, entry *CreditEntry) error
	GetCreditBalance(ctx context.Context, companyID, clientID string) (decimal.Decimal, error)
}
