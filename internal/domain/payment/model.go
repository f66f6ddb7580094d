package payment

import (
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Payment is money received from a client or, with Kind refund and a
// negative Amount, money returned. Completed payments are immutable apart
// from refund linkage.
type Payment struct {
	ID                string              `db:"id" json:"id"`
	ClientID          string              `db:"client_id" json:"client_id"`
	InvoiceID         *string             `db:"invoice_id" json:"invoice_id,omitempty"`
	Kind              types.PaymentKind   `db:"kind" json:"kind"`
	Amount            decimal.Decimal     `db:"amount" json:"amount"`
	ProcessingFee     decimal.Decimal     `db:"processing_fee" json:"processing_fee"`
	Method            types.PaymentMethod `db:"method" json:"method"`
	PaymentStatus     types.PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentDate       time.Time           `db:"payment_date" json:"payment_date"`
	Reference         string              `db:"reference" json:"reference,omitempty"`
	Reason            string              `db:"reason" json:"reason,omitempty"`
	OriginalPaymentID *string             `db:"original_payment_id" json:"original_payment_id,omitempty"`
	ExceedOverride    bool                `db:"exceed_override" json:"exceed_override,omitempty"`
	Allocations       []*Allocation       `db:"-" json:"allocations,omitempty"`
	types.BaseModel
}

// NetAmount is what the MSP keeps after the processor's fee.
func (p *Payment) NetAmount() decimal.Decimal {
	return p.Amount.Sub(p.ProcessingFee)
}

func (p *Payment) IsCompleted() bool {
	return p.PaymentStatus == types.PaymentStatusCompleted
}

func (p *Payment) IsRefund() bool {
	return p.Kind == types.PaymentKindRefund
}

// Validate checks an incoming payment before it is recorded.
func (p *Payment) Validate() error {
	if p.ClientID == "" {
		return ierr.NewError("client id is required").
			WithHint("Every payment belongs to a client").
			Mark(ierr.ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return ierr.NewError("payment amount must be positive").
			WithHintf("Payment amount must be greater than zero, got %s", p.Amount.StringFixed(2)).
			Mark(ierr.ErrValidation)
	}
	if !p.Amount.Equal(types.Round2(p.Amount)) {
		return ierr.NewError("payment amount has more than two decimals").
			WithHintf("Payment amount %s must have at most two decimal places", p.Amount).
			Mark(ierr.ErrValidation)
	}
	if p.ProcessingFee.IsNegative() || p.ProcessingFee.GreaterThan(p.Amount) {
		return ierr.NewError("invalid processing fee").
			WithHintf("Processing fee must be between 0 and the payment amount, got %s", p.ProcessingFee.StringFixed(2)).
			Mark(ierr.ErrValidation)
	}
	if err := p.Method.Validate(); err != nil {
		return err
	}
	return p.PaymentStatus.Validate()
}

// Allocation maps part of a payment to one invoice. Refund allocations are negative.
type Allocation struct {
	ID        string          `db:"id" json:"id"`
	CompanyID string          `db:"company_id" json:"company_id"`
	PaymentID string          `db:"payment_id" json:"payment_id"`
	InvoiceID string          `db:"invoice_id" json:"invoice_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Sequence  int             `db:"sequence" json:"sequence"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// CreditEntry moves a client's unapplied credit. Overpayment beyond the
// allocated invoices adds credit; refunds of that money remove it.
type CreditEntry struct {
	ID        string          `db:"id" json:"id"`
	CompanyID string          `db:"company_id" json:"company_id"`
	ClientID  string          `db:"client_id" json:"client_id"`
	PaymentID string          `db:"payment_id" json:"payment_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reason    string          `db:"reason" json:"reason"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ClientBalance summarizes what a client owes.
type ClientBalance struct {
	ClientID         string          `json:"client_id"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	OutstandingTotal decimal.Decimal `json:"outstanding_total"`
	CreditBalance    decimal.Decimal `json:"credit_balance"`
	// NetBalance is outstanding minus credit; negative means the MSP owes the client.
	NetBalance decimal.Decimal `json:"net_balance"`
}
