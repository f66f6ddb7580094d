package dto

import (
	"time"

	"github.com/mspfin/billing-engine/internal/domain/payment"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ApplyPaymentRequest records a payment against a single invoice
type ApplyPaymentRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`

	// processing_fee is the processor's cut; it does not reduce what the client paid
	ProcessingFee decimal.Decimal     `json:"processing_fee"`
	Method        types.PaymentMethod `json:"method" validate:"required"`

	// payment_status defaults to completed; failed payments are recorded but never counted
	PaymentStatus types.PaymentStatus `json:"payment_status,omitempty"`
	PaymentDate   *time.Time          `json:"payment_date,omitempty"`
	Reference     string              `json:"reference,omitempty" validate:"omitempty,max=255"`

	// idempotency_key makes retries of the same request return the first payment
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

func (r *ApplyPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ToPayment builds the payment for clientID; id is supplied by the service.
func (r *ApplyPaymentRequest) ToPayment(cc types.CompanyContext, id, clientID string, now time.Time) *payment.Payment {
	return &payment.Payment{
		ID:            id,
		ClientID:      clientID,
		InvoiceID:     lo.ToPtr(r.InvoiceID),
		Kind:          types.PaymentKindPayment,
		Amount:        r.Amount,
		ProcessingFee: r.ProcessingFee,
		Method:        r.Method,
		PaymentStatus: lo.Ternary(r.PaymentStatus == "", types.PaymentStatusCompleted, r.PaymentStatus),
		PaymentDate:   paymentDate(r.PaymentDate, now),
		Reference:     r.Reference,
		BaseModel:     types.GetDefaultBaseModel(cc, now),
	}
}

// AllocatePaymentRequest spreads one payment over several invoices of a client
type AllocatePaymentRequest struct {
	ClientID      string              `json:"client_id" validate:"required"`
	Amount        decimal.Decimal     `json:"amount" validate:"required"`
	ProcessingFee decimal.Decimal     `json:"processing_fee"`
	Method        types.PaymentMethod `json:"method" validate:"required"`
	PaymentDate   *time.Time          `json:"payment_date,omitempty"`
	Reference     string              `json:"reference,omitempty" validate:"omitempty,max=255"`

	// invoice_ids restricts the candidates; empty means every outstanding invoice of the client.
	// With the explicit strategy the order given here is the allocation order.
	InvoiceIDs []string                 `json:"invoice_ids,omitempty"`
	Strategy   types.AllocationStrategy `json:"strategy,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

func (r *AllocatePaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.GetStrategy().Validate(); err != nil {
		return err
	}
	if r.GetStrategy() == types.AllocationStrategyExplicit && len(r.InvoiceIDs) == 0 {
		return ierr.NewError("invoice ids are required").
			WithHint("The explicit strategy needs the invoices to pay, in order").
			Mark(ierr.ErrValidation)
	}
	if len(lo.Uniq(r.InvoiceIDs)) != len(r.InvoiceIDs) {
		return ierr.NewError("duplicate invoice ids").
			WithHint("Each invoice can appear only once in an allocation").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *AllocatePaymentRequest) GetStrategy() types.AllocationStrategy {
	if r.Strategy == "" {
		return types.AllocationStrategyOldestFirst
	}
	return r.Strategy
}

func (r *AllocatePaymentRequest) ToPayment(cc types.CompanyContext, id string, now time.Time) *payment.Payment {
	return &payment.Payment{
		ID:            id,
		ClientID:      r.ClientID,
		Kind:          types.PaymentKindPayment,
		Amount:        r.Amount,
		ProcessingFee: r.ProcessingFee,
		Method:        r.Method,
		PaymentStatus: types.PaymentStatusCompleted,
		PaymentDate:   paymentDate(r.PaymentDate, now),
		Reference:     r.Reference,
		BaseModel:     types.GetDefaultBaseModel(cc, now),
	}
}

// RefundPaymentRequest returns money from a completed payment
type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Reason string          `json:"reason" validate:"required,max=500"`

	// allow_exceed lets the refund go past the original payment's net amount
	AllowExceed bool `json:"allow_exceed,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

func (r *RefundPaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return ierr.NewError("refund amount must be positive").
			WithHintf("Refund amount must be greater than zero, got %s", r.Amount.StringFixed(2)).
			Mark(ierr.ErrValidation)
	}
	if !r.Amount.Equal(types.Round2(r.Amount)) {
		return ierr.NewError("refund amount has more than two decimals").
			WithHintf("Refund amount %s must have at most two decimal places", r.Amount).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func paymentDate(d *time.Time, now time.Time) time.Time {
	if d == nil {
		return now.UTC()
	}
	return d.UTC()
}

type PaymentResponse struct {
	*payment.Payment
}

func NewPaymentResponse(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{Payment: p}
}

type ListPaymentsResponse struct {
	Items      []*PaymentResponse  `json:"items"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// PaymentFilter narrows payment listings
type PaymentFilter struct {
	types.QueryFilter
	ClientID  string            `form:"client_id" json:"client_id,omitempty"`
	InvoiceID string            `form:"invoice_id" json:"invoice_id,omitempty"`
	Kind      types.PaymentKind `form:"kind" json:"kind,omitempty"`
}

func (f *PaymentFilter) ToFilter(companyID string) *payment.Filter {
	qf := f.QueryFilter
	return &payment.Filter{
		QueryFilter: &qf,
		CompanyID:   companyID,
		ClientID:    f.ClientID,
		InvoiceID:   f.InvoiceID,
		Kind:        f.Kind,
	}
}

// ApplyPaymentResponse carries the invoice state after the payment
type ApplyPaymentResponse struct {
	Payment    *PaymentResponse    `json:"payment"`
	NewBalance decimal.Decimal     `json:"new_balance"`
	NewStatus  types.InvoiceStatus `json:"new_status"`
	// AlreadyApplied is set when the idempotency key matched an earlier payment
	AlreadyApplied bool `json:"already_applied,omitempty"`
}

// InvoiceBalance is the state of one invoice touched by a payment or refund
type InvoiceBalance struct {
	InvoiceID  string              `json:"invoice_id"`
	Amount     decimal.Decimal     `json:"amount"`
	NewBalance decimal.Decimal     `json:"new_balance"`
	NewStatus  types.InvoiceStatus `json:"new_status"`
}

type AllocatePaymentResponse struct {
	Payment        *PaymentResponse `json:"payment"`
	Allocations    []InvoiceBalance `json:"allocations"`
	TotalAllocated decimal.Decimal  `json:"total_allocated"`
	// Credit is the remainder recorded as client credit
	Credit         decimal.Decimal `json:"credit"`
	AlreadyApplied bool            `json:"already_applied,omitempty"`
}

type RefundPaymentResponse struct {
	Refund   *PaymentResponse `json:"refund"`
	Invoices []InvoiceBalance `json:"invoices"`
	// CreditReversed is the part of the refund taken out of client credit
	CreditReversed decimal.Decimal `json:"credit_reversed"`
	// NewBalance is the balance of the invoice the original payment was applied to, when there is one
	NewBalance     *decimal.Decimal `json:"new_balance,omitempty"`
	AlreadyApplied bool             `json:"already_applied,omitempty"`
}

type ClientBalanceResponse struct {
	*payment.ClientBalance
}
