package recurring

import (
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// RecurringInvoice binds a client, and optionally a contract, to a billing
// cadence. The scheduler mutates it once per cycle.
type RecurringInvoice struct {
	ID              string                       `db:"id" json:"id"`
	ClientID        string                       `db:"client_id" json:"client_id"`
	ContractID      *string                      `db:"contract_id" json:"contract_id,omitempty"`
	Description     string                       `db:"description" json:"description"`
	Currency        string                       `db:"currency" json:"currency"`
	Amount          decimal.Decimal              `db:"amount" json:"amount"`
	Frequency       types.BillingFrequency       `db:"frequency" json:"frequency"`
	CustomMonths    int                          `db:"custom_months" json:"custom_months,omitempty"`
	DayCount        types.DayCountConvention     `db:"day_count" json:"day_count"`
	StartDate       time.Time                    `db:"start_date" json:"start_date"`
	EndDate         *time.Time                   `db:"end_date" json:"end_date,omitempty"`
	NextBillingDate time.Time                    `db:"next_billing_date" json:"next_billing_date"`
	BillingAnchor   time.Time                    `db:"billing_anchor" json:"billing_anchor"`
	PaymentTermDays int                          `db:"payment_term_days" json:"payment_term_days"`
	ServiceType     types.ServiceType            `db:"service_type" json:"service_type"`
	RecurringStatus types.RecurringInvoiceStatus `db:"recurring_status" json:"recurring_status"`
	FailedAttempts  int                          `db:"failed_attempts" json:"failed_attempts"`
	LastError       string                       `db:"last_error" json:"last_error,omitempty"`
	LastInvoiceID   *string                      `db:"last_invoice_id" json:"last_invoice_id,omitempty"`
	LastBilledAt    *time.Time                   `db:"last_billed_at" json:"last_billed_at,omitempty"`

	// tax profile copied onto generated invoices
	Jurisdiction types.Jurisdiction  `db:"jurisdiction" json:"jurisdiction"`
	State        string              `db:"service_state" json:"service_state,omitempty"`
	County       string              `db:"service_county" json:"service_county,omitempty"`
	City         string              `db:"service_city" json:"service_city,omitempty"`
	IncludeUSF   bool                `db:"include_usf" json:"include_usf"`
	Exemptions   []types.TaxCategory `db:"-" json:"exemptions,omitempty"`

	Version int `db:"version" json:"version"`
	types.BaseModel
}

func (r *RecurringInvoice) IsActive() bool {
	return r.RecurringStatus == types.RecurringInvoiceStatusActive
}

// IsDue reports whether the cycle starting at NextBillingDate should be billed by target.
func (r *RecurringInvoice) IsDue(target time.Time) bool {
	return r.IsActive() && !types.DateOnly(r.NextBillingDate).After(types.DateOnly(target))
}

// RecordFailure counts a failed generation attempt.
func (r *RecurringInvoice) RecordFailure(err error) {
	r.FailedAttempts++
	r.LastError = err.Error()
	if hint := ierr.HintOf(err); hint != "" {
		r.LastError = hint
	}
}

func (r *RecurringInvoice) Validate() error {
	if r.ClientID == "" {
		return ierr.NewError("client id is required").
			WithHint("Every recurring invoice belongs to a client").
			Mark(ierr.ErrValidation)
	}
	if _, err := r.Frequency.Months(r.CustomMonths); err != nil {
		return err
	}
	if err := r.DayCount.Validate(); err != nil {
		return err
	}
	if r.StartDate.IsZero() {
		return ierr.NewError("start date is required").
			WithHint("Recurring invoices need a start date").
			Mark(ierr.ErrValidation)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ierr.NewError("end date before start date").
			WithHint("Recurring invoice end date must be on or after its start date").
			Mark(ierr.ErrValidation)
	}
	if r.ContractID == nil && r.Amount.IsNegative() {
		return ierr.NewError("negative amount").
			WithHint("Recurring invoice amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if r.PaymentTermDays < 0 {
		return ierr.NewError("negative payment terms").
			WithHint("Payment term days cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return r.ServiceType.Validate()
}
