package dto

import (
	"strings"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/recurring"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateRecurringInvoiceRequest schedules invoices for a client
type CreateRecurringInvoiceRequest struct {
	ClientID string `json:"client_id" validate:"required"`

	// contract_id links the schedule to a contract whose billing model sets the amount
	ContractID *string `json:"contract_id,omitempty"`

	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
	Currency    string `json:"currency,omitempty"`

	// amount is billed each cycle when no contract is linked
	Amount decimal.Decimal `json:"amount"`

	Frequency    types.BillingFrequency   `json:"frequency" validate:"required"`
	CustomMonths int                      `json:"custom_months,omitempty"`
	DayCount     types.DayCountConvention `json:"day_count,omitempty"`

	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// next_billing_date defaults to the start date
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`

	PaymentTermDays int               `json:"payment_term_days" validate:"gte=0"`
	ServiceType     types.ServiceType `json:"service_type,omitempty"`
	TaxProfile      TaxProfile        `json:"tax_profile"`
}

func (r *CreateRecurringInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := validateCurrency(r.Currency); err != nil {
		return err
	}
	if r.ContractID == nil && !r.Amount.IsPositive() {
		return ierr.NewError("amount is required").
			WithHint("Recurring invoices without a contract need a positive amount").
			Mark(ierr.ErrValidation)
	}
	if r.NextBillingDate != nil && r.NextBillingDate.Before(r.StartDate) {
		return ierr.NewError("next billing date before start date").
			WithHint("Next billing date must be on or after the start date").
			Mark(ierr.ErrValidation)
	}
	if err := r.TaxProfile.Validate(); err != nil {
		return err
	}
	return r.ToRecurringInvoice(types.CompanyContext{}, time.Time{}, "usd").Validate()
}

func (r *CreateRecurringInvoiceRequest) ToRecurringInvoice(cc types.CompanyContext, now time.Time, defaultCurrency string) *recurring.RecurringInvoice {
	start := types.DateOnly(r.StartDate)
	next := start
	if r.NextBillingDate != nil {
		next = types.DateOnly(*r.NextBillingDate)
	}
	var end *time.Time
	if r.EndDate != nil {
		end = lo.ToPtr(types.DateOnly(*r.EndDate))
	}

	return &recurring.RecurringInvoice{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RECURRING_INVOICE),
		ClientID:        r.ClientID,
		ContractID:      r.ContractID,
		Description:     r.Description,
		Currency:        strings.ToLower(lo.Ternary(r.Currency == "", defaultCurrency, r.Currency)),
		Amount:          types.Round2(r.Amount),
		Frequency:       r.Frequency,
		CustomMonths:    r.CustomMonths,
		DayCount:        lo.Ternary(r.DayCount == "", types.DayCountActual, r.DayCount),
		StartDate:       start,
		EndDate:         end,
		NextBillingDate: next,
		BillingAnchor:   next,
		PaymentTermDays: r.PaymentTermDays,
		ServiceType:     lo.Ternary(r.ServiceType == "", types.ServiceTypeOrdinary, r.ServiceType),
		RecurringStatus: types.RecurringInvoiceStatusActive,
		Jurisdiction:    r.TaxProfile.GetJurisdiction(),
		State:           r.TaxProfile.State,
		County:          r.TaxProfile.County,
		City:            r.TaxProfile.City,
		IncludeUSF:      r.TaxProfile.IncludeUSF,
		Exemptions:      r.TaxProfile.Exemptions,
		Version:         1,
		BaseModel:       types.GetDefaultBaseModel(cc, now),
	}
}

// AdvanceRecurringInvoiceRequest bills the cycle due on or before target_date
type AdvanceRecurringInvoiceRequest struct {
	// target_date defaults to today
	TargetDate *time.Time `json:"target_date,omitempty"`

	// usage overrides the contract counts for this cycle
	Usage *UsageRequest `json:"usage,omitempty"`
}

// UsageRequest carries the counts for one contract billing cycle
type UsageRequest struct {
	AssetCount int64           `json:"asset_count" validate:"gte=0"`
	UserCount  int64           `json:"user_count" validate:"gte=0"`
	Units      decimal.Decimal `json:"units"`
}

func (r *AdvanceRecurringInvoiceRequest) Validate() error {
	if r.Usage != nil {
		if err := validator.ValidateRequest(r.Usage); err != nil {
			return err
		}
		if r.Usage.Units.IsNegative() {
			return ierr.NewError("negative usage").
				WithHint("Usage units cannot be negative").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

func (r *AdvanceRecurringInvoiceRequest) GetTargetDate(now time.Time) time.Time {
	if r == nil || r.TargetDate == nil {
		return types.DateOnly(now)
	}
	return types.DateOnly(*r.TargetDate)
}

type RecurringInvoiceResponse struct {
	*recurring.RecurringInvoice
}

func NewRecurringInvoiceResponse(r *recurring.RecurringInvoice) *RecurringInvoiceResponse {
	return &RecurringInvoiceResponse{RecurringInvoice: r}
}

type ListRecurringInvoicesResponse struct {
	Items      []*RecurringInvoiceResponse `json:"items"`
	Pagination *PaginationResponse         `json:"pagination,omitempty"`
}

// RecurringInvoiceFilter narrows recurring invoice listings
type RecurringInvoiceFilter struct {
	types.QueryFilter
	ClientID   string                       `form:"client_id" json:"client_id,omitempty"`
	ContractID string                       `form:"contract_id" json:"contract_id,omitempty"`
	Status     types.RecurringInvoiceStatus `form:"status" json:"status,omitempty"`
}

func (f *RecurringInvoiceFilter) ToFilter(companyID string) *recurring.Filter {
	qf := f.QueryFilter
	return &recurring.Filter{
		QueryFilter: &qf,
		CompanyID:   companyID,
		ClientID:    f.ClientID,
		ContractID:  f.ContractID,
		Status:      f.Status,
	}
}

// AdvanceRecurringInvoiceResponse is the outcome of one cycle advance.
// AlreadyProcessed is set when the cycle had been billed before; Invoice is then nil.
type AdvanceRecurringInvoiceResponse struct {
	RecurringInvoice *RecurringInvoiceResponse `json:"recurring_invoice"`
	Invoice          *InvoiceResponse          `json:"invoice,omitempty"`
	NextBillingDate  time.Time                 `json:"next_billing_date"`
	AlreadyProcessed bool                      `json:"already_processed"`
	Skipped          bool                      `json:"skipped,omitempty"`
}

// ProcessDueResult is the outcome for one record of a billing run
type ProcessDueResult struct {
	RecurringInvoiceID string     `json:"recurring_invoice_id"`
	InvoiceID          string     `json:"invoice_id,omitempty"`
	NextBillingDate    *time.Time `json:"next_billing_date,omitempty"`
	AlreadyProcessed   bool       `json:"already_processed,omitempty"`
	Error              string     `json:"error,omitempty"`
}

type ProcessDueResponse struct {
	AsOf      time.Time          `json:"as_of"`
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Results   []ProcessDueResult `json:"results"`
}

// ProcessDueRequest triggers a billing run outside the schedule.
type ProcessDueRequest struct {
	// as_of defaults to now
	AsOf *time.Time `json:"as_of,omitempty"`
}
