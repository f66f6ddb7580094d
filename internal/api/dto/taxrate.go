package dto

import (
	"strings"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/proration"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateTaxRateRequest adds a row to the company's local rate table
type CreateTaxRateRequest struct {
	// name is shown on the breakdown, e.g. "California state telecom tax"
	Name string `json:"name" validate:"omitempty,max=255"`

	// type is state, county or city
	Type   types.TaxCategory `json:"type" validate:"required"`
	State  string            `json:"state" validate:"required,max=100"`
	County string            `json:"county,omitempty" validate:"omitempty,max=100"`
	City   string            `json:"city,omitempty" validate:"omitempty,max=100"`

	// rate is a percentage between 0 and 100
	Rate decimal.Decimal `json:"rate" validate:"required"`

	// service_types limits the row to these service types; empty taxes every telecom service
	ServiceTypes []types.ServiceType `json:"service_types,omitempty"`
}

func (r *CreateTaxRateRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.ToTaxRate(types.CompanyContext{}, time.Time{}).Validate()
}

func (r *CreateTaxRateRequest) ToTaxRate(cc types.CompanyContext, now time.Time) *tax.TaxRate {
	state := strings.ToUpper(r.State)
	name := r.Name
	if name == "" {
		name = strings.TrimSpace(strings.Join(lo.Compact([]string{r.City, r.County, state}), " ") + " " + string(r.Type) + " tax")
	}
	return &tax.TaxRate{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TAX_RATE),
		Name:         name,
		Type:         r.Type,
		State:        state,
		County:       r.County,
		City:         r.City,
		Rate:         r.Rate,
		ServiceTypes: r.ServiceTypes,
		BaseModel:    types.GetDefaultBaseModel(cc, now),
	}
}

type TaxRateResponse struct {
	*tax.TaxRate
}

func NewTaxRateResponse(r *tax.TaxRate) *TaxRateResponse {
	return &TaxRateResponse{TaxRate: r}
}

type ListTaxRatesResponse struct {
	Items      []*TaxRateResponse  `json:"items"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// CalculateTaxRequest taxes an amount for a service type and profile
type CalculateTaxRequest struct {
	Amount      decimal.Decimal   `json:"amount" validate:"required"`
	ServiceType types.ServiceType `json:"service_type" validate:"required"`
	TaxProfile  TaxProfile        `json:"tax_profile"`
}

func (r *CalculateTaxRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return ierr.NewError("negative taxable amount").
			WithHint("Taxable amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return r.ToTaxContext().Validate()
}

func (r *CalculateTaxRequest) ToTaxContext() tax.TaxContext {
	return tax.TaxContext{
		ServiceType: r.ServiceType,
		ServiceAddress: tax.ServiceAddress{
			State:        r.TaxProfile.State,
			County:       r.TaxProfile.County,
			City:         r.TaxProfile.City,
			Jurisdiction: r.TaxProfile.GetJurisdiction(),
		},
		Exemptions: r.TaxProfile.Exemptions,
		IncludeUSF: r.TaxProfile.IncludeUSF,
	}
}

type CalculateTaxResponse struct {
	*tax.TaxResult
}

// ProrationRequest prorates a full period amount over a covered range
type ProrationRequest struct {
	FullAmount decimal.Decimal          `json:"full_amount" validate:"required"`
	DayCount   types.DayCountConvention `json:"day_count,omitempty"`

	// period_days overrides the day count of the period when set
	PeriodDays int `json:"period_days,omitempty" validate:"gte=0"`

	// period_start and period_end bound the cycle, end exclusive; both empty
	// means the calendar month of start_date
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

func (r *ProrationRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if (r.PeriodStart == nil) != (r.PeriodEnd == nil) {
		return ierr.NewError("incomplete billing period").
			WithHint("Provide both period_start and period_end or neither").
			Mark(ierr.ErrValidation)
	}
	return r.GetDayCount().Validate()
}

func (r *ProrationRequest) GetDayCount() types.DayCountConvention {
	return lo.Ternary(r.DayCount == "", types.DayCountActual, r.DayCount)
}

func (r *ProrationRequest) ToParams() proration.ProrationParams {
	params := proration.ProrationParams{
		FullAmount: r.FullAmount,
		PeriodDays: r.PeriodDays,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
	if r.PeriodStart != nil && r.PeriodEnd != nil {
		params.PeriodStart = *r.PeriodStart
		params.PeriodEnd = *r.PeriodEnd
	}
	return params
}

type ProrationResponse struct {
	*proration.ProrationResult
}
