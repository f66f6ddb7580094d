package dto

import (
	"strings"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ContractConfig is the billing configuration shared by create and update.
// Rates are pointers so that a missing rate is reported instead of billed as zero.
type ContractConfig struct {
	BillingModel types.BillingModel     `json:"billing_model" validate:"required"`
	Frequency    types.BillingFrequency `json:"frequency" validate:"required"`
	CustomMonths int                    `json:"custom_months,omitempty"`

	// day_count is the proration convention, actual or thirty; defaults to actual
	DayCount types.DayCountConvention `json:"day_count,omitempty"`

	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	MonthlyAmount *decimal.Decimal `json:"monthly_amount,omitempty"`
	BaseAmount    *decimal.Decimal `json:"base_amount,omitempty"`
	PerAssetRate  *decimal.Decimal `json:"per_asset_rate,omitempty"`
	PerUserRate   *decimal.Decimal `json:"per_user_rate,omitempty"`
	MinimumUsers  int64            `json:"minimum_users,omitempty"`
	UsageRate     *decimal.Decimal `json:"usage_rate,omitempty"`
	IncludedUsage decimal.Decimal  `json:"included_usage"`

	AssetCount int64 `json:"asset_count"`
	UserCount  int64 `json:"user_count"`

	TierMetric contract.TierMetric      `json:"tier_metric,omitempty"`
	Tiers      []contract.Tier          `json:"tiers,omitempty"`
	Schedule   []contract.ScheduleEntry `json:"schedule,omitempty"`
	Escalation *contract.Escalation     `json:"escalation,omitempty"`
	Discount   *contract.Discount       `json:"discount,omitempty"`
}

// applyTo copies the configuration onto c.
func (r ContractConfig) applyTo(c *contract.Contract) {
	c.BillingModel = r.BillingModel
	c.Frequency = r.Frequency
	c.CustomMonths = r.CustomMonths
	c.DayCount = lo.Ternary(r.DayCount == "", types.DayCountActual, r.DayCount)
	c.StartDate = types.DateOnly(r.StartDate)
	c.EndDate = nil
	if r.EndDate != nil {
		c.EndDate = lo.ToPtr(types.DateOnly(*r.EndDate))
	}
	c.MonthlyAmount = r.MonthlyAmount
	c.BaseAmount = r.BaseAmount
	c.PerAssetRate = r.PerAssetRate
	c.PerUserRate = r.PerUserRate
	c.MinimumUsers = r.MinimumUsers
	c.UsageRate = r.UsageRate
	c.IncludedUsage = r.IncludedUsage
	c.AssetCount = r.AssetCount
	c.UserCount = r.UserCount
	c.TierMetric = r.TierMetric
	c.Tiers = r.Tiers
	c.Schedule = r.Schedule
	c.Escalation = r.Escalation
	c.Discount = r.Discount
	if c.BillingModel == types.BillingModelTiered && c.TierMetric == "" {
		c.TierMetric = contract.TierMetricAssets
	}
}

// CreateContractRequest represents the request to create a contract
type CreateContractRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=255"`
	Currency string `json:"currency,omitempty"`
	ContractConfig
}

func (r *CreateContractRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := validateCurrency(r.Currency); err != nil {
		return err
	}
	// configuration is checked on the built contract so create, update and
	// the calculate endpoint share one set of rules
	return r.ToContract(types.CompanyContext{}, time.Time{}, "usd").Validate()
}

func (r *CreateContractRequest) ToContract(cc types.CompanyContext, now time.Time, defaultCurrency string) *contract.Contract {
	c := &contract.Contract{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONTRACT),
		ClientID:  r.ClientID,
		Name:      r.Name,
		Currency:  strings.ToLower(lo.Ternary(r.Currency == "", defaultCurrency, r.Currency)),
		BaseModel: types.GetDefaultBaseModel(cc, now),
	}
	r.ContractConfig.applyTo(c)
	return c
}

// UpdateContractRequest replaces the billing configuration of a contract
type UpdateContractRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=255"`
	ContractConfig
}

func (r *UpdateContractRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// Apply writes the update onto c; the caller validates the result.
func (r *UpdateContractRequest) Apply(c *contract.Contract) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	r.ContractConfig.applyTo(c)
}

// ContractBillingRequest asks for the period charge of a contract
type ContractBillingRequest struct {
	// as_of defaults to today
	AsOf *time.Time `json:"as_of,omitempty" form:"as_of"`

	// usage overrides the counts stored on the contract
	Usage *contract.Usage `json:"usage,omitempty"`
}

func (r *ContractBillingRequest) GetAsOf(now time.Time) time.Time {
	if r == nil || r.AsOf == nil {
		return types.DateOnly(now)
	}
	return types.DateOnly(*r.AsOf)
}

// CalculateContractBillingRequest prices an unsaved contract configuration
type CalculateContractBillingRequest struct {
	Contract CreateContractRequest `json:"contract"`
	ContractBillingRequest
}

func (r *CalculateContractBillingRequest) Validate() error {
	return r.Contract.Validate()
}

type ContractResponse struct {
	*contract.Contract
}

func NewContractResponse(c *contract.Contract) *ContractResponse {
	return &ContractResponse{Contract: c}
}

type ListContractsResponse struct {
	Items      []*ContractResponse `json:"items"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// ContractFilter narrows contract listings
type ContractFilter struct {
	types.QueryFilter
	ClientID        string `form:"client_id" json:"client_id,omitempty"`
	IncludeArchived bool   `form:"include_archived" json:"include_archived,omitempty"`
}

func (f *ContractFilter) ToFilter(companyID string) *contract.Filter {
	qf := f.QueryFilter
	return &contract.Filter{
		QueryFilter:     &qf,
		CompanyID:       companyID,
		ClientID:        f.ClientID,
		IncludeArchived: f.IncludeArchived,
	}
}

type ContractBillingResponse struct {
	ContractID string                  `json:"contract_id,omitempty"`
	Amount     decimal.Decimal         `json:"amount"`
	Details    contract.BillingDetails `json:"details"`
}

func NewContractBillingResponse(contractID string, result *contract.BillingResult) *ContractBillingResponse {
	return &ContractBillingResponse{
		ContractID: contractID,
		Amount:     result.Amount,
		Details:    result.Details,
	}
}

type AnnualValueResponse struct {
	ContractID  string          `json:"contract_id"`
	AsOf        time.Time       `json:"as_of"`
	AnnualValue decimal.Decimal `json:"annual_value"`
}
