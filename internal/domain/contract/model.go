package contract

import (
	"time"

	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// TierMetric is the count a tiered contract bills on.
type TierMetric string

const (
	TierMetricAssets TierMetric = "assets"
	TierMetricUsers  TierMetric = "users"
)

// Contract is the billing configuration of a recurring agreement. It holds no
// computed amounts. Rate fields are pointers so a missing rate can be told
// apart from a zero rate.
type Contract struct {
	ID           string                   `db:"id" json:"id"`
	ClientID     string                   `db:"client_id" json:"client_id"`
	Name         string                   `db:"name" json:"name"`
	Currency     string                   `db:"currency" json:"currency"`
	BillingModel types.BillingModel       `db:"billing_model" json:"billing_model"`
	Frequency    types.BillingFrequency   `db:"frequency" json:"frequency"`
	CustomMonths int                      `db:"custom_months" json:"custom_months,omitempty"`
	DayCount     types.DayCountConvention `db:"day_count" json:"day_count"`
	StartDate    time.Time                `db:"start_date" json:"start_date"`
	EndDate      *time.Time               `db:"end_date" json:"end_date,omitempty"`

	// MonthlyAmount is the stated period amount of a fixed_price contract.
	MonthlyAmount *decimal.Decimal `db:"monthly_amount" json:"monthly_amount,omitempty"`
	BaseAmount    *decimal.Decimal `db:"base_amount" json:"base_amount,omitempty"`
	PerAssetRate  *decimal.Decimal `db:"per_asset_rate" json:"per_asset_rate,omitempty"`
	PerUserRate   *decimal.Decimal `db:"per_user_rate" json:"per_user_rate,omitempty"`
	MinimumUsers  int64            `db:"minimum_users" json:"minimum_users,omitempty"`
	UsageRate     *decimal.Decimal `db:"usage_rate" json:"usage_rate,omitempty"`
	IncludedUsage decimal.Decimal  `db:"included_usage" json:"included_usage"`

	// counts used when a billing call brings no usage of its own
	AssetCount int64 `db:"asset_count" json:"asset_count"`
	UserCount  int64 `db:"user_count" json:"user_count"`

	TierMetric TierMetric      `db:"tier_metric" json:"tier_metric,omitempty"`
	Tiers      []Tier          `db:"-" json:"tiers,omitempty"`
	Schedule   []ScheduleEntry `db:"-" json:"schedule,omitempty"`
	Escalation *Escalation     `db:"-" json:"escalation,omitempty"`
	Discount   *Discount       `db:"-" json:"discount,omitempty"`

	types.BaseModel
}

// Tier is one pricing band. Min and Max are inclusive unit positions; a nil
// Max makes the band unbounded, which only the last band may be.
type Tier struct {
	Min  int64           `json:"min"`
	Max  *int64          `json:"max,omitempty"`
	Rate decimal.Decimal `json:"rate"`
}

// Capacity is the number of units the band holds, or -1 when unbounded.
func (t Tier) Capacity() int64 {
	if t.Max == nil {
		return -1
	}
	return *t.Max - t.Min + 1
}

// ScheduleEntry fixes the amount billed from Date on.
type ScheduleEntry struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Escalation compounds Rate percent every Frequency since the start date.
type Escalation struct {
	Rate      decimal.Decimal           `json:"rate"`
	Frequency types.EscalationFrequency `json:"frequency"`
}

// Discount is applied after escalation and before tax.
type Discount struct {
	Type  types.DiscountType `json:"type"`
	Value decimal.Decimal    `json:"value"`
}

// Usage carries the counts of one billing call.
type Usage struct {
	AssetCount int64           `json:"asset_count"`
	UserCount  int64           `json:"user_count"`
	Units      decimal.Decimal `json:"units"`
}

// DefaultUsage is the usage billed when the caller supplies none.
func (c *Contract) DefaultUsage() Usage {
	return Usage{AssetCount: c.AssetCount, UserCount: c.UserCount}
}

// IsActiveOn reports whether t falls inside the effective range.
func (c *Contract) IsActiveOn(t time.Time) bool {
	d := types.DateOnly(t)
	if d.Before(types.DateOnly(c.StartDate)) {
		return false
	}
	return c.EndDate == nil || !d.After(types.DateOnly(*c.EndDate))
}

// PeriodsPerYear is how many billing periods fit in a year.
func (c *Contract) PeriodsPerYear() (decimal.Decimal, error) {
	months, err := c.Frequency.Months(c.CustomMonths)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(12).Div(decimal.NewFromInt(int64(months))), nil
}

// Component is one term of the base computation.
type Component struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// BillingDetails explains how a contract amount was reached.
type BillingDetails struct {
	Model                types.BillingModel `json:"model"`
	AsOf                 time.Time          `json:"as_of"`
	Components           []Component        `json:"components"`
	BaseAmount           decimal.Decimal    `json:"base_amount"`
	EscalationPeriods    int                `json:"escalation_periods"`
	EscalationMultiplier decimal.Decimal    `json:"escalation_multiplier"`
	EscalatedAmount      decimal.Decimal    `json:"escalated_amount"`
	DiscountType         types.DiscountType `json:"discount_type,omitempty"`
	DiscountAmount       decimal.Decimal    `json:"discount_amount"`
	NetAmount            decimal.Decimal    `json:"net_amount"`
}

// BillingResult is the output of Calculate.
type BillingResult struct {
	Amount  decimal.Decimal `json:"amount"`
	Details BillingDetails  `json:"details"`
}
