package contract

import (
	"sort"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Validate checks the billing configuration. Every failure is an
// ierr.ErrConfiguration whose hint names the contract field at fault.
func (c *Contract) Validate() error {
	if c.ClientID == "" {
		return ierr.NewError("contract client is required").
			WithHint("Every contract belongs to a client").
			Mark(ierr.ErrValidation)
	}
	if err := c.BillingModel.Validate(); err != nil {
		return err
	}
	if _, err := c.Frequency.Months(c.CustomMonths); err != nil {
		return err
	}
	if err := c.DayCount.Validate(); err != nil {
		return err
	}
	if c.StartDate.IsZero() {
		return configErr("contract start date is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return configErr("contract end date is before its start date")
	}

	if err := c.validateModelFields(); err != nil {
		return err
	}
	if err := c.validateEscalation(); err != nil {
		return err
	}
	return c.validateDiscount()
}

func (c *Contract) validateModelFields() error {
	switch c.BillingModel {
	case types.BillingModelFixedPrice:
		return c.requireRate("monthly_amount", c.MonthlyAmount)
	case types.BillingModelAssetBased:
		return c.requireRate("per_asset_rate", c.PerAssetRate)
	case types.BillingModelUserBased:
		if c.MinimumUsers < 0 {
			return configErrf("contract billing model '%s' has negative minimum_users", c.BillingModel)
		}
		return c.requireRate("per_user_rate", c.PerUserRate)
	case types.BillingModelHybrid:
		if err := c.requireRate("base_amount", c.BaseAmount); err != nil {
			return err
		}
		if err := c.requireRate("per_asset_rate", c.PerAssetRate); err != nil {
			return err
		}
		return c.requireRate("per_user_rate", c.PerUserRate)
	case types.BillingModelTiered:
		if c.TierMetric != "" && c.TierMetric != TierMetricAssets && c.TierMetric != TierMetricUsers {
			return configErrf("contract tier_metric '%s' must be assets or users", c.TierMetric)
		}
		return ValidateTiers(c.Tiers)
	case types.BillingModelUsageBased:
		if err := c.requireRate("base_amount", c.BaseAmount); err != nil {
			return err
		}
		if err := c.requireRate("usage_rate", c.UsageRate); err != nil {
			return err
		}
		if c.IncludedUsage.IsNegative() {
			return configErrf("contract billing model '%s' has negative included_usage", c.BillingModel)
		}
		return nil
	case types.BillingModelScheduled:
		return validateSchedule(c.Schedule)
	}
	return nil
}

func (c *Contract) requireRate(field string, v *decimal.Decimal) error {
	if v == nil {
		return configErrf("contract billing model '%s' missing %s", c.BillingModel, field)
	}
	if v.IsNegative() {
		return configErrf("contract billing model '%s' has negative %s", c.BillingModel, field)
	}
	return nil
}

// ValidateTiers rejects empty tables, gaps, overlaps, inverted bands and an
// unbounded band anywhere but last. Bands may be given in any order.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return configErr("contract billing model 'tiered' has no tiers")
	}
	sorted := SortedTiers(tiers)
	if sorted[0].Min != 1 {
		return configErrf("first tier must start at 1, got %d", sorted[0].Min)
	}
	for i, t := range sorted {
		if t.Rate.IsNegative() {
			return configErrf("tier %d has a negative rate", i+1)
		}
		if t.Max == nil {
			if i != len(sorted)-1 {
				return configErrf("tier %d is unbounded but is not the last tier", i+1)
			}
			continue
		}
		if *t.Max < t.Min {
			return configErrf("tier %d max %d is below its min %d", i+1, *t.Max, t.Min)
		}
		if i+1 < len(sorted) {
			next := sorted[i+1].Min
			if next <= *t.Max {
				return configErrf("tiers %d and %d overlap at %d", i+1, i+2, next)
			}
			if next > *t.Max+1 {
				return configErrf("gap between tier %d (max %d) and tier %d (min %d)", i+1, *t.Max, i+2, next)
			}
		}
	}
	return nil
}

// SortedTiers returns a copy ordered by ascending min.
func SortedTiers(tiers []Tier) []Tier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	return sorted
}

func validateSchedule(schedule []ScheduleEntry) error {
	if len(schedule) == 0 {
		return configErr("contract billing model 'scheduled' has an empty schedule")
	}
	seen := make(map[string]struct{}, len(schedule))
	for _, e := range schedule {
		key := types.DateOnly(e.Date).Format("2006-01-02")
		if _, dup := seen[key]; dup {
			return configErrf("schedule has two amounts for %s", key)
		}
		seen[key] = struct{}{}
		if e.Amount.IsNegative() {
			return configErrf("schedule amount for %s is negative", key)
		}
	}
	return nil
}

func (c *Contract) validateEscalation() error {
	if c.Escalation == nil {
		return nil
	}
	if _, err := c.Escalation.Frequency.Months(); err != nil {
		return err
	}
	if c.Escalation.Rate.IsNegative() {
		return configErr("escalation rate cannot be negative")
	}
	return nil
}

func (c *Contract) validateDiscount() error {
	if c.Discount == nil {
		return nil
	}
	if c.Discount.Value.IsNegative() {
		return configErr("discount value cannot be negative")
	}
	switch c.Discount.Type {
	case types.DiscountTypePercentage:
		if c.Discount.Value.GreaterThan(decimal.NewFromInt(100)) {
			return configErrf("percentage discount %s exceeds 100", c.Discount.Value)
		}
	case types.DiscountTypeFlat:
	default:
		return configErrf("discount type '%s' must be percentage or flat", c.Discount.Type)
	}
	return nil
}

func configErr(hint string) error {
	return ierr.NewError("invalid contract billing configuration").
		WithHint(hint).
		Mark(ierr.ErrConfiguration)
}

func configErrf(format string, args ...any) error {
	return ierr.NewError("invalid contract billing configuration").
		WithHintf(format, args...).
		Mark(ierr.ErrConfiguration)
}
