package contract

import (
	"fmt"
	"time"

	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculate computes the period charge of the contract as of asOf. usage
// overrides the contract's stored counts when given. The configuration is
// validated first so a missing rate fails loudly instead of billing zero.
func Calculate(c *Contract, asOf time.Time, usage *Usage) (*BillingResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	u := c.DefaultUsage()
	if usage != nil {
		u = *usage
	}
	if u.AssetCount < 0 || u.UserCount < 0 || u.Units.IsNegative() {
		return nil, configErr("usage counts cannot be negative")
	}

	details := BillingDetails{
		Model:                c.BillingModel,
		AsOf:                 asOf,
		EscalationMultiplier: decimal.NewFromInt(1),
		DiscountAmount:       decimal.Zero,
	}

	base, components, err := baseAmount(c, asOf, u)
	if err != nil {
		return nil, err
	}
	details.Components = components
	details.BaseAmount = types.Round2(base)

	escalated := base
	if c.Escalation != nil && c.BillingModel != types.BillingModelScheduled {
		periods, multiplier, err := escalationMultiplier(c, asOf)
		if err != nil {
			return nil, err
		}
		details.EscalationPeriods = periods
		details.EscalationMultiplier = multiplier
		escalated = base.Mul(multiplier)
	}
	details.EscalatedAmount = types.Round2(escalated)

	net := escalated
	if c.Discount != nil {
		details.DiscountType = c.Discount.Type
		switch c.Discount.Type {
		case types.DiscountTypePercentage:
			net = escalated.Mul(hundred.Sub(c.Discount.Value)).Div(hundred)
		case types.DiscountTypeFlat:
			net = escalated.Sub(c.Discount.Value)
		}
		if net.IsNegative() {
			return nil, configErrf("%s discount of %s exceeds the billed amount %s",
				c.Discount.Type, c.Discount.Value.StringFixed(2), types.FormatAmount(escalated))
		}
		details.DiscountAmount = types.Round2(escalated.Sub(net))
	}

	amount := types.Round2(net)
	details.NetAmount = amount
	return &BillingResult{Amount: amount, Details: details}, nil
}

// AnnualValue is the period amount as of asOf times the periods in a year.
func AnnualValue(c *Contract, asOf time.Time) (decimal.Decimal, error) {
	result, err := Calculate(c, asOf, nil)
	if err != nil {
		return decimal.Zero, err
	}
	periods, err := c.PeriodsPerYear()
	if err != nil {
		return decimal.Zero, err
	}
	return types.Round2(result.Amount.Mul(periods)), nil
}

func baseAmount(c *Contract, asOf time.Time, u Usage) (decimal.Decimal, []Component, error) {
	assets := decimal.NewFromInt(u.AssetCount)
	users := decimal.NewFromInt(u.UserCount)

	switch c.BillingModel {
	case types.BillingModelFixedPrice:
		return *c.MonthlyAmount, []Component{
			{Description: "Fixed price", Quantity: decimal.NewFromInt(1), Rate: *c.MonthlyAmount, Amount: *c.MonthlyAmount},
		}, nil

	case types.BillingModelAssetBased:
		amount := assets.Mul(*c.PerAssetRate)
		return amount, []Component{
			{Description: "Assets", Quantity: assets, Rate: *c.PerAssetRate, Amount: amount},
		}, nil

	case types.BillingModelUserBased:
		billed := u.UserCount
		if billed < c.MinimumUsers {
			billed = c.MinimumUsers
		}
		qty := decimal.NewFromInt(billed)
		amount := qty.Mul(*c.PerUserRate)
		desc := "Users"
		if billed != u.UserCount {
			desc = fmt.Sprintf("Users (minimum %d, actual %d)", c.MinimumUsers, u.UserCount)
		}
		return amount, []Component{
			{Description: desc, Quantity: qty, Rate: *c.PerUserRate, Amount: amount},
		}, nil

	case types.BillingModelHybrid:
		assetAmount := assets.Mul(*c.PerAssetRate)
		userAmount := users.Mul(*c.PerUserRate)
		return c.BaseAmount.Add(assetAmount).Add(userAmount), []Component{
			{Description: "Base", Quantity: decimal.NewFromInt(1), Rate: *c.BaseAmount, Amount: *c.BaseAmount},
			{Description: "Assets", Quantity: assets, Rate: *c.PerAssetRate, Amount: assetAmount},
			{Description: "Users", Quantity: users, Rate: *c.PerUserRate, Amount: userAmount},
		}, nil

	case types.BillingModelTiered:
		count := u.AssetCount
		if c.TierMetric == TierMetricUsers {
			count = u.UserCount
		}
		return tieredAmount(c.Tiers, count)

	case types.BillingModelUsageBased:
		overage := u.Units.Sub(c.IncludedUsage)
		if overage.IsNegative() {
			overage = decimal.Zero
		}
		usageAmount := overage.Mul(*c.UsageRate)
		return c.BaseAmount.Add(usageAmount), []Component{
			{Description: "Base", Quantity: decimal.NewFromInt(1), Rate: *c.BaseAmount, Amount: *c.BaseAmount},
			{Description: fmt.Sprintf("Usage above %s included", c.IncludedUsage), Quantity: overage, Rate: *c.UsageRate, Amount: usageAmount},
		}, nil

	case types.BillingModelScheduled:
		entry, ok := scheduledEntry(c.Schedule, asOf)
		if !ok {
			return decimal.Zero, nil, configErrf("schedule has no amount on or before %s", asOf.Format("2006-01-02"))
		}
		return entry.Amount, []Component{
			{Description: fmt.Sprintf("Scheduled amount from %s", entry.Date.Format("2006-01-02")), Quantity: decimal.NewFromInt(1), Rate: entry.Amount, Amount: entry.Amount},
		}, nil
	}

	return decimal.Zero, nil, c.BillingModel.Validate()
}

// tieredAmount consumes bands in ascending min order. Units above a bounded
// top band are a configuration error rather than free.
func tieredAmount(tiers []Tier, count int64) (decimal.Decimal, []Component, error) {
	total := decimal.Zero
	components := make([]Component, 0, len(tiers))
	remaining := count

	for _, t := range SortedTiers(tiers) {
		if remaining <= 0 {
			break
		}
		inBand := remaining
		if capacity := t.Capacity(); capacity >= 0 && capacity < inBand {
			inBand = capacity
		}
		qty := decimal.NewFromInt(inBand)
		amount := qty.Mul(t.Rate)
		total = total.Add(amount)
		components = append(components, Component{
			Description: tierLabel(t),
			Quantity:    qty,
			Rate:        t.Rate,
			Amount:      amount,
		})
		remaining -= inBand
	}

	if remaining > 0 {
		return decimal.Zero, nil, configErrf("count %d exceeds the highest tier by %d; make the last tier unbounded", count, remaining)
	}
	return total, components, nil
}

func tierLabel(t Tier) string {
	if t.Max == nil {
		return fmt.Sprintf("Tier %d+", t.Min)
	}
	return fmt.Sprintf("Tier %d-%d", t.Min, *t.Max)
}

// scheduledEntry returns the latest entry dated on or before asOf.
func scheduledEntry(schedule []ScheduleEntry, asOf time.Time) (ScheduleEntry, bool) {
	day := types.DateOnly(asOf)
	var best ScheduleEntry
	found := false
	for _, e := range schedule {
		d := types.DateOnly(e.Date)
		if d.After(day) {
			continue
		}
		if !found || d.After(types.DateOnly(best.Date)) {
			best = e
			found = true
		}
	}
	return best, found
}

// escalationMultiplier compounds (1 + rate/100) once per whole escalation
// period between the start date and asOf.
func escalationMultiplier(c *Contract, asOf time.Time) (int, decimal.Decimal, error) {
	months, err := c.Escalation.Frequency.Months()
	if err != nil {
		return 0, decimal.Zero, err
	}
	periods := types.MonthsBetween(c.StartDate, asOf) / months

	factor := decimal.NewFromInt(1).Add(c.Escalation.Rate.Div(hundred))
	multiplier := decimal.NewFromInt(1)
	for i := 0; i < periods; i++ {
		multiplier = multiplier.Mul(factor)
	}
	return periods, multiplier, nil
}
