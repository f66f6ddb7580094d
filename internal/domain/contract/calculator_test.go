package contract

import (
	"testing"
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func newContract(model types.BillingModel) *Contract {
	return &Contract{
		ID:           "contract_test",
		ClientID:     "client_1",
		BillingModel: model,
		Frequency:    types.BillingFrequencyMonthly,
		DayCount:     types.DayCountActual,
		StartDate:    start,
	}
}

func standardTiers() []Tier {
	return []Tier{
		{Min: 1, Max: lo.ToPtr(int64(50)), Rate: decimal.NewFromInt(20)},
		{Min: 51, Max: lo.ToPtr(int64(100)), Rate: decimal.NewFromInt(15)},
		{Min: 101, Max: lo.ToPtr(int64(999)), Rate: decimal.NewFromInt(10)},
	}
}

func TestCalculate_Models(t *testing.T) {
	tests := []struct {
		name     string
		contract func() *Contract
		usage    *Usage
		want     string
	}{
		{
			name: "fixed_price",
			contract: func() *Contract {
				c := newContract(types.BillingModelFixedPrice)
				c.MonthlyAmount = d("2500")
				return c
			},
			want: "2500.00",
		},
		{
			name: "asset_based",
			contract: func() *Contract {
				c := newContract(types.BillingModelAssetBased)
				c.PerAssetRate = d("7.50")
				c.AssetCount = 40
				return c
			},
			want: "300.00",
		},
		{
			name: "user_based_minimum_enforced",
			contract: func() *Contract {
				c := newContract(types.BillingModelUserBased)
				c.PerUserRate = d("45")
				c.MinimumUsers = 50
				return c
			},
			usage: &Usage{UserCount: 25},
			want:  "2250.00",
		},
		{
			name: "user_based_above_minimum",
			contract: func() *Contract {
				c := newContract(types.BillingModelUserBased)
				c.PerUserRate = d("45")
				c.MinimumUsers = 50
				return c
			},
			usage: &Usage{UserCount: 60},
			want:  "2700.00",
		},
		{
			name: "hybrid",
			contract: func() *Contract {
				c := newContract(types.BillingModelHybrid)
				c.BaseAmount = d("1000")
				c.PerAssetRate = d("5")
				c.PerUserRate = d("25")
				return c
			},
			usage: &Usage{AssetCount: 200, UserCount: 50},
			want:  "3250.00",
		},
		{
			name: "tiered_example",
			contract: func() *Contract {
				c := newContract(types.BillingModelTiered)
				c.Tiers = standardTiers()
				return c
			},
			usage: &Usage{AssetCount: 125},
			want:  "2000.00",
		},
		{
			name: "tiered_unordered_bands",
			contract: func() *Contract {
				c := newContract(types.BillingModelTiered)
				c.Tiers = lo.Reverse(standardTiers())
				return c
			},
			usage: &Usage{AssetCount: 125},
			want:  "2000.00",
		},
		{
			name: "tiered_within_first_band",
			contract: func() *Contract {
				c := newContract(types.BillingModelTiered)
				c.Tiers = standardTiers()
				return c
			},
			usage: &Usage{AssetCount: 10},
			want:  "200.00",
		},
		{
			name: "tiered_unbounded_top_on_users",
			contract: func() *Contract {
				c := newContract(types.BillingModelTiered)
				c.TierMetric = TierMetricUsers
				c.Tiers = []Tier{
					{Min: 1, Max: lo.ToPtr(int64(10)), Rate: decimal.NewFromInt(30)},
					{Min: 11, Rate: decimal.NewFromInt(20)},
				}
				return c
			},
			usage: &Usage{UserCount: 5000},
			want:  "100100.00",
		},
		{
			name: "tiered_zero_count",
			contract: func() *Contract {
				c := newContract(types.BillingModelTiered)
				c.Tiers = standardTiers()
				return c
			},
			usage: &Usage{},
			want:  "0.00",
		},
		{
			name: "usage_based_with_overage",
			contract: func() *Contract {
				c := newContract(types.BillingModelUsageBased)
				c.BaseAmount = d("100")
				c.UsageRate = d("0.05")
				c.IncludedUsage = decimal.NewFromInt(1000)
				return c
			},
			usage: &Usage{Units: decimal.NewFromInt(1500)},
			want:  "125.00",
		},
		{
			name: "usage_based_under_included",
			contract: func() *Contract {
				c := newContract(types.BillingModelUsageBased)
				c.BaseAmount = d("100")
				c.UsageRate = d("0.05")
				c.IncludedUsage = decimal.NewFromInt(1000)
				return c
			},
			usage: &Usage{Units: decimal.NewFromInt(10)},
			want:  "100.00",
		},
		{
			name: "scheduled_latest_entry",
			contract: func() *Contract {
				c := newContract(types.BillingModelScheduled)
				c.Schedule = []ScheduleEntry{
					{Date: start, Amount: decimal.NewFromInt(1000)},
					{Date: start.AddDate(0, 6, 0), Amount: decimal.NewFromInt(1200)},
					{Date: start.AddDate(2, 0, 0), Amount: decimal.NewFromInt(1500)},
				}
				return c
			},
			want: "1200.00",
		},
	}

	asOf := time.Date(2023, time.September, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Calculate(tt.contract(), asOf, tt.usage)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Amount.StringFixed(2))
			assert.True(t, result.Amount.Equal(result.Amount.Round(2)))
		})
	}
}

func TestCalculate_TieredComponents(t *testing.T) {
	c := newContract(types.BillingModelTiered)
	c.Tiers = standardTiers()

	result, err := Calculate(c, start, &Usage{AssetCount: 125})
	require.NoError(t, err)
	got := lo.Map(result.Details.Components, func(cp Component, _ int) string {
		return cp.Description + "=" + cp.Amount.StringFixed(2)
	})
	assert.Equal(t, []string{"Tier 1-50=1000.00", "Tier 51-100=750.00", "Tier 101-999=250.00"}, got)
}

func TestCalculate_TieredAboveBoundedTop(t *testing.T) {
	c := newContract(types.BillingModelTiered)
	c.Tiers = standardTiers()

	_, err := Calculate(c, start, &Usage{AssetCount: 1000})
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
}

func TestCalculate_Escalation(t *testing.T) {
	c := newContract(types.BillingModelFixedPrice)
	c.MonthlyAmount = d("1000")
	c.Escalation = &Escalation{Rate: decimal.NewFromInt(5), Frequency: types.EscalationFrequencyAnnually}

	tests := []struct {
		name        string
		asOf        time.Time
		wantPeriods int
		want        string
	}{
		{"before first anniversary", start.AddDate(0, 11, 30), 0, "1000.00"},
		{"first anniversary", start.AddDate(1, 0, 0), 1, "1050.00"},
		{"two years compound", start.AddDate(2, 0, 0), 2, "1102.50"},
		{"floored to whole years", start.AddDate(2, 11, 0), 2, "1102.50"},
		{"three years compound", start.AddDate(3, 0, 0), 3, "1157.63"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Calculate(c, tt.asOf, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeriods, result.Details.EscalationPeriods)
			assert.Equal(t, tt.want, result.Amount.StringFixed(2))
		})
	}
}

// round2(base x 1.05^2) for an awkward base, computed independently.
func TestCalculate_EscalationCompoundsNotSimple(t *testing.T) {
	c := newContract(types.BillingModelFixedPrice)
	c.MonthlyAmount = d("1234.57")
	c.Escalation = &Escalation{Rate: decimal.NewFromInt(5), Frequency: types.EscalationFrequencyAnnually}

	result, err := Calculate(c, start.AddDate(2, 0, 0), nil)
	require.NoError(t, err)

	want := decimal.RequireFromString("1234.57").Mul(decimal.RequireFromString("1.1025")).Round(2)
	assert.True(t, want.Equal(result.Amount), "want %s got %s", want, result.Amount)
	assert.False(t, result.Amount.Equal(decimal.RequireFromString("1234.57").Mul(decimal.RequireFromString("1.10")).Round(2)))
}

func TestCalculate_QuarterlyEscalation(t *testing.T) {
	c := newContract(types.BillingModelAssetBased)
	c.PerAssetRate = d("10")
	c.AssetCount = 10
	c.Escalation = &Escalation{Rate: decimal.NewFromInt(2), Frequency: types.EscalationFrequencyQuarterly}

	result, err := Calculate(c, start.AddDate(0, 7, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Details.EscalationPeriods)
	// 100 x 1.02^2 = 104.04
	assert.Equal(t, "104.04", result.Amount.StringFixed(2))
}

func TestCalculate_Discounts(t *testing.T) {
	c := newContract(types.BillingModelFixedPrice)
	c.MonthlyAmount = d("1000")
	c.Escalation = &Escalation{Rate: decimal.NewFromInt(10), Frequency: types.EscalationFrequencyAnnually}

	c.Discount = &Discount{Type: types.DiscountTypePercentage, Value: decimal.NewFromInt(15)}
	result, err := Calculate(c, start.AddDate(1, 0, 0), nil)
	require.NoError(t, err)
	// discount applies after escalation: 1100 x 0.85
	assert.Equal(t, "935.00", result.Amount.StringFixed(2))
	assert.Equal(t, "165.00", result.Details.DiscountAmount.StringFixed(2))

	c.Discount = &Discount{Type: types.DiscountTypeFlat, Value: decimal.NewFromInt(100)}
	result, err = Calculate(c, start.AddDate(1, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", result.Amount.StringFixed(2))

	c.Discount = &Discount{Type: types.DiscountTypeFlat, Value: decimal.NewFromInt(1500)}
	_, err = Calculate(c, start.AddDate(1, 0, 0), nil)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
}

func TestAnnualValue(t *testing.T) {
	c := newContract(types.BillingModelFixedPrice)
	c.MonthlyAmount = d("2500")

	v, err := AnnualValue(c, start)
	require.NoError(t, err)
	assert.Equal(t, "30000.00", v.StringFixed(2))

	c.Frequency = types.BillingFrequencyQuarterly
	v, err = AnnualValue(c, start)
	require.NoError(t, err)
	assert.Equal(t, "10000.00", v.StringFixed(2))

	c.Frequency = types.BillingFrequencyCustom
	c.CustomMonths = 6
	v, err = AnnualValue(c, start)
	require.NoError(t, err)
	assert.Equal(t, "5000.00", v.StringFixed(2))

	c.Frequency = types.BillingFrequencyAnnually
	v, err = AnnualValue(c, start)
	require.NoError(t, err)
	assert.Equal(t, "2500.00", v.StringFixed(2))
}
