package proration

import (
	"context"
	"testing"
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculator_Calculate(t *testing.T) {
	tests := []struct {
		name        string
		convention  types.DayCountConvention
		params      ProrationParams
		wantAmount  string
		wantPeriod  int
		wantCovered int
		wantErr     bool
	}{
		{
			name:       "actual_half_of_april",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(300),
				StartDate:  date(2024, time.April, 16),
				EndDate:    date(2024, time.April, 30),
			},
			wantAmount:  "150.00",
			wantPeriod:  30,
			wantCovered: 15,
		},
		{
			name:       "actual_leap_february",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(290),
				StartDate:  date(2024, time.February, 20),
				EndDate:    date(2024, time.February, 29),
			},
			wantAmount:  "100.00",
			wantPeriod:  29,
			wantCovered: 10,
		},
		{
			name:       "actual_non_leap_february",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(280),
				StartDate:  date(2023, time.February, 15),
				EndDate:    date(2023, time.February, 28),
			},
			wantAmount:  "140.00",
			wantPeriod:  28,
			wantCovered: 14,
		},
		{
			name:       "actual_full_month_is_full_amount",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.RequireFromString("99.99"),
				StartDate:  date(2024, time.March, 1),
				EndDate:    date(2024, time.March, 31),
			},
			wantAmount:  "99.99",
			wantPeriod:  31,
			wantCovered: 31,
		},
		{
			name:       "actual_single_day",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(100),
				StartDate:  date(2024, time.March, 10),
				EndDate:    date(2024, time.March, 10),
			},
			wantAmount:  "3.23",
			wantPeriod:  31,
			wantCovered: 1,
		},
		{
			name:       "actual_explicit_cycle_crossing_month",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount:  decimal.NewFromInt(310),
				PeriodStart: date(2024, time.January, 15),
				PeriodEnd:   date(2024, time.February, 15),
				StartDate:   date(2024, time.January, 25),
				EndDate:     date(2024, time.February, 14),
			},
			wantAmount:  "210.00",
			wantPeriod:  31,
			wantCovered: 21,
		},
		{
			name:       "thirty_full_february_is_full_amount",
			convention: types.DayCountThirty,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(300),
				StartDate:  date(2023, time.February, 1),
				EndDate:    date(2023, time.February, 28),
			},
			wantAmount:  "300.00",
			wantPeriod:  30,
			wantCovered: 30,
		},
		{
			name:       "thirty_full_31_day_month_never_exceeds_full",
			convention: types.DayCountThirty,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(300),
				StartDate:  date(2024, time.March, 1),
				EndDate:    date(2024, time.March, 31),
			},
			wantAmount:  "300.00",
			wantPeriod:  30,
			wantCovered: 30,
		},
		{
			name:       "thirty_ten_days",
			convention: types.DayCountThirty,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(300),
				StartDate:  date(2024, time.March, 11),
				EndDate:    date(2024, time.March, 20),
			},
			wantAmount:  "100.00",
			wantPeriod:  30,
			wantCovered: 10,
		},
		{
			name:       "thirty_quarterly_cycle",
			convention: types.DayCountThirty,
			params: ProrationParams{
				FullAmount:  decimal.NewFromInt(900),
				PeriodStart: date(2024, time.January, 1),
				PeriodEnd:   date(2024, time.April, 1),
				StartDate:   date(2024, time.March, 1),
				EndDate:     date(2024, time.March, 31),
			},
			wantAmount:  "300.00",
			wantPeriod:  90,
			wantCovered: 30,
		},
		{
			name:       "explicit_period_days",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(100),
				PeriodDays: 30,
				StartDate:  date(2024, time.May, 1),
				EndDate:    date(2024, time.May, 3),
			},
			wantAmount:  "10.00",
			wantPeriod:  30,
			wantCovered: 3,
		},
		{
			name:       "zero_amount",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.Zero,
				StartDate:  date(2024, time.May, 1),
				EndDate:    date(2024, time.May, 3),
			},
			wantAmount:  "0.00",
			wantPeriod:  31,
			wantCovered: 3,
		},
		{
			name:       "end_before_start",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(100),
				StartDate:  date(2024, time.May, 3),
				EndDate:    date(2024, time.May, 1),
			},
			wantErr: true,
		},
		{
			name:       "negative_amount",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(-100),
				StartDate:  date(2024, time.May, 1),
				EndDate:    date(2024, time.May, 3),
			},
			wantErr: true,
		},
		{
			name:       "range_outside_cycle",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount:  decimal.NewFromInt(100),
				PeriodStart: date(2024, time.May, 1),
				PeriodEnd:   date(2024, time.June, 1),
				StartDate:   date(2024, time.May, 20),
				EndDate:     date(2024, time.June, 5),
			},
			wantErr: true,
		},
		{
			name:       "cross_month_without_cycle",
			convention: types.DayCountActual,
			params: ProrationParams{
				FullAmount: decimal.NewFromInt(100),
				StartDate:  date(2024, time.May, 20),
				EndDate:    date(2024, time.June, 5),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewCalculator(tt.convention).Calculate(context.Background(), tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, result.Amount.StringFixed(2))
			assert.Equal(t, tt.wantPeriod, result.PeriodDays)
			assert.Equal(t, tt.wantCovered, result.DaysCovered)
			assert.Equal(t, tt.convention, result.Convention)
		})
	}
}

// Every sub-range of a cycle prorates to an amount between zero and the full
// amount, for both conventions and every month of a leap and a common year.
func TestCalculator_Boundedness(t *testing.T) {
	amounts := []decimal.Decimal{
		decimal.Zero,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("99.99"),
		decimal.RequireFromString("2500"),
		decimal.RequireFromString("1234567.89"),
	}
	conventions := []types.DayCountConvention{types.DayCountActual, types.DayCountThirty}

	for _, convention := range conventions {
		calc := NewCalculator(convention)
		for _, year := range []int{2023, 2024} {
			for month := time.January; month <= time.December; month++ {
				last := types.DaysInMonth(year, month)
				for _, full := range amounts {
					for startDay := 1; startDay <= last; startDay += 3 {
						for endDay := startDay; endDay <= last; endDay += 4 {
							result, err := calc.Calculate(context.Background(), ProrationParams{
								FullAmount: full,
								StartDate:  date(year, month, startDay),
								EndDate:    date(year, month, endDay),
							})
							require.NoError(t, err)
							assert.False(t, result.Amount.IsNegative())
							assert.True(t, result.Amount.LessThanOrEqual(full),
								"%s %d-%02d %d..%d: %s > %s", convention, year, month, startDay, endDay, result.Amount, full)
							assert.True(t, result.Amount.Equal(result.Amount.Round(2)))
						}
					}
				}
			}
		}
	}
}

func TestThirtyDaysBetweenInclusive(t *testing.T) {
	assert.Equal(t, 30, thirtyDaysBetweenInclusive(date(2024, time.January, 1), date(2024, time.January, 31)))
	assert.Equal(t, 30, thirtyDaysBetweenInclusive(date(2024, time.February, 1), date(2024, time.February, 29)))
	assert.Equal(t, 1, thirtyDaysBetweenInclusive(date(2024, time.January, 31), date(2024, time.January, 31)))
	assert.Equal(t, 60, thirtyDaysBetweenInclusive(date(2024, time.January, 1), date(2024, time.February, 29)))

	// last day of February opens the range as the 30th too
	assert.Equal(t, 1, thirtyDaysBetweenInclusive(date(2023, time.February, 28), date(2023, time.February, 28)))
	assert.Equal(t, 6, thirtyDaysBetweenInclusive(date(2023, time.February, 28), date(2023, time.March, 5)))
	assert.Equal(t, 1, thirtyDaysBetweenInclusive(date(2024, time.February, 29), date(2024, time.February, 29)))
	assert.Equal(t, 2, thirtyDaysBetweenInclusive(date(2024, time.February, 29), date(2024, time.March, 1)))
	assert.Equal(t, 16, thirtyDaysBetweenInclusive(date(2023, time.February, 15), date(2023, time.February, 28)))
}
