package proration

import (
	"time"

	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// ProrationParams holds the input of a proration calculation.
type ProrationParams struct {
	// FullAmount is the charge for a complete billing period.
	FullAmount decimal.Decimal

	// PeriodDays overrides the day count of the billing period when set.
	PeriodDays int

	// PeriodStart and PeriodEnd bound the billing cycle, end exclusive
	// (PeriodEnd is the next billing date). When both are zero the cycle is
	// the calendar month containing StartDate.
	PeriodStart time.Time
	PeriodEnd   time.Time

	// StartDate and EndDate are the covered range, both inclusive.
	StartDate time.Time
	EndDate   time.Time
}

// ProrationResult holds the output of a proration calculation.
type ProrationResult struct {
	Amount      decimal.Decimal          `json:"amount"`
	FullAmount  decimal.Decimal          `json:"full_amount"`
	PeriodDays  int                      `json:"period_days"`
	DaysCovered int                      `json:"days_covered"`
	DailyRate   decimal.Decimal          `json:"daily_rate"`
	Convention  types.DayCountConvention `json:"convention"`
}

// IsFullPeriod reports whether the covered range spans the whole cycle.
func (r *ProrationResult) IsFullPeriod() bool {
	return r.DaysCovered >= r.PeriodDays
}
