package proration

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Calculator prorates a full-period amount over a covered date range.
type Calculator interface {
	Calculate(ctx context.Context, params ProrationParams) (*ProrationResult, error)
}

// NewCalculator creates a proration calculator for the contract's day-count convention.
func NewCalculator(convention types.DayCountConvention) Calculator {
	switch convention {
	case types.DayCountThirty:
		return &thirtyDayCalculator{}
	default:
		return &actualDayCalculator{}
	}
}

// actualDayCalculator counts calendar days, so February has 28 or 29.
type actualDayCalculator struct{}

func (c *actualDayCalculator) Calculate(ctx context.Context, params ProrationParams) (*ProrationResult, error) {
	if err := validateParams(params); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("invalid proration params: %v", err).
			Mark(ierr.ErrValidation)
	}

	periodStart, periodEnd := cycleBounds(params)

	periodDays := params.PeriodDays
	if periodDays == 0 {
		periodDays = int(types.DateOnly(periodEnd).Sub(types.DateOnly(periodStart)).Hours() / 24)
	}

	covered := types.DaysBetweenInclusive(params.StartDate, params.EndDate)
	return buildResult(params.FullAmount, periodDays, covered, types.DayCountActual)
}

// thirtyDayCalculator treats every month as 30 days and counts covered days
// the 30/360 way: the last day of any month, February included, counts as
// the 30th on both ends of the range.
type thirtyDayCalculator struct{}

func (c *thirtyDayCalculator) Calculate(ctx context.Context, params ProrationParams) (*ProrationResult, error) {
	if err := validateParams(params); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("invalid proration params: %v", err).
			Mark(ierr.ErrValidation)
	}

	periodStart, periodEnd := cycleBounds(params)

	periodDays := params.PeriodDays
	if periodDays == 0 {
		months := types.MonthsBetween(periodStart, periodEnd)
		if months < 1 {
			months = 1
		}
		periodDays = months * 30
	}

	covered := thirtyDaysBetweenInclusive(params.StartDate, params.EndDate)
	return buildResult(params.FullAmount, periodDays, covered, types.DayCountThirty)
}

// thirtyDaysBetweenInclusive counts days from start to end inclusive using
// 30-day months.
func thirtyDaysBetweenInclusive(start, end time.Time) int {
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()

	if d1 > 30 || d1 == types.DaysInMonth(y1, m1) {
		d1 = 30
	}
	if d2 > 30 || d2 == types.DaysInMonth(y2, m2) {
		d2 = 30
	}

	days := (y2-y1)*360 + (int(m2)-int(m1))*30 + (d2 - d1) + 1
	if days < 0 {
		return 0
	}
	return days
}

// cycleBounds returns the billing cycle, defaulting to the calendar month of StartDate.
func cycleBounds(params ProrationParams) (time.Time, time.Time) {
	if !params.PeriodStart.IsZero() && !params.PeriodEnd.IsZero() {
		return params.PeriodStart, params.PeriodEnd
	}
	y, m, _ := params.StartDate.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, types.AddClampedMonths(start, 1)
}

func buildResult(full decimal.Decimal, periodDays, covered int, convention types.DayCountConvention) (*ProrationResult, error) {
	if periodDays <= 0 {
		return nil, ierr.NewError("invalid billing period").
			WithHintf("billing period has %d days", periodDays).
			Mark(ierr.ErrValidation)
	}

	// a sub-range never bills more than the full period
	if covered > periodDays {
		covered = periodDays
	}

	days := decimal.NewFromInt(int64(periodDays))
	amount := types.Round2(full.Mul(decimal.NewFromInt(int64(covered))).Div(days))
	if amount.GreaterThan(full) {
		amount = full
	}

	return &ProrationResult{
		Amount:      amount,
		FullAmount:  full,
		PeriodDays:  periodDays,
		DaysCovered: covered,
		DailyRate:   full.Div(days).Round(6),
		Convention:  convention,
	}, nil
}

// validateParams checks if essential parameters are provided.
func validateParams(params ProrationParams) error {
	if params.FullAmount.IsNegative() {
		return fmt.Errorf("full period amount cannot be negative")
	}
	if params.StartDate.IsZero() || params.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if types.DateOnly(params.EndDate).Before(types.DateOnly(params.StartDate)) {
		return fmt.Errorf("end date cannot be before start date")
	}
	if params.PeriodDays < 0 {
		return fmt.Errorf("period days cannot be negative")
	}
	if params.PeriodStart.IsZero() != params.PeriodEnd.IsZero() {
		return fmt.Errorf("billing period start and end must be provided together")
	}
	if !params.PeriodStart.IsZero() {
		ps := types.DateOnly(params.PeriodStart)
		pe := types.DateOnly(params.PeriodEnd)
		if !pe.After(ps) {
			return fmt.Errorf("billing period end must be after its start")
		}
		if types.DateOnly(params.StartDate).Before(ps) || !types.DateOnly(params.EndDate).Before(pe) {
			return fmt.Errorf("covered range must fall inside the billing period")
		}
	} else if params.PeriodDays == 0 {
		y1, m1, _ := params.StartDate.Date()
		y2, m2, _ := params.EndDate.Date()
		if y1 != y2 || m1 != m2 {
			return fmt.Errorf("a range crossing a month boundary needs an explicit billing period")
		}
	}
	return nil
}
