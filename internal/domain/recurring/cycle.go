package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/proration"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// LineRequest is one line of the invoice a cycle asks for.
type LineRequest struct {
	Description string            `json:"description"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Quantity    decimal.Decimal   `json:"quantity"`
	ServiceType types.ServiceType `json:"service_type"`
}

// InvoiceRequest is what a cycle needs materialized as an invoice.
type InvoiceRequest struct {
	RecurringInvoiceID string          `json:"recurring_invoice_id"`
	ClientID           string          `json:"client_id"`
	ContractID         *string         `json:"contract_id,omitempty"`
	Currency           string          `json:"currency"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
	IssueDate          time.Time       `json:"issue_date"`
	DueDate            time.Time       `json:"due_date"`
	Lines              []LineRequest   `json:"lines"`
	CycleAmount        decimal.Decimal `json:"cycle_amount"`
	Prorated           bool            `json:"prorated"`
	LateFee            decimal.Decimal `json:"late_fee"`
}

// CyclePlan is the outcome of planning one cycle. Request is nil when the
// cycle falls wholly outside the billing range. Finished means the range has
// ended and the record should stop.
type CyclePlan struct {
	Request         *InvoiceRequest `json:"request,omitempty"`
	NextBillingDate time.Time       `json:"next_billing_date"`
	Finished        bool            `json:"finished"`
}

// PlanCycle computes the invoice for the cycle starting at NextBillingDate.
// c is the linked contract or nil for a flat amount. The contract's day-count
// convention wins over the record's own.
func PlanCycle(ctx context.Context, r *RecurringInvoice, c *contract.Contract, usage *contract.Usage, lateFee LateFeePolicy) (*CyclePlan, error) {
	periodStart := types.DateOnly(r.NextBillingDate)
	periodEnd, err := types.NextAnchoredBillingDate(types.DateOnly(r.BillingAnchor), periodStart, r.Frequency, r.CustomMonths)
	if err != nil {
		return nil, err
	}
	lastDay := periodEnd.AddDate(0, 0, -1)

	rangeStart, rangeEnd := types.DateOnly(r.StartDate), r.EndDate
	dayCount := r.DayCount
	if c != nil {
		rangeStart = types.DateOnly(c.StartDate)
		if c.EndDate != nil && (rangeEnd == nil || c.EndDate.Before(*rangeEnd)) {
			rangeEnd = c.EndDate
		}
		dayCount = c.DayCount
	}

	effStart := periodStart
	if rangeStart.After(effStart) {
		effStart = rangeStart
	}
	effEnd := lastDay
	if rangeEnd != nil && types.DateOnly(*rangeEnd).Before(effEnd) {
		effEnd = types.DateOnly(*rangeEnd)
	}

	plan := &CyclePlan{NextBillingDate: periodEnd}
	if effEnd.Before(effStart) {
		// either the range ended before this cycle, or it starts after it
		// and the cycle is skipped without billing
		plan.Finished = rangeEnd != nil && types.DateOnly(*rangeEnd).Before(periodStart)
		return plan, nil
	}

	full := r.Amount
	if c != nil {
		result, err := contract.Calculate(c, periodStart, usage)
		if err != nil {
			return nil, err
		}
		full = result.Amount
	}

	amount := full
	prorated := !effStart.Equal(periodStart) || !effEnd.Equal(lastDay)
	if prorated {
		result, err := proration.NewCalculator(dayCount).Calculate(ctx, proration.ProrationParams{
			FullAmount:  full,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			StartDate:   effStart,
			EndDate:     effEnd,
		})
		if err != nil {
			return nil, err
		}
		amount = result.Amount
	}

	description := r.Description
	if description == "" {
		description = "Recurring services"
	}
	serviceType := r.ServiceType
	if serviceType == "" {
		serviceType = types.ServiceTypeOrdinary
	}

	req := &InvoiceRequest{
		RecurringInvoiceID: r.ID,
		ClientID:           r.ClientID,
		ContractID:         r.ContractID,
		Currency:           r.Currency,
		PeriodStart:        periodStart,
		PeriodEnd:          lastDay,
		IssueDate:          periodStart,
		DueDate:            periodStart.AddDate(0, 0, r.PaymentTermDays),
		CycleAmount:        amount,
		Prorated:           prorated,
		LateFee:            decimal.Zero,
		Lines: []LineRequest{{
			Description: fmt.Sprintf("%s (%s to %s)", description, effStart.Format("2006-01-02"), effEnd.Format("2006-01-02")),
			UnitPrice:   amount,
			Quantity:    decimal.NewFromInt(1),
			ServiceType: serviceType,
		}},
	}

	if lateFee != nil {
		fee := lateFee.Fee(amount, r.FailedAttempts)
		if fee.IsNegative() {
			return nil, ierr.NewError("negative late fee").
				WithHintf("Late fee policy returned %s", fee.StringFixed(2)).
				Mark(ierr.ErrConfiguration)
		}
		if fee.IsPositive() {
			req.LateFee = fee
			req.Lines = append(req.Lines, LineRequest{
				Description: fmt.Sprintf("Late fee after %d failed attempts", r.FailedAttempts),
				UnitPrice:   fee,
				Quantity:    decimal.NewFromInt(1),
				ServiceType: types.ServiceTypeOrdinary,
			})
		}
	}

	plan.Request = req
	return plan, nil
}
