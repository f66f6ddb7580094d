package payment

import (
	"sort"
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Candidate is an invoice that may receive part of a payment.
type Candidate struct {
	InvoiceID string
	IssueDate time.Time
	DueDate   time.Time
	Balance   decimal.Decimal
}

// AllocationLine is the planned share of one invoice.
type AllocationLine struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// AllocationPlan is the result of spreading a payment. The allocations plus
// Credit always equal the payment amount.
type AllocationPlan struct {
	Lines          []AllocationLine `json:"lines"`
	TotalAllocated decimal.Decimal  `json:"total_allocated"`
	Credit         decimal.Decimal  `json:"credit"`
}

// Allocate spreads amount over the candidates, fully settling each invoice's
// outstanding balance before moving on. Whatever is left after the last
// invoice becomes client credit. Invoices with no positive balance are skipped.
func Allocate(amount decimal.Decimal, candidates []Candidate, strategy types.AllocationStrategy) (*AllocationPlan, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ierr.NewError("allocation amount must be positive").
			WithHintf("Cannot allocate %s", amount.StringFixed(2)).
			Mark(ierr.ErrValidation)
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	if strategy == types.AllocationStrategyOldestFirst {
		sort.SliceStable(ordered, func(i, j int) bool {
			if !ordered[i].DueDate.Equal(ordered[j].DueDate) {
				return ordered[i].DueDate.Before(ordered[j].DueDate)
			}
			if !ordered[i].IssueDate.Equal(ordered[j].IssueDate) {
				return ordered[i].IssueDate.Before(ordered[j].IssueDate)
			}
			return ordered[i].InvoiceID < ordered[j].InvoiceID
		})
	}

	plan := &AllocationPlan{
		Lines:          []AllocationLine{},
		TotalAllocated: decimal.Zero,
	}
	remaining := amount

	for _, c := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !c.Balance.IsPositive() {
			continue
		}
		share := decimal.Min(remaining, c.Balance)
		plan.Lines = append(plan.Lines, AllocationLine{
			InvoiceID:     c.InvoiceID,
			Amount:        share,
			BalanceBefore: c.Balance,
			BalanceAfter:  c.Balance.Sub(share),
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(share)
		remaining = remaining.Sub(share)
	}
	plan.Credit = remaining

	if !plan.TotalAllocated.Add(plan.Credit).Equal(amount) {
		return nil, ierr.NewError("allocation sum mismatch").
			WithHintf("Allocated %s plus credit %s does not equal payment %s",
				plan.TotalAllocated.StringFixed(2), plan.Credit.StringFixed(2), amount.StringFixed(2)).
			Mark(ierr.ErrSystem)
	}
	return plan, nil
}

// RefundLine is the planned reversal against one invoice.
type RefundLine struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// RefundPlan reverses a refund across the invoices the original payment
// settled, latest allocation first, and takes the rest out of client credit.
type RefundPlan struct {
	Lines  []RefundLine    `json:"lines"`
	Credit decimal.Decimal `json:"credit"`
}

// PlanRefund decides where refund money comes from. allocations are every
// allocation of the original payment, including earlier negative reversals.
func PlanRefund(amount decimal.Decimal, allocations []*Allocation) *RefundPlan {
	net := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	sorted := make([]*Allocation, len(allocations))
	copy(sorted, allocations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	for _, a := range sorted {
		if _, seen := net[a.InvoiceID]; !seen && a.Amount.IsPositive() {
			order = append(order, a.InvoiceID)
		}
		net[a.InvoiceID] = net[a.InvoiceID].Add(a.Amount)
	}

	plan := &RefundPlan{Lines: []RefundLine{}}
	remaining := amount
	for i := len(order) - 1; i >= 0 && remaining.IsPositive(); i-- {
		available := net[order[i]]
		if !available.IsPositive() {
			continue
		}
		share := decimal.Min(remaining, available)
		plan.Lines = append(plan.Lines, RefundLine{InvoiceID: order[i], Amount: share})
		remaining = remaining.Sub(share)
	}
	plan.Credit = remaining
	return plan
}
