package recurring

import (
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// LateFeePolicy computes the fee added, as its own line, to a cycle billed
// after failed attempts. A policy never returns a negative fee.
type LateFeePolicy interface {
	Fee(amount decimal.Decimal, failedAttempts int) decimal.Decimal
}

// NewLateFeePolicy builds the policy for the configured type. Unknown types
// and negative figures fall back to no fee.
func NewLateFeePolicy(feeType types.LateFeeType, amount, rate decimal.Decimal, afterAttempts int) LateFeePolicy {
	if afterAttempts < 1 {
		afterAttempts = 1
	}
	switch feeType {
	case types.LateFeeTypeFlat:
		if amount.IsPositive() {
			return FlatLateFee{Amount: amount, AfterAttempts: afterAttempts}
		}
	case types.LateFeeTypePercentage:
		if rate.IsPositive() {
			return PercentageLateFee{Rate: rate, AfterAttempts: afterAttempts}
		}
	}
	return NoLateFee{}
}

type NoLateFee struct{}

func (NoLateFee) Fee(decimal.Decimal, int) decimal.Decimal {
	return decimal.Zero
}

// FlatLateFee charges Amount once AfterAttempts failures have piled up.
type FlatLateFee struct {
	Amount        decimal.Decimal
	AfterAttempts int
}

func (p FlatLateFee) Fee(_ decimal.Decimal, failedAttempts int) decimal.Decimal {
	if failedAttempts < p.AfterAttempts || p.Amount.IsNegative() {
		return decimal.Zero
	}
	return types.Round2(p.Amount)
}

// PercentageLateFee charges Rate percent of the cycle amount.
type PercentageLateFee struct {
	Rate          decimal.Decimal
	AfterAttempts int
}

func (p PercentageLateFee) Fee(amount decimal.Decimal, failedAttempts int) decimal.Decimal {
	if failedAttempts < p.AfterAttempts || !amount.IsPositive() || p.Rate.IsNegative() {
		return decimal.Zero
	}
	return types.Percentage(amount, p.Rate)
}
