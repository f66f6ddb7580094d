package types

import (
	"github.com/shopspring/decimal"
)

// MoneyPrecision is the number of decimal places every stored amount carries.
const MoneyPrecision int32 = 2

var hundred = decimal.NewFromInt(100)

// DefaultTolerance is the one cent epsilon used when deriving invoice status.
var DefaultTolerance = decimal.New(1, -MoneyPrecision)

// Round2 rounds half away from zero to two decimal places.
// decimal.Round already rounds half away from zero (2.345 -> 2.35, -2.345 -> -2.35).
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPrecision)
}

// Multiply returns round2(price x quantity). The product is computed exactly
// and rounded once.
func Multiply(price, quantity decimal.Decimal) decimal.Decimal {
	return Round2(price.Mul(quantity))
}

// Percentage returns round2(amount x rate / 100).
func Percentage(amount, rate decimal.Decimal) decimal.Decimal {
	return Round2(amount.Mul(rate).Div(hundred))
}

// EqualWithinTolerance reports whether |a-b| <= tolerance. Only status
// derivation compares amounts this way; everything else is exact.
func EqualWithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// SumDecimals adds amounts exactly.
func SumDecimals(values ...decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MoneyPrecision)
}
