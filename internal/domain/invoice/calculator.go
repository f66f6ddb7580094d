package invoice

import (
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// ItemTaxer returns the tax of one line given its rounded subtotal.
type ItemTaxer func(item *InvoiceItem, subtotal decimal.Decimal) (decimal.Decimal, error)

// NoTax is the taxer for invoices without a tax profile.
func NoTax(*InvoiceItem, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// ItemTotal is the computed subtotal and tax of one line.
type ItemTotal struct {
	ItemID    string          `json:"item_id"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

// Totals is the output of CalculateTotals.
type Totals struct {
	Items    []ItemTotal     `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	TotalTax decimal.Decimal `json:"total_tax"`
	Discount decimal.Decimal `json:"discount"`
	Amount   decimal.Decimal `json:"amount"`
}

// CalculateTotals derives every total from the current item set and discount.
// It keeps no state and does not touch the items, so recomputing after any
// mutation gives the same answer as computing from scratch. The amount is not
// clamped at zero; callers decide whether a negative grand total is valid.
func CalculateTotals(items []*InvoiceItem, discount decimal.Decimal, taxer ItemTaxer) (*Totals, error) {
	if taxer == nil {
		taxer = NoTax
	}

	totals := &Totals{
		Items:    make([]ItemTotal, 0, len(items)),
		Subtotal: decimal.Zero,
		TotalTax: decimal.Zero,
		Discount: types.Round2(discount),
	}

	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}

		subtotal := types.Multiply(item.UnitPrice, item.Quantity)
		taxAmount, err := taxer(item, subtotal)
		if err != nil {
			return nil, err
		}
		taxAmount = types.Round2(taxAmount)

		totals.Items = append(totals.Items, ItemTotal{
			ItemID:    item.ID,
			Subtotal:  subtotal,
			TaxAmount: taxAmount,
		})
		totals.Subtotal = totals.Subtotal.Add(subtotal)
		totals.TotalTax = totals.TotalTax.Add(taxAmount)
	}

	totals.Subtotal = types.Round2(totals.Subtotal)
	totals.TotalTax = types.Round2(totals.TotalTax)
	totals.Amount = totals.Subtotal.Add(totals.TotalTax).Sub(totals.Discount)
	return totals, nil
}

// DeriveStatus maps the paid amount against the invoice amount. Only the
// paid comparison uses the tolerance. Nothing paid is unpaid unless nothing
// is owed, including invoices whose discount exceeds subtotal plus tax.
func DeriveStatus(amount, paid, tolerance decimal.Decimal) types.InvoiceStatus {
	switch {
	case !paid.IsPositive() && !types.EqualWithinTolerance(amount, decimal.Zero, tolerance):
		return types.InvoiceStatusUnpaid
	case types.EqualWithinTolerance(paid, amount, tolerance):
		return types.InvoiceStatusPaid
	case paid.GreaterThan(amount):
		return types.InvoiceStatusOverpaid
	default:
		return types.InvoiceStatusPartiallyPaid
	}
}
