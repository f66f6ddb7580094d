package invoice

import (
	"fmt"
	"math/rand"
	"testing"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id, price, qty string, st types.ServiceType) *InvoiceItem {
	return &InvoiceItem{
		ID:          id,
		Description: id,
		UnitPrice:   decimal.RequireFromString(price),
		Quantity:    decimal.RequireFromString(qty),
		ServiceType: st,
	}
}

// flat 10% on voip lines, for tests that do not need the tax engine
func tenPercentVoIP(it *InvoiceItem, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if it.ServiceType != types.ServiceTypeVoIP {
		return decimal.Zero, nil
	}
	return types.Percentage(subtotal, decimal.NewFromInt(10)), nil
}

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []*InvoiceItem
		discount     string
		wantSubtotal string
		wantTax      string
		wantAmount   string
	}{
		{
			name:         "empty",
			discount:     "0",
			wantSubtotal: "0.00",
			wantTax:      "0.00",
			wantAmount:   "0.00",
		},
		{
			name: "fractional hours and voip",
			items: []*InvoiceItem{
				item("labor", "125.00", "2.5", types.ServiceTypeOrdinary),
				item("seats", "24.99", "10", types.ServiceTypeVoIP),
			},
			discount:     "50.00",
			wantSubtotal: "562.40",
			wantTax:      "24.99",
			wantAmount:   "537.39",
		},
		{
			name: "line rounds once",
			items: []*InvoiceItem{
				item("a", "0.125", "3", types.ServiceTypeOrdinary),
				item("b", "0.125", "3", types.ServiceTypeOrdinary),
			},
			discount:     "0",
			wantSubtotal: "0.76",
			wantTax:      "0.00",
			wantAmount:   "0.76",
		},
		{
			name: "discount larger than total is reported not clamped",
			items: []*InvoiceItem{
				item("a", "10.00", "1", types.ServiceTypeOrdinary),
			},
			discount:     "25.00",
			wantSubtotal: "10.00",
			wantTax:      "0.00",
			wantAmount:   "-15.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := CalculateTotals(tt.items, decimal.RequireFromString(tt.discount), tenPercentVoIP)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubtotal, totals.Subtotal.StringFixed(2))
			assert.Equal(t, tt.wantTax, totals.TotalTax.StringFixed(2))
			assert.Equal(t, tt.wantAmount, totals.Amount.StringFixed(2))
		})
	}
}

func TestCalculateTotals_RejectsNegativeQuantity(t *testing.T) {
	_, err := CalculateTotals([]*InvoiceItem{item("a", "10", "-1", types.ServiceTypeOrdinary)}, decimal.Zero, nil)
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestCalculateTotals_DoesNotMutateItems(t *testing.T) {
	items := []*InvoiceItem{item("a", "10", "3", types.ServiceTypeVoIP)}
	_, err := CalculateTotals(items, decimal.Zero, tenPercentVoIP)
	require.NoError(t, err)
	assert.True(t, items[0].Subtotal.IsZero())
	assert.True(t, items[0].TaxAmount.IsZero())
}

// Random add/update/remove/discount sequences keep the invoice equal to a
// from-scratch computation over its current items.
func TestCalculateTotals_ConsistencyUnderMutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	serviceTypes := []types.ServiceType{types.ServiceTypeOrdinary, types.ServiceTypeVoIP}

	inv := &Invoice{ID: "inv_test", ClientID: "client_1"}
	nextID := 0

	for step := 0; step < 500; step++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(inv.Items) == 0:
			nextID++
			inv.Items = append(inv.Items, &InvoiceItem{
				ID:          fmt.Sprintf("item_%d", nextID),
				UnitPrice:   decimal.New(rng.Int63n(100000), -3),
				Quantity:    decimal.New(rng.Int63n(400), -1),
				ServiceType: serviceTypes[rng.Intn(len(serviceTypes))],
			})
		case op == 1:
			it := inv.Items[rng.Intn(len(inv.Items))]
			it.UnitPrice = decimal.New(rng.Int63n(100000), -3)
			it.Quantity = decimal.New(rng.Int63n(400), -1)
		case op == 2:
			inv.RemoveItem(inv.Items[rng.Intn(len(inv.Items))].ID)
		default:
			inv.Discount = decimal.New(rng.Int63n(5000), -2)
		}

		totals, err := CalculateTotals(inv.Items, inv.Discount, tenPercentVoIP)
		require.NoError(t, err)
		inv.ApplyTotals(totals)

		subtotal, tax := decimal.Zero, decimal.Zero
		for _, it := range inv.Items {
			assert.True(t, it.Subtotal.Equal(types.Multiply(it.UnitPrice, it.Quantity)))
			subtotal = subtotal.Add(it.Subtotal)
			tax = tax.Add(it.TaxAmount)
		}
		require.True(t, inv.Subtotal.Equal(subtotal), "step %d subtotal", step)
		require.True(t, inv.TotalTax.Equal(tax), "step %d tax", step)
		require.True(t, inv.Amount.Equal(inv.Subtotal.Add(inv.TotalTax).Sub(inv.Discount)), "step %d amount", step)
		for _, d := range []decimal.Decimal{inv.Subtotal, inv.TotalTax, inv.Amount} {
			require.True(t, d.Equal(d.Round(2)))
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	tol := types.DefaultTolerance
	amount := decimal.RequireFromString("100.00")
	tests := []struct {
		paid string
		want types.InvoiceStatus
	}{
		{"0", types.InvoiceStatusUnpaid},
		{"40.00", types.InvoiceStatusPartiallyPaid},
		{"99.98", types.InvoiceStatusPartiallyPaid},
		{"99.99", types.InvoiceStatusPaid},
		{"100.00", types.InvoiceStatusPaid},
		{"100.01", types.InvoiceStatusPaid},
		{"100.02", types.InvoiceStatusOverpaid},
	}
	for _, tt := range tests {
		t.Run(tt.paid, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(amount, decimal.RequireFromString(tt.paid), tol))
		})
	}
}

func TestDeriveStatus_NothingPaid(t *testing.T) {
	tol := types.DefaultTolerance
	tests := []struct {
		name   string
		amount string
		want   types.InvoiceStatus
	}{
		{"positive amount", "100.00", types.InvoiceStatusUnpaid},
		{"discount exceeds total", "-5.00", types.InvoiceStatusUnpaid},
		{"nothing owed", "0.00", types.InvoiceStatusPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(decimal.RequireFromString(tt.amount), decimal.Zero, tol))
		})
	}

	// a refund that nets payments below zero still counts as nothing paid
	assert.Equal(t, types.InvoiceStatusUnpaid,
		DeriveStatus(decimal.RequireFromString("-5.00"), decimal.RequireFromString("-1.00"), tol))
}

func TestInvoice_ApplyPayments(t *testing.T) {
	inv := &Invoice{Amount: decimal.RequireFromString("250.00")}

	inv.ApplyPayments(decimal.RequireFromString("250.00"), types.DefaultTolerance)
	assert.Equal(t, types.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, "0.00", inv.Balance.StringFixed(2))

	inv.ApplyPayments(decimal.RequireFromString("300.00"), types.DefaultTolerance)
	assert.Equal(t, types.InvoiceStatusOverpaid, inv.Status)
	assert.True(t, inv.Balance.IsNegative())
}
