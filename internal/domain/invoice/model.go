package invoice

import (
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Invoice owns its line items. Subtotal, TotalTax, Amount, AmountPaid,
// Balance and InvoiceStatus are derived and only written by the calculators.
type Invoice struct {
	ID        string    `db:"id" json:"id"`
	ClientID  string    `db:"client_id" json:"client_id"`
	Currency  string    `db:"currency" json:"currency"`
	IssueDate time.Time `db:"issue_date" json:"issue_date"`
	DueDate   time.Time `db:"due_date" json:"due_date"`

	Discount   decimal.Decimal     `db:"discount" json:"discount"`
	Subtotal   decimal.Decimal     `db:"subtotal" json:"subtotal"`
	TotalTax   decimal.Decimal     `db:"total_tax" json:"total_tax"`
	Amount     decimal.Decimal     `db:"amount" json:"amount"`
	AmountPaid decimal.Decimal     `db:"amount_paid" json:"amount_paid"`
	Balance    decimal.Decimal     `db:"balance" json:"balance"`
	Status     types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`

	// tax profile applied to every taxable line
	Jurisdiction types.Jurisdiction  `db:"jurisdiction" json:"jurisdiction"`
	State        string              `db:"service_state" json:"service_state,omitempty"`
	County       string              `db:"service_county" json:"service_county,omitempty"`
	City         string              `db:"service_city" json:"service_city,omitempty"`
	IncludeUSF   bool                `db:"include_usf" json:"include_usf"`
	Exemptions   []types.TaxCategory `db:"-" json:"exemptions,omitempty"`

	ContractID         *string    `db:"contract_id" json:"contract_id,omitempty"`
	RecurringInvoiceID *string    `db:"recurring_invoice_id" json:"recurring_invoice_id,omitempty"`
	PeriodStart        *time.Time `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd          *time.Time `db:"period_end" json:"period_end,omitempty"`

	Notes    string         `db:"notes" json:"notes,omitempty"`
	Items    []*InvoiceItem `db:"-" json:"items"`
	Version  int            `db:"version" json:"version"`
	types.BaseModel
}

// InvoiceItem is one billable line. Subtotal and TaxAmount are derived.
type InvoiceItem struct {
	ID          string            `db:"id" json:"id"`
	InvoiceID   string            `db:"invoice_id" json:"invoice_id"`
	Description string            `db:"description" json:"description"`
	UnitPrice   decimal.Decimal   `db:"unit_price" json:"unit_price"`
	Quantity    decimal.Decimal   `db:"quantity" json:"quantity"`
	ServiceType types.ServiceType `db:"service_type" json:"service_type"`
	Subtotal    decimal.Decimal   `db:"subtotal" json:"subtotal"`
	TaxAmount   decimal.Decimal   `db:"tax_amount" json:"tax_amount"`
	Position    int               `db:"position" json:"position"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// TaxContext builds the tax engine context for a line of this invoice.
func (i *Invoice) TaxContext(serviceType types.ServiceType) tax.TaxContext {
	jurisdiction := i.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = types.JurisdictionNone
	}
	return tax.TaxContext{
		ServiceType: serviceType,
		ServiceAddress: tax.ServiceAddress{
			State:        i.State,
			County:       i.County,
			City:         i.City,
			Jurisdiction: jurisdiction,
		},
		Exemptions: i.Exemptions,
		IncludeUSF: i.IncludeUSF,
	}
}

// FindItem returns the item with the id.
func (i *Invoice) FindItem(itemID string) (*InvoiceItem, bool) {
	return lo.Find(i.Items, func(item *InvoiceItem) bool {
		return item.ID == itemID
	})
}

// RemoveItem drops the item with the id and reports whether it was present.
func (i *Invoice) RemoveItem(itemID string) bool {
	before := len(i.Items)
	i.Items = lo.Reject(i.Items, func(item *InvoiceItem, _ int) bool {
		return item.ID == itemID
	})
	return len(i.Items) != before
}

// ApplyTotals copies calculator output onto the invoice and its items.
func (i *Invoice) ApplyTotals(totals *Totals) {
	byID := lo.KeyBy(totals.Items, func(t ItemTotal) string { return t.ItemID })
	for _, item := range i.Items {
		if t, ok := byID[item.ID]; ok {
			item.Subtotal = t.Subtotal
			item.TaxAmount = t.TaxAmount
		}
	}
	i.Subtotal = totals.Subtotal
	i.TotalTax = totals.TotalTax
	i.Amount = totals.Amount
}

// ApplyPayments sets the paid amount, balance and derived status.
func (i *Invoice) ApplyPayments(paid, tolerance decimal.Decimal) {
	i.AmountPaid = types.Round2(paid)
	i.Balance = types.Round2(i.Amount.Sub(paid))
	i.Status = DeriveStatus(i.Amount, paid, tolerance)
}

func (i *Invoice) Validate() error {
	if i.ClientID == "" {
		return ierr.NewError("client id is required").
			WithHint("Every invoice belongs to a client").
			Mark(ierr.ErrValidation)
	}
	if i.Discount.IsNegative() {
		return ierr.NewError("negative discount").
			WithHint("Invoice discount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if !i.DueDate.IsZero() && i.DueDate.Before(i.IssueDate) {
		return ierr.NewError("due date before issue date").
			WithHint("Invoice due date must be on or after the issue date").
			Mark(ierr.ErrValidation)
	}
	for _, item := range i.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (item *InvoiceItem) Validate() error {
	if item.Quantity.IsNegative() {
		return ierr.NewError("negative quantity").
			WithHintf("Line '%s' has a negative quantity %s", item.Description, item.Quantity).
			Mark(ierr.ErrValidation)
	}
	if item.UnitPrice.IsNegative() {
		return ierr.NewError("negative unit price").
			WithHintf("Line '%s' has a negative unit price %s", item.Description, item.UnitPrice).
			Mark(ierr.ErrValidation)
	}
	if item.ServiceType != "" {
		if err := item.ServiceType.Validate(); err != nil {
			return err
		}
	}
	return nil
}
