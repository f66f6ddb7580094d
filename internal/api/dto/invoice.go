package dto

import (
	"strings"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/invoice"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest represents the request to create an invoice
type CreateInvoiceRequest struct {
	// client_id is the client being billed (required)
	ClientID string `json:"client_id" validate:"required"`

	// currency defaults to the billing currency when empty
	Currency string `json:"currency,omitempty"`

	// issue_date defaults to today
	IssueDate *time.Time `json:"issue_date,omitempty"`

	// due_date defaults to the issue date
	DueDate *time.Time `json:"due_date,omitempty"`

	// discount is a flat amount taken off after tax
	Discount decimal.Decimal `json:"discount"`

	TaxProfile TaxProfile `json:"tax_profile"`

	ContractID *string `json:"contract_id,omitempty"`
	Notes      string  `json:"notes,omitempty" validate:"omitempty,max=2000"`

	Items []CreateInvoiceItemRequest `json:"items,omitempty" validate:"omitempty,dive"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := validateCurrency(r.Currency); err != nil {
		return err
	}
	if r.Discount.IsNegative() {
		return ierr.NewError("negative discount").
			WithHint("Invoice discount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if r.IssueDate != nil && r.DueDate != nil && r.DueDate.Before(*r.IssueDate) {
		return ierr.NewError("due date before issue date").
			WithHint("Invoice due date must be on or after the issue date").
			Mark(ierr.ErrValidation)
	}
	if err := r.TaxProfile.Validate(); err != nil {
		return err
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToInvoice builds the invoice record; totals are left for the calculator.
func (r *CreateInvoiceRequest) ToInvoice(cc types.CompanyContext, now time.Time, defaultCurrency string) *invoice.Invoice {
	issue := types.DateOnly(now)
	if r.IssueDate != nil {
		issue = types.DateOnly(*r.IssueDate)
	}
	due := issue
	if r.DueDate != nil {
		due = types.DateOnly(*r.DueDate)
	}
	currency := strings.ToLower(lo.Ternary(r.Currency == "", defaultCurrency, r.Currency))

	inv := &invoice.Invoice{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		ClientID:     r.ClientID,
		Currency:     currency,
		IssueDate:    issue,
		DueDate:      due,
		Discount:     r.Discount,
		Status:       types.InvoiceStatusUnpaid,
		Jurisdiction: r.TaxProfile.GetJurisdiction(),
		State:        r.TaxProfile.State,
		County:       r.TaxProfile.County,
		City:         r.TaxProfile.City,
		IncludeUSF:   r.TaxProfile.IncludeUSF,
		Exemptions:   r.TaxProfile.Exemptions,
		ContractID:   r.ContractID,
		Notes:        r.Notes,
		Items:        make([]*invoice.InvoiceItem, 0, len(r.Items)),
		Version:      1,
		BaseModel:    types.GetDefaultBaseModel(cc, now),
	}
	for i := range r.Items {
		item := r.Items[i].ToInvoiceItem(now)
		item.InvoiceID = inv.ID
		item.Position = i
		inv.Items = append(inv.Items, item)
	}
	return inv
}

// CreateInvoiceItemRequest is one line on a new or existing invoice
type CreateInvoiceItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	// quantity may be fractional, e.g. 2.5 hours
	Quantity    decimal.Decimal   `json:"quantity"`
	ServiceType types.ServiceType `json:"service_type,omitempty"`
}

func (r CreateInvoiceItemRequest) Validate() error {
	return r.ToInvoiceItem(time.Time{}).Validate()
}

func (r CreateInvoiceItemRequest) ToInvoiceItem(now time.Time) *invoice.InvoiceItem {
	return &invoice.InvoiceItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		Description: r.Description,
		UnitPrice:   r.UnitPrice,
		Quantity:    r.Quantity,
		ServiceType: lo.Ternary(r.ServiceType == "", types.ServiceTypeOrdinary, r.ServiceType),
		CreatedAt:   now.UTC(),
	}
}

// UpdateInvoiceItemRequest changes an existing line. Only provided fields are applied.
type UpdateInvoiceItemRequest struct {
	Description *string            `json:"description,omitempty"`
	UnitPrice   *decimal.Decimal   `json:"unit_price,omitempty"`
	Quantity    *decimal.Decimal   `json:"quantity,omitempty"`
	ServiceType *types.ServiceType `json:"service_type,omitempty"`
}

func (r *UpdateInvoiceItemRequest) Validate() error {
	if r.Description == nil && r.UnitPrice == nil && r.Quantity == nil && r.ServiceType == nil {
		return ierr.NewError("nothing to update").
			WithHint("Provide at least one of description, unit_price, quantity or service_type").
			Mark(ierr.ErrValidation)
	}
	if r.Quantity != nil && r.Quantity.IsNegative() {
		return ierr.NewError("negative quantity").
			WithHintf("Quantity cannot be negative, got %s", r.Quantity).
			Mark(ierr.ErrValidation)
	}
	if r.UnitPrice != nil && r.UnitPrice.IsNegative() {
		return ierr.NewError("negative unit price").
			WithHintf("Unit price cannot be negative, got %s", r.UnitPrice).
			Mark(ierr.ErrValidation)
	}
	if r.ServiceType != nil {
		return r.ServiceType.Validate()
	}
	return nil
}

// Apply copies the provided fields onto item.
func (r *UpdateInvoiceItemRequest) Apply(item *invoice.InvoiceItem) {
	if r.Description != nil {
		item.Description = *r.Description
	}
	if r.UnitPrice != nil {
		item.UnitPrice = *r.UnitPrice
	}
	if r.Quantity != nil {
		item.Quantity = *r.Quantity
	}
	if r.ServiceType != nil {
		item.ServiceType = *r.ServiceType
	}
}

// SetDiscountRequest replaces the flat invoice discount
type SetDiscountRequest struct {
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
}

func (r *SetDiscountRequest) Validate() error {
	if r.Discount.IsNegative() {
		return ierr.NewError("negative discount").
			WithHint("Invoice discount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	types.QueryFilter
	ClientID           string                `form:"client_id" json:"client_id,omitempty"`
	RecurringInvoiceID string                `form:"recurring_invoice_id" json:"recurring_invoice_id,omitempty"`
	Statuses           []types.InvoiceStatus `form:"status" json:"status,omitempty"`
	OutstandingOnly    bool                  `form:"outstanding_only" json:"outstanding_only,omitempty"`
}

func (f *InvoiceFilter) Validate() error {
	return validator.ValidateRequest(f)
}

func (f *InvoiceFilter) ToFilter(companyID string) *invoice.Filter {
	qf := f.QueryFilter
	return &invoice.Filter{
		QueryFilter:        &qf,
		CompanyID:          companyID,
		ClientID:           f.ClientID,
		RecurringInvoiceID: f.RecurringInvoiceID,
		Statuses:           f.Statuses,
		OutstandingOnly:    f.OutstandingOnly,
	}
}

// InvoiceResponse represents the response for invoice operations
type InvoiceResponse struct {
	*invoice.Invoice
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{Invoice: inv}
}

type ListInvoicesResponse struct {
	Items      []*InvoiceResponse  `json:"items"`
	Pagination *PaginationResponse `json:"pagination,omitempty"`
}

// InvoiceTotalsRequest computes totals without persisting anything
type InvoiceTotalsRequest struct {
	Items      []CreateInvoiceItemRequest `json:"items" validate:"dive"`
	Discount   decimal.Decimal            `json:"discount"`
	TaxProfile TaxProfile                 `json:"tax_profile"`
}

func (r *InvoiceTotalsRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	for _, item := range r.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return r.TaxProfile.Validate()
}

// ToInvoice wraps the lines in a transient invoice so the calculator can tax them.
func (r *InvoiceTotalsRequest) ToInvoice() *invoice.Invoice {
	inv := &invoice.Invoice{
		Discount:     r.Discount,
		Jurisdiction: r.TaxProfile.GetJurisdiction(),
		State:        r.TaxProfile.State,
		County:       r.TaxProfile.County,
		City:         r.TaxProfile.City,
		IncludeUSF:   r.TaxProfile.IncludeUSF,
		Exemptions:   r.TaxProfile.Exemptions,
	}
	for i := range r.Items {
		item := r.Items[i].ToInvoiceItem(time.Time{})
		item.Position = i
		inv.Items = append(inv.Items, item)
	}
	return inv
}

type InvoiceTotalsResponse struct {
	*invoice.Totals
}
