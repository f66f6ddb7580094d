package types

import (
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// InvoiceStatus is derived from the invoice amount and the completed payments
// against it. It is never set directly.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverpaid      InvoiceStatus = "overpaid"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

// ServiceType tags a line item for the tax engine.
type ServiceType string

const (
	ServiceTypeOrdinary ServiceType = "ordinary"
	ServiceTypeVoIP     ServiceType = "voip"
	ServiceTypeTelecom  ServiceType = "telecom"
)

func (s ServiceType) String() string {
	return string(s)
}

// Taxable reports whether line items of this service type go through the tax engine.
func (s ServiceType) Taxable() bool {
	return s == ServiceTypeVoIP || s == ServiceTypeTelecom
}

func (s ServiceType) Validate() error {
	allowed := []ServiceType{
		ServiceTypeOrdinary,
		ServiceTypeVoIP,
		ServiceTypeTelecom,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid service type").
			WithHintf("Unknown service type '%s'", s).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
