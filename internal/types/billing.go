package types

import (
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// BillingModel selects how a contract's recurring charge is computed.
type BillingModel string

const (
	BillingModelFixedPrice BillingModel = "fixed_price"
	BillingModelAssetBased BillingModel = "asset_based"
	BillingModelUserBased  BillingModel = "user_based"
	BillingModelHybrid     BillingModel = "hybrid"
	BillingModelTiered     BillingModel = "tiered"
	BillingModelUsageBased BillingModel = "usage_based"
	BillingModelScheduled  BillingModel = "scheduled"
)

var BillingModels = []BillingModel{
	BillingModelFixedPrice,
	BillingModelAssetBased,
	BillingModelUserBased,
	BillingModelHybrid,
	BillingModelTiered,
	BillingModelUsageBased,
	BillingModelScheduled,
}

func (m BillingModel) String() string {
	return string(m)
}

// Validate reports an unknown billing model as a configuration error.
func (m BillingModel) Validate() error {
	if !lo.Contains(BillingModels, m) {
		return ierr.NewError("unknown billing model").
			WithHintf("Contract billing model '%s' is not supported", m).
			WithReportableDetails(map[string]any{
				"allowed": BillingModels,
			}).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// BillingFrequency is the cadence of a contract or recurring invoice.
type BillingFrequency string

const (
	BillingFrequencyMonthly   BillingFrequency = "monthly"
	BillingFrequencyQuarterly BillingFrequency = "quarterly"
	BillingFrequencyAnnually  BillingFrequency = "annually"
	BillingFrequencyCustom    BillingFrequency = "custom"
)

func (f BillingFrequency) String() string {
	return string(f)
}

// Months returns the number of months in one period. Custom frequencies
// carry their own month count.
func (f BillingFrequency) Months(customMonths int) (int, error) {
	switch f {
	case BillingFrequencyMonthly:
		return 1, nil
	case BillingFrequencyQuarterly:
		return 3, nil
	case BillingFrequencyAnnually:
		return 12, nil
	case BillingFrequencyCustom:
		if customMonths <= 0 {
			return 0, ierr.NewError("custom frequency without month count").
				WithHint("Custom billing frequency requires custom_months greater than zero").
				Mark(ierr.ErrConfiguration)
		}
		return customMonths, nil
	default:
		return 0, ierr.NewError("unknown billing frequency").
			WithHintf("Billing frequency '%s' is not supported", f).
			Mark(ierr.ErrConfiguration)
	}
}

// DayCountConvention decides how many days a billing period has for proration.
type DayCountConvention string

const (
	// DayCountActual uses the calendar days of the billing cycle (28-31 for a month).
	DayCountActual DayCountConvention = "actual"
	// DayCountThirty treats every month as 30 days.
	DayCountThirty DayCountConvention = "thirty"
)

func (c DayCountConvention) Validate() error {
	if c != DayCountActual && c != DayCountThirty {
		return ierr.NewError("unknown day count convention").
			WithHintf("Proration day count convention '%s' is not supported, use 'actual' or 'thirty'", c).
			Mark(ierr.ErrConfiguration)
	}
	return nil
}

// EscalationFrequency is the period over which an escalation rate compounds.
type EscalationFrequency string

const (
	EscalationFrequencyAnnually  EscalationFrequency = "annually"
	EscalationFrequencyQuarterly EscalationFrequency = "quarterly"
	EscalationFrequencyMonthly   EscalationFrequency = "monthly"
)

func (f EscalationFrequency) Months() (int, error) {
	switch f {
	case EscalationFrequencyAnnually:
		return 12, nil
	case EscalationFrequencyQuarterly:
		return 3, nil
	case EscalationFrequencyMonthly:
		return 1, nil
	default:
		return 0, ierr.NewError("unknown escalation frequency").
			WithHintf("Escalation frequency '%s' is not supported", f).
			Mark(ierr.ErrConfiguration)
	}
}

// DiscountType is the shape of a contract discount rule.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFlat       DiscountType = "flat"
)

// RecurringInvoiceStatus is the scheduling state of a recurring invoice.
type RecurringInvoiceStatus string

const (
	RecurringInvoiceStatusActive    RecurringInvoiceStatus = "active"
	RecurringInvoiceStatusCancelled RecurringInvoiceStatus = "cancelled"
)
