package types

import (
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusCompleted,
		PaymentStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid payment status").
			WithHint("Please provide a valid payment status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentMethod is how the client paid.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodACH    PaymentMethod = "ach"
	PaymentMethodCheck  PaymentMethod = "check"
	PaymentMethodWire   PaymentMethod = "wire"
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCredit PaymentMethod = "credit"
)

func (m PaymentMethod) Validate() error {
	allowed := []PaymentMethod{
		PaymentMethodCard,
		PaymentMethodACH,
		PaymentMethodCheck,
		PaymentMethodWire,
		PaymentMethodCash,
		PaymentMethodCredit,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid payment method").
			WithHintf("Payment method '%s' is not supported", m).
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PaymentKind separates incoming payments from refunds.
type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "payment"
	PaymentKindRefund  PaymentKind = "refund"
)

// AllocationStrategy orders invoices when one payment is spread across many.
type AllocationStrategy string

const (
	// AllocationStrategyOldestFirst pays invoices by ascending due date.
	AllocationStrategyOldestFirst AllocationStrategy = "oldest_first"
	// AllocationStrategyExplicit pays invoices in the order given by the caller.
	AllocationStrategyExplicit AllocationStrategy = "explicit"
)

func (s AllocationStrategy) Validate() error {
	if s != AllocationStrategyOldestFirst && s != AllocationStrategyExplicit {
		return ierr.NewError("invalid allocation strategy").
			WithHintf("Allocation strategy '%s' is not supported", s).
			Mark(ierr.ErrValidation)
	}
	return nil
}
