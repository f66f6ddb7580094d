package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType names the aggregate an audit entry is about.
type EntityType string

const (
	EntityTypeInvoice          EntityType = "invoice"
	EntityTypeContract         EntityType = "contract"
	EntityTypeRecurringInvoice EntityType = "recurring_invoice"
	EntityTypePayment          EntityType = "payment"
)

// Action is the financial mutation recorded.
type Action string

const (
	ActionInvoiceCreated      Action = "invoice.created"
	ActionInvoiceItemAdded    Action = "invoice.item_added"
	ActionInvoiceItemUpdated  Action = "invoice.item_updated"
	ActionInvoiceItemRemoved  Action = "invoice.item_removed"
	ActionInvoiceDiscountSet  Action = "invoice.discount_set"
	ActionInvoiceRecalculated Action = "invoice.recalculated"
	ActionContractCreated     Action = "contract.created"
	ActionContractUpdated     Action = "contract.updated"
	ActionContractArchived    Action = "contract.archived"
	ActionRecurringCreated    Action = "recurring.created"
	ActionRecurringAdvanced   Action = "recurring.advanced"
	ActionRecurringFailed     Action = "recurring.failed"
	ActionRecurringCancelled  Action = "recurring.cancelled"
	ActionPaymentApplied      Action = "payment.applied"
	ActionPaymentAllocated    Action = "payment.allocated"
	ActionPaymentRefunded     Action = "payment.refunded"
)

// Entry carries what the external audit log needs about one mutation: who,
// what, the amount before and after, and why.
type Entry struct {
	ID         string           `json:"id"`
	CompanyID  string           `json:"company_id"`
	Actor      string           `json:"actor"`
	RequestID  string           `json:"request_id,omitempty"`
	EntityType EntityType       `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Action     Action           `json:"action"`
	OldAmount  *decimal.Decimal `json:"old_amount,omitempty"`
	NewAmount  *decimal.Decimal `json:"new_amount,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
