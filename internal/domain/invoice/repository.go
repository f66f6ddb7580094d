package invoice

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/types"
)

// Filter narrows invoice listings.
type Filter struct {
	*types.QueryFilter
	CompanyID          string
	ClientID           string
	RecurringInvoiceID string
	Statuses           []types.InvoiceStatus
	// OutstandingOnly keeps invoices with a positive balance.
	OutstandingOnly bool
}

// Repository defines the interface for invoice persistence operations.
// Items are stored with their invoice.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, companyID, id string) (*Invoice, error)
	List(ctx context.Context, filter *Filter) ([]*Invoice, error)

	// Update persists the invoice and replaces its items when inv.Version
	// matches the stored version, then bumps inv.Version. A stale version
	// returns ierr.ErrVersionConflict.
	Update(ctx context.Context, inv *Invoice) error

	// GetForPeriod returns the invoice a recurring record generated for the
	// cycle starting at periodStart.
	GetForPeriod(ctx context.Context, companyID, recurringInvoiceID string, periodStart time.Time) (*Invoice, error)
}
