package recurring

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/types"
)

// Filter narrows recurring invoice listings.
type Filter struct {
	*types.QueryFilter
	CompanyID  string
	ClientID   string
	ContractID string
	Status     types.RecurringInvoiceStatus
}

// Repository defines the interface for recurring invoice persistence.
type Repository interface {
	Create(ctx context.Context, r *RecurringInvoice) error
	Get(ctx context.Context, companyID, id string) (*RecurringInvoice, error)
	List(ctx context.Context, filter *Filter) ([]*RecurringInvoice, error)

	// Update writes r when r.Version matches the stored version and bumps
	// r.Version; otherwise it returns ierr.ErrVersionConflict.
	Update(ctx context.Context, r *RecurringInvoice) error

	// ListDue returns active records of the company with next_billing_date on or before asOf.
	ListDue(ctx context.Context, companyID string, asOf time.Time) ([]*RecurringInvoice, error)

	// ListDueCompanies returns every company with at least one due record.
	ListDueCompanies(ctx context.Context, asOf time.Time) ([]string, error)
}
