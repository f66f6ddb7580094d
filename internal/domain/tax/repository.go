package tax

import (
	"context"

	"github.com/mspfin/billing-engine/internal/types"
)

// Repository defines the interface for tax rate persistence operations
type Repository interface {
	Create(ctx context.Context, rate *TaxRate) error
	Get(ctx context.Context, companyID, id string) (*TaxRate, error)
	List(ctx context.Context, companyID string, filter *types.QueryFilter) ([]*TaxRate, error)
	Delete(ctx context.Context, companyID, id string) error

	// ListByState returns every published row of the state; callers match
	// county and city rows against the address.
	ListByState(ctx context.Context, companyID, state string) ([]*TaxRate, error)
}
