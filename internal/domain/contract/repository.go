package contract

import (
	"context"

	"github.com/mspfin/billing-engine/internal/types"
)

// Filter narrows contract listings.
type Filter struct {
	*types.QueryFilter
	CompanyID       string
	ClientID        string
	IncludeArchived bool
}

// Repository defines the interface for contract persistence operations.
// Contracts are archived, never deleted.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	Get(ctx context.Context, companyID, id string) (*Contract, error)
	List(ctx context.Context, filter *Filter) ([]*Contract, error)
	Update(ctx context.Context, c *Contract) error
}
