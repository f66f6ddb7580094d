package memory

import (
	"context"

	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/types"
)

// ContractStore implements contract.Repository
type ContractStore struct {
	*Store[*contract.Contract]
}

func NewContractStore() *ContractStore {
	return &ContractStore{Store: NewStore("contract", copyContract)}
}

func copyContract(c *contract.Contract) *contract.Contract {
	cp := *c
	cp.Tiers = append([]contract.Tier(nil), c.Tiers...)
	cp.Schedule = append([]contract.ScheduleEntry(nil), c.Schedule...)
	if c.Escalation != nil {
		e := *c.Escalation
		cp.Escalation = &e
	}
	if c.Discount != nil {
		d := *c.Discount
		cp.Discount = &d
	}
	if len(cp.Tiers) == 0 {
		cp.Tiers = nil
	}
	if len(cp.Schedule) == 0 {
		cp.Schedule = nil
	}
	return &cp
}

func (s *ContractStore) Create(_ context.Context, c *contract.Contract) error {
	return s.Store.Create(c.ID, c)
}

func (s *ContractStore) Get(_ context.Context, companyID, id string) (*contract.Contract, error) {
	return s.Store.Get(id, func(c *contract.Contract) bool { return c.CompanyID == companyID })
}

func (s *ContractStore) List(_ context.Context, filter *contract.Filter) ([]*contract.Contract, error) {
	if filter == nil {
		filter = &contract.Filter{}
	}
	match := func(c *contract.Contract) bool {
		if c.CompanyID != filter.CompanyID {
			return false
		}
		if !filter.IncludeArchived && c.Status != types.StatusPublished {
			return false
		}
		return filter.ClientID == "" || c.ClientID == filter.ClientID
	}
	less := func(a, b *contract.Contract) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	return s.Store.List(match, less, filter.QueryFilter), nil
}

func (s *ContractStore) Update(_ context.Context, c *contract.Contract) error {
	return s.Store.Put(c.ID, c, func(stored *contract.Contract) error {
		if stored.CompanyID != c.CompanyID {
			return s.notFound(c.ID)
		}
		return nil
	})
}
