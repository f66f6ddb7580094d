package memory

import (
	"context"
	"strings"

	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/types"
)

// TaxRateStore implements tax.Repository
type TaxRateStore struct {
	*Store[*tax.TaxRate]
}

func NewTaxRateStore() *TaxRateStore {
	return &TaxRateStore{Store: NewStore("tax rate", copyTaxRate)}
}

func copyTaxRate(r *tax.TaxRate) *tax.TaxRate {
	c := *r
	c.ServiceTypes = append([]types.ServiceType(nil), r.ServiceTypes...)
	return &c
}

func (s *TaxRateStore) visible(companyID string) FilterFunc[*tax.TaxRate] {
	return func(r *tax.TaxRate) bool {
		return r.CompanyID == companyID && r.Status == types.StatusPublished
	}
}

func (s *TaxRateStore) Create(_ context.Context, rate *tax.TaxRate) error {
	return s.Store.Create(rate.ID, rate)
}

func (s *TaxRateStore) Get(_ context.Context, companyID, id string) (*tax.TaxRate, error) {
	return s.Store.Get(id, s.visible(companyID))
}

func (s *TaxRateStore) List(_ context.Context, companyID string, filter *types.QueryFilter) ([]*tax.TaxRate, error) {
	less := func(a, b *tax.TaxRate) bool {
		if a.State != b.State {
			return a.State < b.State
		}
		if a.County != b.County {
			return a.County < b.County
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.ID < b.ID
	}
	return s.Store.List(s.visible(companyID), less, filter), nil
}

// Delete archives the row.
func (s *TaxRateStore) Delete(ctx context.Context, companyID, id string) error {
	rate, err := s.Get(ctx, companyID, id)
	if err != nil {
		return err
	}
	rate.Status = types.StatusArchived
	return s.Store.Put(id, rate, nil)
}

func (s *TaxRateStore) ListByState(_ context.Context, companyID, state string) ([]*tax.TaxRate, error) {
	visible := s.visible(companyID)
	rates := s.Store.List(func(r *tax.TaxRate) bool {
		return visible(r) && strings.EqualFold(r.State, state)
	}, nil, nil)
	tax.SortRates(rates)
	return rates, nil
}
