package tax

import (
	"sort"
	"strings"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// TaxRate is one state, county or city row of a company's rate table.
type TaxRate struct {
	ID           string              `db:"id" json:"id"`
	Name         string              `db:"name" json:"name"`
	Type         types.TaxCategory   `db:"type" json:"type"`
	State        string              `db:"state" json:"state"`
	County       string              `db:"county" json:"county,omitempty"`
	City         string              `db:"city" json:"city,omitempty"`
	Rate         decimal.Decimal     `db:"rate" json:"rate"`
	ServiceTypes []types.ServiceType `db:"-" json:"service_types,omitempty"`
	types.BaseModel
}

// AppliesTo reports whether the row taxes the service type. Rows without an
// explicit list tax every telecom service.
func (r *TaxRate) AppliesTo(serviceType types.ServiceType) bool {
	if len(r.ServiceTypes) == 0 {
		return serviceType.Taxable()
	}
	return lo.Contains(r.ServiceTypes, serviceType)
}

// Matches reports whether the row covers the address.
func (r *TaxRate) Matches(addr ServiceAddress) bool {
	if !strings.EqualFold(r.State, addr.State) {
		return false
	}
	switch r.Type {
	case types.TaxCategoryState:
		return true
	case types.TaxCategoryCounty:
		return addr.County != "" && strings.EqualFold(r.County, addr.County)
	case types.TaxCategoryCity:
		if addr.City == "" || !strings.EqualFold(r.City, addr.City) {
			return false
		}
		return r.County == "" || strings.EqualFold(r.County, addr.County)
	default:
		return false
	}
}

func (r *TaxRate) Validate() error {
	if !r.Type.IsLocal() {
		return ierr.NewError("invalid tax rate type").
			WithHintf("Tax rate type must be state, county or city, got '%s'", r.Type).
			Mark(ierr.ErrValidation)
	}
	if r.State == "" {
		return ierr.NewError("tax rate state is required").
			WithHint("Every tax rate row needs a state").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.TaxCategoryCounty && r.County == "" {
		return ierr.NewError("county tax rate without county").
			WithHint("County tax rate rows need a county").
			Mark(ierr.ErrValidation)
	}
	if r.Type == types.TaxCategoryCity && r.City == "" {
		return ierr.NewError("city tax rate without city").
			WithHint("City tax rate rows need a city").
			Mark(ierr.ErrValidation)
	}
	if r.Rate.IsNegative() || r.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return ierr.NewError("tax rate out of range").
			WithHintf("Tax rate must be between 0 and 100 percent, got %s", r.Rate).
			Mark(ierr.ErrValidation)
	}
	for _, st := range r.ServiceTypes {
		if err := st.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortRates orders rows by type, state, county, city then id so that two
// lookups over the same table always produce the same breakdown.
func SortRates(rates []*TaxRate) {
	sort.SliceStable(rates, func(i, j int) bool {
		a, b := rates[i], rates[j]
		if a.Type != b.Type {
			return types.TaxCategoryOrder[a.Type] < types.TaxCategoryOrder[b.Type]
		}
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
	})
}

// ServiceAddress is where a service is delivered, for tax purposes.
type ServiceAddress struct {
	State        string             `json:"state"`
	County       string             `json:"county,omitempty"`
	City         string             `json:"city,omitempty"`
	Jurisdiction types.Jurisdiction `json:"jurisdiction"`
}

// TaxContext is everything besides the amount that decides the tax.
type TaxContext struct {
	ServiceType    types.ServiceType   `json:"service_type"`
	ServiceAddress ServiceAddress      `json:"service_address"`
	Exemptions     []types.TaxCategory `json:"exemptions,omitempty"`
	IncludeUSF     bool                `json:"include_usf"`
}

func (c TaxContext) IsExempt(category types.TaxCategory) bool {
	return lo.Contains(c.Exemptions, category)
}

func (c TaxContext) Validate() error {
	switch c.ServiceAddress.Jurisdiction {
	case types.JurisdictionFederal, types.JurisdictionMulti, types.JurisdictionNone:
	default:
		return ierr.NewError("invalid jurisdiction").
			WithHintf("Jurisdiction must be federal, multi or none, got '%s'", c.ServiceAddress.Jurisdiction).
			Mark(ierr.ErrValidation)
	}
	if c.ServiceAddress.Jurisdiction == types.JurisdictionMulti && c.ServiceAddress.State == "" {
		return ierr.NewError("multi jurisdiction without state").
			WithHint("A state is required to resolve multi-jurisdiction taxes").
			Mark(ierr.ErrValidation)
	}
	if err := c.ServiceType.Validate(); err != nil {
		return err
	}
	for _, e := range c.Exemptions {
		if _, ok := types.TaxCategoryOrder[e]; !ok {
			return ierr.NewError("unknown exemption").
				WithHintf("Exemption '%s' does not match any tax category", e).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// BreakdownEntry is the tax of one jurisdiction layer.
type BreakdownEntry struct {
	Jurisdiction string            `json:"jurisdiction"`
	Type         types.TaxCategory `json:"type"`
	Name         string            `json:"name,omitempty"`
	TaxRateID    string            `json:"tax_rate_id,omitempty"`
	Rate         decimal.Decimal   `json:"rate"`
	Amount       decimal.Decimal   `json:"amount"`
	Exempt       bool              `json:"exempt,omitempty"`
}

// TaxResult is the output of the engine. TotalTax always equals the sum of
// the breakdown amounts.
type TaxResult struct {
	TaxableAmount decimal.Decimal  `json:"taxable_amount"`
	TotalTax      decimal.Decimal  `json:"total_tax"`
	Breakdown     []BreakdownEntry `json:"breakdown"`
}

// Rates are the federal constants in force.
type Rates struct {
	FederalExciseRate      decimal.Decimal
	FederalExciseThreshold decimal.Decimal
	USFContributionFactor  decimal.Decimal
}
