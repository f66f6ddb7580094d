package dto

import (
	"github.com/mspfin/billing-engine/internal/domain/tax"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// PaginationResponse echoes the page that was served
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func NewPaginationResponse(total int, filter *types.QueryFilter) *PaginationResponse {
	return &PaginationResponse{
		Total:  total,
		Limit:  filter.GetLimit(),
		Offset: filter.GetOffset(),
	}
}

// TaxProfile is where and how the lines of an invoice are taxed
type TaxProfile struct {
	// jurisdiction is one of federal, multi or none; empty means none
	Jurisdiction types.Jurisdiction `json:"jurisdiction,omitempty"`

	// state, county and city locate the service for local rate rows
	State  string `json:"state,omitempty" validate:"omitempty,max=100"`
	County string `json:"county,omitempty" validate:"omitempty,max=100"`
	City   string `json:"city,omitempty" validate:"omitempty,max=100"`

	// include_usf adds the universal service fund contribution on voip lines
	IncludeUSF bool `json:"include_usf"`

	// exemptions lists breakdown categories that are zeroed for this client
	Exemptions []types.TaxCategory `json:"exemptions,omitempty"`
}

// GetJurisdiction defaults an empty jurisdiction to none
func (p TaxProfile) GetJurisdiction() types.Jurisdiction {
	if p.Jurisdiction == "" {
		return types.JurisdictionNone
	}
	return p.Jurisdiction
}

// Validate checks the profile with the same rules the tax engine applies
func (p TaxProfile) Validate() error {
	tctx := tax.TaxContext{
		ServiceType: types.ServiceTypeOrdinary,
		ServiceAddress: tax.ServiceAddress{
			State:        p.State,
			County:       p.County,
			City:         p.City,
			Jurisdiction: p.GetJurisdiction(),
		},
		Exemptions: p.Exemptions,
		IncludeUSF: p.IncludeUSF,
	}
	return tctx.Validate()
}

func validateCurrency(currency string) error {
	if currency != "" && len(currency) != 3 {
		return ierr.NewError("invalid currency").
			WithHintf("Currency must be a three letter ISO code, got '%s'", currency).
			Mark(ierr.ErrValidation)
	}
	return nil
}
