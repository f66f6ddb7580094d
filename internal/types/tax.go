package types

// Jurisdiction selects which tax layers apply to a service address.
type Jurisdiction string

const (
	// JurisdictionFederal applies federal components only.
	JurisdictionFederal Jurisdiction = "federal"
	// JurisdictionMulti stacks federal components with state, county and city rows.
	JurisdictionMulti Jurisdiction = "multi"
	// JurisdictionNone applies no tax.
	JurisdictionNone Jurisdiction = "none"
)

// TaxCategory names a breakdown entry and is also the exemption key that zeroes it.
type TaxCategory string

const (
	TaxCategoryFederalExcise TaxCategory = "federal_excise"
	TaxCategoryUSF           TaxCategory = "usf"
	TaxCategoryState         TaxCategory = "state"
	TaxCategoryCounty        TaxCategory = "county"
	TaxCategoryCity          TaxCategory = "city"
)

// TaxCategoryOrder is the fixed order of breakdown entries.
var TaxCategoryOrder = map[TaxCategory]int{
	TaxCategoryFederalExcise: 0,
	TaxCategoryUSF:           1,
	TaxCategoryState:         2,
	TaxCategoryCounty:        3,
	TaxCategoryCity:          4,
}

// IsLocal reports whether rows of this category come from the rate table.
func (c TaxCategory) IsLocal() bool {
	return c == TaxCategoryState || c == TaxCategoryCounty || c == TaxCategoryCity
}
