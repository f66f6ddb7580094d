package tax

import (
	"fmt"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Engine computes jurisdiction-stacked telecom tax. It holds no state besides
// the federal rates, so identical input always yields identical output.
type Engine struct {
	rates Rates
}

func NewEngine(rates Rates) *Engine {
	return &Engine{rates: rates}
}

func (e *Engine) Rates() Rates {
	return e.rates
}

// Calculate taxes amount for the given context. localRates are the rows of
// the rate table, already resolved for the address; rows that do not match
// the address or service type are ignored.
func (e *Engine) Calculate(amount decimal.Decimal, tctx TaxContext, localRates []*TaxRate) (*TaxResult, error) {
	if amount.IsNegative() {
		return nil, ierr.NewError("negative taxable amount").
			WithHintf("Taxable amount must not be negative, got %s", amount.StringFixed(2)).
			Mark(ierr.ErrValidation)
	}
	if err := tctx.Validate(); err != nil {
		return nil, err
	}

	result := &TaxResult{
		TaxableAmount: amount,
		TotalTax:      decimal.Zero,
		Breakdown:     []BreakdownEntry{},
	}

	if amount.IsZero() || tctx.ServiceAddress.Jurisdiction == types.JurisdictionNone {
		return result, nil
	}

	// federal excise is a hard cutoff on each line, not prorated below it
	if tctx.ServiceType == types.ServiceTypeVoIP && amount.GreaterThanOrEqual(e.rates.FederalExciseThreshold) {
		result.add(e.entry(amount, tctx, "federal", types.TaxCategoryFederalExcise, "Federal excise tax", "", e.rates.FederalExciseRate))
	}

	// USF is additive to excise, computed on the same base
	if tctx.IncludeUSF && tctx.ServiceType.Taxable() {
		result.add(e.entry(amount, tctx, "federal", types.TaxCategoryUSF, "Universal Service Fund", "", e.rates.USFContributionFactor))
	}

	if tctx.ServiceAddress.Jurisdiction == types.JurisdictionMulti {
		rows := make([]*TaxRate, 0, len(localRates))
		for _, r := range localRates {
			if r.Matches(tctx.ServiceAddress) && r.AppliesTo(tctx.ServiceType) {
				rows = append(rows, r)
			}
		}
		SortRates(rows)
		for _, r := range rows {
			result.add(e.entry(amount, tctx, jurisdictionName(r), r.Type, r.Name, r.ID, r.Rate))
		}
	}

	return result, nil
}

func (e *Engine) entry(amount decimal.Decimal, tctx TaxContext, jurisdiction string, category types.TaxCategory, name, rateID string, rate decimal.Decimal) BreakdownEntry {
	be := BreakdownEntry{
		Jurisdiction: jurisdiction,
		Type:         category,
		Name:         name,
		TaxRateID:    rateID,
		Rate:         rate,
		Amount:       types.Percentage(amount, rate),
	}
	if tctx.IsExempt(category) {
		be.Amount = decimal.Zero.Round(types.MoneyPrecision)
		be.Exempt = true
	}
	return be
}

func (r *TaxResult) add(entry BreakdownEntry) {
	r.Breakdown = append(r.Breakdown, entry)
	r.TotalTax = r.TotalTax.Add(entry.Amount)
}

func jurisdictionName(r *TaxRate) string {
	switch r.Type {
	case types.TaxCategoryCounty:
		return fmt.Sprintf("%s/%s", r.State, r.County)
	case types.TaxCategoryCity:
		return fmt.Sprintf("%s/%s", r.State, r.City)
	default:
		return r.State
	}
}
