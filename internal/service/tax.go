package service

import (
	"context"
	"strings"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/cache"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// TaxService manages the local rate table and taxes amounts against it.
type TaxService interface {
	CreateTaxRate(ctx context.Context, cc types.CompanyContext, req dto.CreateTaxRateRequest) (*dto.TaxRateResponse, error)
	GetTaxRate(ctx context.Context, cc types.CompanyContext, id string) (*dto.TaxRateResponse, error)
	ListTaxRates(ctx context.Context, cc types.CompanyContext, filter *types.QueryFilter) (*dto.ListTaxRatesResponse, error)
	DeleteTaxRate(ctx context.Context, cc types.CompanyContext, id string) error

	// CalculateTax runs the engine for one amount.
	CalculateTax(ctx context.Context, cc types.CompanyContext, req dto.CalculateTaxRequest) (*dto.CalculateTaxResponse, error)

	// InvoiceTaxer returns the line taxer for inv. Local rows are resolved
	// once per invoice.
	InvoiceTaxer(ctx context.Context, inv *invoice.Invoice) invoice.ItemTaxer
}

type taxService struct {
	ServiceParams
	engine *tax.Engine
}

func NewTaxService(params ServiceParams) TaxService {
	return &taxService{
		ServiceParams: params,
		engine:        params.taxEngine(),
	}
}

func (s *taxService) CreateTaxRate(ctx context.Context, cc types.CompanyContext, req dto.CreateTaxRateRequest) (*dto.TaxRateResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rate := req.ToTaxRate(cc, s.now())
	if err := s.TaxRateRepo.Create(ctx, rate); err != nil {
		return nil, err
	}
	s.forgetJurisdictions(ctx, cc.CompanyID)

	s.Logger.WithContext(ctx).Infow("created tax rate",
		"tax_rate_id", rate.ID,
		"type", rate.Type,
		"state", rate.State,
		"rate", rate.Rate)
	return dto.NewTaxRateResponse(rate), nil
}

func (s *taxService) GetTaxRate(ctx context.Context, cc types.CompanyContext, id string) (*dto.TaxRateResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}

	key := cache.GenerateKey(cache.PrefixTaxRate, cc.CompanyID, id)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if rate, ok := cached.(*tax.TaxRate); ok {
			return dto.NewTaxRateResponse(rate), nil
		}
	}

	rate, err := s.TaxRateRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, rate, 0)
	return dto.NewTaxRateResponse(rate), nil
}

func (s *taxService) ListTaxRates(ctx context.Context, cc types.CompanyContext, filter *types.QueryFilter) (*dto.ListTaxRatesResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = types.NewDefaultQueryFilter()
	}

	rates, err := s.TaxRateRepo.List(ctx, cc.CompanyID, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListTaxRatesResponse{
		Items:      lo.Map(rates, func(r *tax.TaxRate, _ int) *dto.TaxRateResponse { return dto.NewTaxRateResponse(r) }),
		Pagination: dto.NewPaginationResponse(len(rates), filter),
	}, nil
}

func (s *taxService) DeleteTaxRate(ctx context.Context, cc types.CompanyContext, id string) error {
	if err := validateCompany(cc); err != nil {
		return err
	}
	if err := s.TaxRateRepo.Delete(ctx, cc.CompanyID, id); err != nil {
		return err
	}
	s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixTaxRate, cc.CompanyID, id))
	s.forgetJurisdictions(ctx, cc.CompanyID)

	s.Logger.WithContext(ctx).Infow("archived tax rate", "tax_rate_id", id)
	return nil
}

func (s *taxService) CalculateTax(ctx context.Context, cc types.CompanyContext, req dto.CalculateTaxRequest) (*dto.CalculateTaxResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tctx := req.ToTaxContext()
	rates, err := s.localRates(ctx, cc.CompanyID, tctx)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Calculate(req.Amount, tctx, rates)
	if err != nil {
		return nil, err
	}
	return &dto.CalculateTaxResponse{TaxResult: result}, nil
}

func (s *taxService) InvoiceTaxer(ctx context.Context, inv *invoice.Invoice) invoice.ItemTaxer {
	var (
		rates  []*tax.TaxRate
		loaded bool
	)
	return func(item *invoice.InvoiceItem, subtotal decimal.Decimal) (decimal.Decimal, error) {
		tctx := inv.TaxContext(item.ServiceType)
		if !loaded {
			var err error
			if rates, err = s.localRates(ctx, inv.CompanyID, tctx); err != nil {
				return decimal.Zero, err
			}
			loaded = true
		}
		result, err := s.engine.Calculate(subtotal, tctx, rates)
		if err != nil {
			return decimal.Zero, err
		}
		return result.TotalTax, nil
	}
}

// localRates returns the rate rows of the service state, through the cache.
// Only the multi jurisdiction reads the table.
func (s *taxService) localRates(ctx context.Context, companyID string, tctx tax.TaxContext) ([]*tax.TaxRate, error) {
	if tctx.ServiceAddress.Jurisdiction != types.JurisdictionMulti || tctx.ServiceAddress.State == "" {
		return nil, nil
	}

	state := strings.ToUpper(tctx.ServiceAddress.State)
	key := cache.GenerateKey(cache.PrefixJurisdiction, companyID, state)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if rates, ok := cached.([]*tax.TaxRate); ok {
			return rates, nil
		}
	}

	rates, err := s.TaxRateRepo.ListByState(ctx, companyID, state)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, rates, 0)
	return rates, nil
}

func (s *taxService) forgetJurisdictions(ctx context.Context, companyID string) {
	s.Cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixJurisdiction, companyID)+":")
}
