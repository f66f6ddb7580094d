package service

import (
	"context"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/proration"
)

// CalculationService exposes the stateless calculators that have no
// aggregate of their own.
type CalculationService interface {
	Prorate(ctx context.Context, req dto.ProrationRequest) (*dto.ProrationResponse, error)
}

type calculationService struct {
	ServiceParams
}

func NewCalculationService(params ServiceParams) CalculationService {
	return &calculationService{ServiceParams: params}
}

func (s *calculationService) Prorate(ctx context.Context, req dto.ProrationRequest) (*dto.ProrationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	result, err := proration.NewCalculator(req.GetDayCount()).Calculate(ctx, req.ToParams())
	if err != nil {
		return nil, err
	}
	s.Logger.WithContext(ctx).Debugw("prorated amount",
		"full_amount", req.FullAmount,
		"amount", result.Amount,
		"day_count", req.GetDayCount())
	return &dto.ProrationResponse{ProrationResult: result}, nil
}
