package service

import (
	"context"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type ContractService interface {
	CreateContract(ctx context.Context, cc types.CompanyContext, req dto.CreateContractRequest) (*dto.ContractResponse, error)
	GetContract(ctx context.Context, cc types.CompanyContext, id string) (*dto.ContractResponse, error)
	ListContracts(ctx context.Context, cc types.CompanyContext, filter *dto.ContractFilter) (*dto.ListContractsResponse, error)
	UpdateContract(ctx context.Context, cc types.CompanyContext, id string, req dto.UpdateContractRequest) (*dto.ContractResponse, error)
	ArchiveContract(ctx context.Context, cc types.CompanyContext, id string) error

	// CalculateBilling returns the period charge of a stored contract.
	CalculateBilling(ctx context.Context, cc types.CompanyContext, id string, req dto.ContractBillingRequest) (*dto.ContractBillingResponse, error)
	// CalculateConfiguration prices a configuration that is not stored.
	CalculateConfiguration(ctx context.Context, cc types.CompanyContext, req dto.CalculateContractBillingRequest) (*dto.ContractBillingResponse, error)
	AnnualValue(ctx context.Context, cc types.CompanyContext, id string, req dto.ContractBillingRequest) (*dto.AnnualValueResponse, error)
}

type contractService struct {
	ServiceParams
}

func NewContractService(params ServiceParams) ContractService {
	return &contractService{ServiceParams: params}
}

func (s *contractService) CreateContract(ctx context.Context, cc types.CompanyContext, req dto.CreateContractRequest) (*dto.ContractResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	c := req.ToContract(cc, now, s.Config.Billing.Currency)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	// price it once so a configuration that cannot bill fails at save time
	result, err := contract.Calculate(c, c.StartDate, nil)
	if err != nil {
		return nil, err
	}

	if err := s.ContractRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	log := newAuditLog(cc, now)
	log.record(audit.EntityTypeContract, c.ID, audit.ActionContractCreated, nil, amountPtr(result.Amount), "contract created", map[string]any{
		"billing_model": c.BillingModel,
		"frequency":     c.Frequency,
	})
	s.AuditPublisher.Publish(ctx, log.entries...)

	s.Logger.WithContext(ctx).Infow("created contract",
		"contract_id", c.ID,
		"client_id", c.ClientID,
		"billing_model", c.BillingModel)
	return dto.NewContractResponse(c), nil
}

func (s *contractService) GetContract(ctx context.Context, cc types.CompanyContext, id string) (*dto.ContractResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	c, err := s.ContractRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewContractResponse(c), nil
}

func (s *contractService) ListContracts(ctx context.Context, cc types.CompanyContext, filter *dto.ContractFilter) (*dto.ListContractsResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &dto.ContractFilter{QueryFilter: *types.NewDefaultQueryFilter()}
	}

	contracts, err := s.ContractRepo.List(ctx, filter.ToFilter(cc.CompanyID))
	if err != nil {
		return nil, err
	}
	return &dto.ListContractsResponse{
		Items:      lo.Map(contracts, func(c *contract.Contract, _ int) *dto.ContractResponse { return dto.NewContractResponse(c) }),
		Pagination: dto.NewPaginationResponse(len(contracts), &filter.QueryFilter),
	}, nil
}

func (s *contractService) UpdateContract(ctx context.Context, cc types.CompanyContext, id string, req dto.UpdateContractRequest) (*dto.ContractResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	c, err := s.ContractRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if c.BaseModel.Status == types.StatusArchived {
		return nil, ierr.NewError("contract is archived").
			WithHintf("Contract %s is archived and cannot be changed", id).
			Mark(ierr.ErrInvalidOperation)
	}

	var oldAmount *decimal.Decimal
	if before, err := contract.Calculate(c, now, nil); err == nil {
		oldAmount = amountPtr(before.Amount)
	}

	req.Apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	after, err := contract.Calculate(c, now, nil)
	if err != nil {
		return nil, err
	}

	c.UpdatedAt = now
	c.UpdatedBy = cc.Actor()
	if err := s.ContractRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	s.forgetContract(ctx, cc.CompanyID, id)

	log := newAuditLog(cc, now)
	log.record(audit.EntityTypeContract, c.ID, audit.ActionContractUpdated, oldAmount, amountPtr(after.Amount), "contract configuration changed", map[string]any{
		"billing_model": c.BillingModel,
	})
	s.AuditPublisher.Publish(ctx, log.entries...)

	s.Logger.WithContext(ctx).Infow("updated contract",
		"contract_id", c.ID,
		"billing_model", c.BillingModel,
		"amount", after.Amount)
	return dto.NewContractResponse(c), nil
}

func (s *contractService) ArchiveContract(ctx context.Context, cc types.CompanyContext, id string) error {
	if err := validateCompany(cc); err != nil {
		return err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	c, err := s.ContractRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return err
	}
	if c.BaseModel.Status == types.StatusArchived {
		return nil
	}

	c.BaseModel.Status = types.StatusArchived
	c.UpdatedAt = now
	c.UpdatedBy = cc.Actor()
	if err := s.ContractRepo.Update(ctx, c); err != nil {
		return err
	}
	s.forgetContract(ctx, cc.CompanyID, id)

	log := newAuditLog(cc, now)
	log.record(audit.EntityTypeContract, c.ID, audit.ActionContractArchived, nil, nil, "contract archived", nil)
	s.AuditPublisher.Publish(ctx, log.entries...)

	s.Logger.WithContext(ctx).Infow("archived contract", "contract_id", id)
	return nil
}

func (s *contractService) CalculateBilling(ctx context.Context, cc types.CompanyContext, id string, req dto.ContractBillingRequest) (*dto.ContractBillingResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	c, err := s.loadContract(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	result, err := contract.Calculate(c, req.GetAsOf(s.now()), req.Usage)
	if err != nil {
		return nil, err
	}
	return dto.NewContractBillingResponse(c.ID, result), nil
}

func (s *contractService) CalculateConfiguration(ctx context.Context, cc types.CompanyContext, req dto.CalculateContractBillingRequest) (*dto.ContractBillingResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c := req.Contract.ToContract(cc, s.now(), s.Config.Billing.Currency)
	result, err := contract.Calculate(c, req.GetAsOf(s.now()), req.Usage)
	if err != nil {
		return nil, err
	}
	return dto.NewContractBillingResponse("", result), nil
}

func (s *contractService) AnnualValue(ctx context.Context, cc types.CompanyContext, id string, req dto.ContractBillingRequest) (*dto.AnnualValueResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	c, err := s.loadContract(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	asOf := req.GetAsOf(s.now())
	value, err := contract.AnnualValue(c, asOf)
	if err != nil {
		return nil, err
	}
	return &dto.AnnualValueResponse{
		ContractID:  c.ID,
		AsOf:        asOf,
		AnnualValue: value,
	}, nil
}
