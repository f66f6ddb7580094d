package service

import (
	"testing"
	"time"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ContractServiceSuite struct {
	testutil.BaseServiceTestSuite
	service ContractService
}

func TestContractService(t *testing.T) {
	suite.Run(t, new(ContractServiceSuite))
}

func (s *ContractServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewContractService(newTestServiceParams(&s.BaseServiceTestSuite))
}

var contractStart = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func hybridConfig() dto.ContractConfig {
	return dto.ContractConfig{
		BillingModel: types.BillingModelHybrid,
		Frequency:    types.BillingFrequencyMonthly,
		StartDate:    contractStart,
		BaseAmount:   lo.ToPtr(dec("1000")),
		PerAssetRate: lo.ToPtr(dec("5")),
		PerUserRate:  lo.ToPtr(dec("25")),
		AssetCount:   200,
		UserCount:    50,
	}
}

func (s *ContractServiceSuite) create(cfg dto.ContractConfig) *dto.ContractResponse {
	resp, err := s.service.CreateContract(s.GetContext(), s.GetCompanyContext(), dto.CreateContractRequest{
		ClientID:       "client_1",
		Name:           "Managed IT",
		ContractConfig: cfg,
	})
	s.Require().NoError(err)
	return resp
}

func (s *ContractServiceSuite) TestCreateContract() {
	resp := s.create(hybridConfig())

	s.Equal("usd", resp.Currency)
	s.Equal(types.DayCountActual, resp.DayCount)
	s.Equal(types.StatusPublished, resp.BaseModel.Status)

	entries := s.GetAuditRecorder().ByAction(audit.ActionContractCreated)
	s.Require().Len(entries, 1)
	s.Require().NotNil(entries[0].NewAmount)
	s.Equal("3250.00", entries[0].NewAmount.StringFixed(2))
}

func (s *ContractServiceSuite) TestCreateContract_MissingRate() {
	cfg := hybridConfig()
	cfg.PerUserRate = nil

	_, err := s.service.CreateContract(s.GetContext(), s.GetCompanyContext(), dto.CreateContractRequest{
		ClientID:       "client_1",
		Name:           "Managed IT",
		ContractConfig: cfg,
	})
	s.Require().Error(err)
	s.True(ierr.IsConfiguration(err))
	s.Contains(ierr.HintOf(err), "per_user_rate")

	list, err := s.service.ListContracts(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}

func (s *ContractServiceSuite) TestCreateContract_ZeroRateIsAllowed() {
	cfg := hybridConfig()
	cfg.PerUserRate = lo.ToPtr(decimal.Zero)
	c := s.create(cfg)

	billing, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)
	s.Equal("2000.00", billing.Amount.StringFixed(2))
}

func (s *ContractServiceSuite) TestCalculateBilling_UsageOverride() {
	c := s.create(hybridConfig())

	stored, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)
	s.Equal("3250.00", stored.Amount.StringFixed(2))
	s.Equal(c.ID, stored.ContractID)
	s.Equal(types.BillingModelHybrid, stored.Details.Model)

	override, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{
		Usage: &contract.Usage{AssetCount: 10, UserCount: 4},
	})
	s.Require().NoError(err)
	s.Equal("1150.00", override.Amount.StringFixed(2))
}

func (s *ContractServiceSuite) TestCalculateBilling_EscalationAndDiscount() {
	cfg := dto.ContractConfig{
		BillingModel:  types.BillingModelFixedPrice,
		Frequency:     types.BillingFrequencyMonthly,
		StartDate:     contractStart,
		MonthlyAmount: lo.ToPtr(dec("1000")),
		Escalation:    &contract.Escalation{Rate: dec("5"), Frequency: types.EscalationFrequencyAnnually},
		Discount:      &contract.Discount{Type: types.DiscountTypePercentage, Value: dec("10")},
	}
	c := s.create(cfg)

	// the suite clock sits between the first and second anniversary
	billing, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)
	s.Equal(1, billing.Details.EscalationPeriods)
	s.Equal("1050.00", billing.Details.EscalatedAmount.StringFixed(2))
	s.Equal("945.00", billing.Amount.StringFixed(2))

	asOf := contractStart.AddDate(2, 0, 0)
	later, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{AsOf: &asOf})
	s.Require().NoError(err)
	s.Equal(2, later.Details.EscalationPeriods)
	// 1102.50 less 10%
	s.Equal("992.25", later.Amount.StringFixed(2))
}

func (s *ContractServiceSuite) TestUpdateContract_InvalidatesCache() {
	c := s.create(hybridConfig())

	// warm the cache
	_, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)

	cfg := hybridConfig()
	cfg.PerAssetRate = lo.ToPtr(dec("6"))
	updated, err := s.service.UpdateContract(s.GetContext(), s.GetCompanyContext(), c.ID, dto.UpdateContractRequest{
		Name:           lo.ToPtr("Managed IT Plus"),
		ContractConfig: cfg,
	})
	s.Require().NoError(err)
	s.Equal("Managed IT Plus", updated.Name)

	billing, err := s.service.CalculateBilling(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)
	s.Equal("3450.00", billing.Amount.StringFixed(2))

	entries := s.GetAuditRecorder().ByAction(audit.ActionContractUpdated)
	s.Require().Len(entries, 1)
	s.Equal("3250.00", entries[0].OldAmount.StringFixed(2))
	s.Equal("3450.00", entries[0].NewAmount.StringFixed(2))
}

func (s *ContractServiceSuite) TestUpdateContract_RejectsBrokenConfiguration() {
	c := s.create(hybridConfig())

	cfg := hybridConfig()
	cfg.BaseAmount = lo.ToPtr(dec("-1"))
	_, err := s.service.UpdateContract(s.GetContext(), s.GetCompanyContext(), c.ID, dto.UpdateContractRequest{ContractConfig: cfg})
	s.True(ierr.IsConfiguration(err))

	stored, err := s.service.GetContract(s.GetContext(), s.GetCompanyContext(), c.ID)
	s.Require().NoError(err)
	s.Equal("1000", stored.BaseAmount.String())
}

func (s *ContractServiceSuite) TestArchiveContract() {
	c := s.create(hybridConfig())

	s.Require().NoError(s.service.ArchiveContract(s.GetContext(), s.GetCompanyContext(), c.ID))
	// archiving twice is a no-op
	s.Require().NoError(s.service.ArchiveContract(s.GetContext(), s.GetCompanyContext(), c.ID))
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionContractArchived), 1)

	list, err := s.service.ListContracts(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)

	list, err = s.service.ListContracts(s.GetContext(), s.GetCompanyContext(), &dto.ContractFilter{
		QueryFilter:     *types.NewDefaultQueryFilter(),
		IncludeArchived: true,
	})
	s.Require().NoError(err)
	s.Len(list.Items, 1)

	_, err = s.service.UpdateContract(s.GetContext(), s.GetCompanyContext(), c.ID, dto.UpdateContractRequest{ContractConfig: hybridConfig()})
	s.True(ierr.IsInvalidOperation(err))
}

func (s *ContractServiceSuite) TestCalculateConfiguration() {
	resp, err := s.service.CalculateConfiguration(s.GetContext(), s.GetCompanyContext(), dto.CalculateContractBillingRequest{
		Contract: dto.CreateContractRequest{
			ClientID: "client_1",
			Name:     "Quote",
			ContractConfig: dto.ContractConfig{
				BillingModel: types.BillingModelUserBased,
				Frequency:    types.BillingFrequencyMonthly,
				StartDate:    contractStart,
				PerUserRate:  lo.ToPtr(dec("45")),
				MinimumUsers: 50,
				UserCount:    25,
			},
		},
	})
	s.Require().NoError(err)
	s.Empty(resp.ContractID)
	s.Equal("2250.00", resp.Amount.StringFixed(2))

	list, err := s.service.ListContracts(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}

func (s *ContractServiceSuite) TestAnnualValue() {
	cfg := hybridConfig()
	cfg.Frequency = types.BillingFrequencyQuarterly
	c := s.create(cfg)

	resp, err := s.service.AnnualValue(s.GetContext(), s.GetCompanyContext(), c.ID, dto.ContractBillingRequest{})
	s.Require().NoError(err)
	s.Equal("13000.00", resp.AnnualValue.StringFixed(2))
	s.Equal(types.DateOnly(s.GetNow()), resp.AsOf)
}

func (s *ContractServiceSuite) TestGetContract_OtherCompany() {
	c := s.create(hybridConfig())

	other := types.CompanyContext{CompanyID: "company_other", UserID: "user_other"}
	_, err := s.service.GetContract(s.GetContext(), other, c.ID)
	s.True(ierr.IsNotFound(err))
}
