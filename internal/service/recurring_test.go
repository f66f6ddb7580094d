package service

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/suite"
)

type RecurringInvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service RecurringInvoiceService
}

func TestRecurringInvoiceService(t *testing.T) {
	suite.Run(t, new(RecurringInvoiceServiceSuite))
}

func (s *RecurringInvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewRecurringInvoiceService(params, NewTaxService(params))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *RecurringInvoiceServiceSuite) createFlat(start time.Time, amount string) *dto.RecurringInvoiceResponse {
	resp, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:        "client_1",
		Description:     "Managed services",
		Amount:          dec(amount),
		Frequency:       types.BillingFrequencyMonthly,
		StartDate:       start,
		PaymentTermDays: 30,
	})
	s.Require().NoError(err)
	return resp
}

// storeContract writes c straight to the repository, skipping the
// configuration checks of the contract service.
func (s *RecurringInvoiceServiceSuite) storeContract(c *contract.Contract) *contract.Contract {
	c.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONTRACT)
	c.ClientID = "client_1"
	c.Name = "Managed IT"
	c.Currency = "usd"
	c.Frequency = types.BillingFrequencyMonthly
	c.DayCount = types.DayCountActual
	c.BaseModel = types.GetDefaultBaseModel(s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(s.GetStores().ContractRepo.Create(s.GetContext(), c))
	return c
}

func (s *RecurringInvoiceServiceSuite) cycleInvoices(recurringID string) []*invoice.Invoice {
	invoices, err := s.GetStores().InvoiceRepo.List(s.GetContext(), &invoice.Filter{
		QueryFilter:        &types.QueryFilter{Limit: types.MaxLimit},
		CompanyID:          s.GetCompanyContext().CompanyID,
		RecurringInvoiceID: recurringID,
	})
	s.Require().NoError(err)
	return invoices
}

func (s *RecurringInvoiceServiceSuite) TestCreateRecurringInvoice() {
	r := s.createFlat(day(2024, time.March, 1), "500")

	s.Equal(types.RecurringInvoiceStatusActive, r.RecurringStatus)
	s.Equal(day(2024, time.March, 1), r.NextBillingDate)
	s.Equal("usd", r.Currency)
	s.Equal(types.ServiceTypeOrdinary, r.ServiceType)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionRecurringCreated), 1)

	_, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:  "client_1",
		Frequency: types.BillingFrequencyMonthly,
		StartDate: day(2024, time.March, 1),
	})
	s.True(ierr.IsValidation(err))
}

func (s *RecurringInvoiceServiceSuite) TestCreateRecurringInvoice_ContractChecks() {
	c := s.storeContract(&contract.Contract{
		BillingModel:  types.BillingModelFixedPrice,
		StartDate:     day(2024, time.January, 1),
		MonthlyAmount: lo.ToPtr(dec("800")),
	})

	_, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_2",
		ContractID: lo.ToPtr(c.ID),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 1),
	})
	s.True(ierr.IsValidation(err))

	c.BaseModel.Status = types.StatusArchived
	s.Require().NoError(s.GetStores().ContractRepo.Update(s.GetContext(), c))
	_, err = s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_1",
		ContractID: lo.ToPtr(c.ID),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 1),
	})
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_1",
		ContractID: lo.ToPtr("contract_missing"),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 1),
	})
	s.True(ierr.IsNotFound(err))
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_BillsOncePerCycle() {
	r := s.createFlat(day(2024, time.March, 1), "500")

	first, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)
	s.False(first.AlreadyProcessed)
	s.Require().NotNil(first.Invoice)
	s.Equal("500.00", first.Invoice.Amount.StringFixed(2))
	s.Equal(day(2024, time.March, 1), first.Invoice.IssueDate)
	s.Equal(day(2024, time.March, 31), first.Invoice.DueDate)
	s.Equal(day(2024, time.March, 31), lo.FromPtr(first.Invoice.PeriodEnd))
	s.Equal(day(2024, time.April, 1), first.NextBillingDate)
	s.Equal(first.Invoice.ID, lo.FromPtr(first.RecurringInvoice.LastInvoiceID))

	second, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)
	s.True(second.AlreadyProcessed)
	s.Nil(second.Invoice)
	s.Equal(day(2024, time.April, 1), second.NextBillingDate)

	s.Len(s.cycleInvoices(r.ID), 1)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionRecurringAdvanced), 1)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionInvoiceCreated), 1)
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_CatchesUpOneCyclePerCall() {
	r := s.createFlat(day(2024, time.January, 31), "310")
	target := day(2024, time.March, 15)

	var nextDates []time.Time
	for i := 0; i < 3; i++ {
		resp, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{TargetDate: &target})
		s.Require().NoError(err)
		nextDates = append(nextDates, resp.NextBillingDate)
	}

	// the anchor on the 31st survives the short month
	s.Equal([]time.Time{
		day(2024, time.February, 29),
		day(2024, time.March, 31),
		day(2024, time.March, 31),
	}, nextDates)
	s.Len(s.cycleInvoices(r.ID), 2)
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_ReusesInvoiceOfLostAdvance() {
	r := s.createFlat(day(2024, time.March, 1), "500")

	first, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)

	// put the record back as if the advance had never been saved
	stored, err := s.GetStores().RecurringRepo.Get(s.GetContext(), s.GetCompanyContext().CompanyID, r.ID)
	s.Require().NoError(err)
	stored.NextBillingDate = day(2024, time.March, 1)
	s.Require().NoError(s.GetStores().RecurringRepo.Update(s.GetContext(), stored))

	again, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)
	s.False(again.AlreadyProcessed)
	s.Equal(first.Invoice.ID, again.Invoice.ID)
	s.Equal(day(2024, time.April, 1), again.NextBillingDate)
	s.Len(s.cycleInvoices(r.ID), 1)
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_ContractAmountAndTax() {
	c := s.storeContract(&contract.Contract{
		BillingModel: types.BillingModelHybrid,
		StartDate:    day(2024, time.January, 1),
		BaseAmount:   lo.ToPtr(dec("1000")),
		PerAssetRate: lo.ToPtr(dec("5")),
		PerUserRate:  lo.ToPtr(dec("25")),
		AssetCount:   200,
		UserCount:    50,
	})
	r, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:    "client_1",
		ContractID:  lo.ToPtr(c.ID),
		Frequency:   types.BillingFrequencyMonthly,
		StartDate:   day(2024, time.March, 1),
		ServiceType: types.ServiceTypeVoIP,
		TaxProfile:  dto.TaxProfile{Jurisdiction: types.JurisdictionFederal},
	})
	s.Require().NoError(err)

	resp, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{
		Usage: &dto.UsageRequest{AssetCount: 100, UserCount: 20},
	})
	s.Require().NoError(err)
	s.Require().NotNil(resp.Invoice)
	// 1000 + 100 x 5 + 20 x 25, plus 3% excise
	s.Equal("2000.00", resp.Invoice.Subtotal.StringFixed(2))
	s.Equal("60.00", resp.Invoice.TotalTax.StringFixed(2))
	s.Equal("2060.00", resp.Invoice.Amount.StringFixed(2))
	s.Equal(c.ID, lo.FromPtr(resp.Invoice.ContractID))
	s.Equal("2000.00", resp.RecurringInvoice.Amount.StringFixed(2))
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_SkipsCycleBeforeContractStart() {
	c := s.storeContract(&contract.Contract{
		BillingModel:  types.BillingModelFixedPrice,
		StartDate:     day(2024, time.May, 1),
		MonthlyAmount: lo.ToPtr(dec("800")),
	})
	r, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_1",
		ContractID: lo.ToPtr(c.ID),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 1),
	})
	s.Require().NoError(err)

	resp, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)
	s.True(resp.Skipped)
	s.Nil(resp.Invoice)
	s.Equal(day(2024, time.April, 1), resp.NextBillingDate)
	s.Equal(types.RecurringInvoiceStatusActive, resp.RecurringInvoice.RecurringStatus)
	s.Empty(s.cycleInvoices(r.ID))
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_FinishesAfterEndDate() {
	end := day(2024, time.February, 10)
	next := day(2024, time.March, 1)
	r, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:        "client_1",
		Amount:          dec("290"),
		Frequency:       types.BillingFrequencyMonthly,
		StartDate:       day(2024, time.February, 1),
		EndDate:         &end,
		NextBillingDate: &next,
	})
	s.Require().NoError(err)

	resp, err := s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.Require().NoError(err)
	s.True(resp.Skipped)
	s.Equal(types.RecurringInvoiceStatusCancelled, resp.RecurringInvoice.RecurringStatus)

	_, err = s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.True(ierr.IsInvalidOperation(err))
}

func (s *RecurringInvoiceServiceSuite) TestProcessDue_IsolatesFailures() {
	good1 := s.createFlat(day(2024, time.March, 1), "100")
	good2 := s.createFlat(day(2024, time.March, 10), "200")
	notYet := s.createFlat(day(2024, time.April, 1), "300")

	c := s.storeContract(&contract.Contract{
		BillingModel: types.BillingModelAssetBased,
		StartDate:    day(2024, time.January, 1),
		PerAssetRate: lo.ToPtr(dec("10")),
		AssetCount:   5,
	})
	broken, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_1",
		ContractID: lo.ToPtr(c.ID),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 5),
	})
	s.Require().NoError(err)

	// the rate disappears after the schedule was accepted
	c.PerAssetRate = nil
	s.Require().NoError(s.GetStores().ContractRepo.Update(s.GetContext(), c))

	resp, err := s.service.ProcessDue(s.GetContext(), s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(err)
	s.Len(resp.Results, 3)
	s.Equal(2, resp.Processed)
	s.Equal(1, resp.Failed)

	results := lo.KeyBy(resp.Results, func(r dto.ProcessDueResult) string { return r.RecurringInvoiceID })
	s.NotEmpty(results[good1.ID].InvoiceID)
	s.NotEmpty(results[good2.ID].InvoiceID)
	s.NotContains(results, notYet.ID)
	s.Contains(results[broken.ID].Error, "per_asset_rate")

	stored, err := s.service.GetRecurringInvoice(s.GetContext(), s.GetCompanyContext(), broken.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.FailedAttempts)
	s.Contains(stored.LastError, "per_asset_rate")
	s.Equal(day(2024, time.March, 5), stored.NextBillingDate)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionRecurringFailed), 1)

	// a second run only retries the failure
	resp, err = s.service.ProcessDue(s.GetContext(), s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(err)
	s.Len(resp.Results, 1)
	s.Equal(1, resp.Failed)

	stored, err = s.service.GetRecurringInvoice(s.GetContext(), s.GetCompanyContext(), broken.ID)
	s.Require().NoError(err)
	s.Equal(2, stored.FailedAttempts)
}

func (s *RecurringInvoiceServiceSuite) TestProcessDue_SuccessClearsFailures() {
	c := s.storeContract(&contract.Contract{
		BillingModel: types.BillingModelAssetBased,
		StartDate:    day(2024, time.January, 1),
		AssetCount:   5,
		PerAssetRate: lo.ToPtr(dec("10")),
	})
	r, err := s.service.CreateRecurringInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateRecurringInvoiceRequest{
		ClientID:   "client_1",
		ContractID: lo.ToPtr(c.ID),
		Frequency:  types.BillingFrequencyMonthly,
		StartDate:  day(2024, time.March, 1),
	})
	s.Require().NoError(err)

	c.PerAssetRate = nil
	s.Require().NoError(s.GetStores().ContractRepo.Update(s.GetContext(), c))
	_, err = s.service.ProcessDue(s.GetContext(), s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(err)

	c.PerAssetRate = lo.ToPtr(dec("10"))
	s.Require().NoError(s.GetStores().ContractRepo.Update(s.GetContext(), c))
	// the repository write bypasses the contract service's eviction
	s.GetCache().Flush(s.GetContext())
	resp, err := s.service.ProcessDue(s.GetContext(), s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(err)
	s.Equal(1, resp.Processed)

	stored, err := s.service.GetRecurringInvoice(s.GetContext(), s.GetCompanyContext(), r.ID)
	s.Require().NoError(err)
	s.Zero(stored.FailedAttempts)
	s.Empty(stored.LastError)
	s.Equal(day(2024, time.April, 1), stored.NextBillingDate)
}

func (s *RecurringInvoiceServiceSuite) TestProcessAllDue_CoversEveryCompany() {
	s.createFlat(day(2024, time.March, 1), "100")

	other := types.CompanyContext{CompanyID: "company_other", UserID: "user_other", RequestID: types.GenerateUUID()}
	_, err := s.service.CreateRecurringInvoice(s.GetContext(), other, dto.CreateRecurringInvoiceRequest{
		ClientID:  "client_9",
		Amount:    dec("50"),
		Frequency: types.BillingFrequencyQuarterly,
		StartDate: day(2024, time.February, 1),
	})
	s.Require().NoError(err)

	responses, err := s.service.ProcessAllDue(s.GetContext(), s.GetNow())
	s.Require().NoError(err)
	s.Len(responses, 2)
	for _, resp := range responses {
		s.Equal(1, resp.Processed)
		s.Zero(resp.Failed)
	}

	responses, err = s.service.ProcessAllDue(s.GetContext(), s.GetNow())
	s.Require().NoError(err)
	s.Empty(responses)
}

func (s *RecurringInvoiceServiceSuite) TestCancelRecurringInvoice() {
	r := s.createFlat(day(2024, time.March, 1), "500")

	cancelled, err := s.service.CancelRecurringInvoice(s.GetContext(), s.GetCompanyContext(), r.ID)
	s.Require().NoError(err)
	s.Equal(types.RecurringInvoiceStatusCancelled, cancelled.RecurringStatus)

	_, err = s.service.CancelRecurringInvoice(s.GetContext(), s.GetCompanyContext(), r.ID)
	s.Require().NoError(err)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionRecurringCancelled), 1)

	_, err = s.service.AdvanceRecurringCycle(s.GetContext(), s.GetCompanyContext(), r.ID, dto.AdvanceRecurringInvoiceRequest{})
	s.True(ierr.IsInvalidOperation(err))

	stored, err := s.service.GetRecurringInvoice(s.GetContext(), s.GetCompanyContext(), r.ID)
	s.Require().NoError(err)
	s.Zero(stored.FailedAttempts)

	resp, err := s.service.ProcessDue(s.GetContext(), s.GetCompanyContext(), s.GetNow())
	s.Require().NoError(err)
	s.Empty(resp.Results)
}

func (s *RecurringInvoiceServiceSuite) TestListRecurringInvoices() {
	s.createFlat(day(2024, time.April, 1), "100")
	first := s.createFlat(day(2024, time.March, 1), "100")
	_, err := s.service.CancelRecurringInvoice(s.GetContext(), s.GetCompanyContext(), first.ID)
	s.Require().NoError(err)

	all, err := s.service.ListRecurringInvoices(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Require().Len(all.Items, 2)
	s.Equal(first.ID, all.Items[0].ID)

	active, err := s.service.ListRecurringInvoices(s.GetContext(), s.GetCompanyContext(), &dto.RecurringInvoiceFilter{
		QueryFilter: *types.NewDefaultQueryFilter(),
		Status:      types.RecurringInvoiceStatusActive,
	})
	s.Require().NoError(err)
	s.Len(active.Items, 1)
}

func (s *RecurringInvoiceServiceSuite) TestAdvance_ConcurrentCallsBillOneCycle() {
	ctx, cc := s.GetContext(), s.GetCompanyContext()
	r := s.createFlat(day(2024, time.January, 31), "310")
	target := day(2024, time.February, 15)

	const n = 10
	var billed atomic.Int32
	p := pool.New().WithErrors()
	for i := 0; i < n; i++ {
		p.Go(func() error {
			resp, err := s.service.AdvanceRecurringCycle(ctx, cc, r.ID, dto.AdvanceRecurringInvoiceRequest{TargetDate: &target})
			if err != nil {
				return err
			}
			if !resp.AlreadyProcessed {
				billed.Add(1)
			}
			return nil
		})
	}
	s.Require().NoError(p.Wait())

	s.Equal(int32(1), billed.Load())
	s.Len(s.cycleInvoices(r.ID), 1)
	s.Len(s.GetAuditRecorder().ByAction(audit.ActionRecurringAdvanced), 1)

	stored, err := s.GetStores().RecurringRepo.Get(ctx, cc.CompanyID, r.ID)
	s.Require().NoError(err)
	s.Equal(day(2024, time.February, 29), stored.NextBillingDate)
}
