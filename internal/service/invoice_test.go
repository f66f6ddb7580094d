package service

import (
	"testing"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service        InvoiceService
	taxService     TaxService
	paymentService PaymentService
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.taxService = NewTaxService(params)
	s.service = NewInvoiceService(params, s.taxService)
	s.paymentService = NewPaymentService(params)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *InvoiceServiceSuite) createInvoice(profile dto.TaxProfile, items ...dto.CreateInvoiceItemRequest) *dto.InvoiceResponse {
	resp, err := s.service.CreateInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateInvoiceRequest{
		ClientID:   "client_1",
		TaxProfile: profile,
		Items:      items,
	})
	s.Require().NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) TestCreateInvoice_TotalsAreConsistent() {
	resp, err := s.service.CreateInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateInvoiceRequest{
		ClientID: "client_1",
		Discount: dec("5.00"),
		Items: []dto.CreateInvoiceItemRequest{
			{Description: "Helpdesk hours", UnitPrice: dec("95.00"), Quantity: dec("2.5")},
			{Description: "Backup storage", UnitPrice: dec("0.333"), Quantity: dec("3")},
		},
	})
	s.Require().NoError(err)

	s.Equal("237.50", resp.Items[0].Subtotal.StringFixed(2))
	s.Equal("1.00", resp.Items[1].Subtotal.StringFixed(2))
	s.Equal("238.50", resp.Subtotal.StringFixed(2))
	s.True(resp.TotalTax.IsZero())
	s.Equal("233.50", resp.Amount.StringFixed(2))
	s.Equal("233.50", resp.Balance.StringFixed(2))
	s.Equal(types.InvoiceStatusUnpaid, resp.Status)
	s.Equal(s.GetCompanyContext().CompanyID, resp.CompanyID)

	stored, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.GetCompanyContext().CompanyID, resp.ID)
	s.Require().NoError(err)
	s.Len(stored.Items, 2)
	s.True(stored.Amount.Equal(resp.Amount))

	s.Len(s.GetAuditRecorder().ByAction(audit.ActionInvoiceCreated), 1)
}

func (s *InvoiceServiceSuite) TestCreateInvoice_VoIPTaxStack() {
	resp := s.createInvoice(
		dto.TaxProfile{Jurisdiction: types.JurisdictionFederal, IncludeUSF: true},
		dto.CreateInvoiceItemRequest{Description: "Hosted PBX", UnitPrice: dec("100.00"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
		dto.CreateInvoiceItemRequest{Description: "Consulting", UnitPrice: dec("50.00"), Quantity: dec("1")},
	)

	// 3% excise plus 33.4% USF on the voip line only
	s.Equal("36.40", resp.Items[0].TaxAmount.StringFixed(2))
	s.True(resp.Items[1].TaxAmount.IsZero())
	s.Equal("36.40", resp.TotalTax.StringFixed(2))
	s.Equal("186.40", resp.Amount.StringFixed(2))
}

func (s *InvoiceServiceSuite) TestCreateInvoice_ExciseThresholdIsPerLine() {
	resp := s.createInvoice(
		dto.TaxProfile{Jurisdiction: types.JurisdictionFederal},
		dto.CreateInvoiceItemRequest{Description: "Minutes", UnitPrice: dec("0.19"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
		dto.CreateInvoiceItemRequest{Description: "Minutes", UnitPrice: dec("0.20"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
		dto.CreateInvoiceItemRequest{Description: "DID", UnitPrice: dec("10.00"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
	)

	s.True(resp.Items[0].TaxAmount.IsZero())
	// 0.006 rounds to 0.01
	s.Equal("0.01", resp.Items[1].TaxAmount.StringFixed(2))
	s.Equal("0.30", resp.Items[2].TaxAmount.StringFixed(2))
	s.Equal("0.31", resp.TotalTax.StringFixed(2))
}

func (s *InvoiceServiceSuite) TestCreateInvoice_LocalRatesStackAndExemptions() {
	cc := s.GetCompanyContext()
	for _, req := range []dto.CreateTaxRateRequest{
		{Type: types.TaxCategoryState, State: "tx", Rate: dec("6.25")},
		{Type: types.TaxCategoryCity, State: "TX", City: "Austin", Rate: dec("2")},
		{Type: types.TaxCategoryState, State: "CA", Rate: dec("7")},
	} {
		_, err := s.taxService.CreateTaxRate(s.GetContext(), cc, req)
		s.Require().NoError(err)
	}

	resp := s.createInvoice(
		dto.TaxProfile{Jurisdiction: types.JurisdictionMulti, State: "TX", City: "Austin"},
		dto.CreateInvoiceItemRequest{Description: "SIP trunk", UnitPrice: dec("200.00"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
	)
	// excise 6.00 + state 12.50 + city 4.00
	s.Equal("22.50", resp.TotalTax.StringFixed(2))

	exempt := s.createInvoice(
		dto.TaxProfile{Jurisdiction: types.JurisdictionMulti, State: "TX", City: "Austin", Exemptions: []types.TaxCategory{types.TaxCategoryState}},
		dto.CreateInvoiceItemRequest{Description: "SIP trunk", UnitPrice: dec("200.00"), Quantity: dec("1"), ServiceType: types.ServiceTypeVoIP},
	)
	s.Equal("10.00", exempt.TotalTax.StringFixed(2))
}

func (s *InvoiceServiceSuite) TestCreateInvoice_RejectsInvalidInput() {
	_, err := s.service.CreateInvoice(s.GetContext(), s.GetCompanyContext(), dto.CreateInvoiceRequest{
		ClientID: "client_1",
		Items: []dto.CreateInvoiceItemRequest{
			{Description: "Bad", UnitPrice: dec("10"), Quantity: dec("-1")},
		},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.service.CreateInvoice(s.GetContext(), types.CompanyContext{}, dto.CreateInvoiceRequest{ClientID: "client_1"})
	s.True(ierr.IsPermissionDenied(err))

	list, err := s.service.ListInvoices(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}

func (s *InvoiceServiceSuite) TestItemEditsRecomputeFromScratch() {
	ctx, cc := s.GetContext(), s.GetCompanyContext()
	inv := s.createInvoice(dto.TaxProfile{Jurisdiction: types.JurisdictionFederal},
		dto.CreateInvoiceItemRequest{Description: "Phones", UnitPrice: dec("20.00"), Quantity: dec("2"), ServiceType: types.ServiceTypeVoIP},
	)
	s.Equal("41.20", inv.Amount.StringFixed(2))

	added, err := s.service.AddItem(ctx, cc, inv.ID, dto.CreateInvoiceItemRequest{
		Description: "Onsite visit", UnitPrice: dec("150.00"), Quantity: dec("1"),
	})
	s.Require().NoError(err)
	s.Len(added.Items, 2)
	s.Equal("191.20", added.Amount.StringFixed(2))

	phones := added.Items[0]
	updated, err := s.service.UpdateItem(ctx, cc, inv.ID, phones.ID, dto.UpdateInvoiceItemRequest{Quantity: lo.ToPtr(dec("5"))})
	s.Require().NoError(err)
	s.Equal("3.00", updated.Items[0].TaxAmount.StringFixed(2))
	s.Equal("253.00", updated.Amount.StringFixed(2))

	removed, err := s.service.RemoveItem(ctx, cc, inv.ID, phones.ID)
	s.Require().NoError(err)
	s.Len(removed.Items, 1)
	s.True(removed.TotalTax.IsZero())
	s.Equal("150.00", removed.Amount.StringFixed(2))

	discounted, err := s.service.SetDiscount(ctx, cc, inv.ID, dto.SetDiscountRequest{Discount: dec("25"), Reason: "loyalty"})
	s.Require().NoError(err)
	s.Equal("125.00", discounted.Amount.StringFixed(2))
	s.Equal("125.00", discounted.Balance.StringFixed(2))

	_, err = s.service.RemoveItem(ctx, cc, inv.ID, "inv_line_missing")
	s.True(ierr.IsNotFound(err))

	entries := s.GetAuditRecorder().ByAction(audit.ActionInvoiceDiscountSet)
	s.Require().Len(entries, 1)
	s.Equal("loyalty", entries[0].Reason)
	s.Equal("150.00", entries[0].OldAmount.StringFixed(2))
	s.Equal("125.00", entries[0].NewAmount.StringFixed(2))
	s.Equal(testutil.DefaultUserID, entries[0].Actor)
}

func (s *InvoiceServiceSuite) TestItemEditAfterPaymentRederivesStatus() {
	ctx, cc := s.GetContext(), s.GetCompanyContext()
	inv := s.createInvoice(dto.TaxProfile{},
		dto.CreateInvoiceItemRequest{Description: "Retainer", UnitPrice: dec("100.00"), Quantity: dec("1")},
	)
	_, err := s.paymentService.ApplyPayment(ctx, cc, dto.ApplyPaymentRequest{
		InvoiceID: inv.ID, Amount: dec("100.00"), Method: types.PaymentMethodACH,
	})
	s.Require().NoError(err)

	grown, err := s.service.AddItem(ctx, cc, inv.ID, dto.CreateInvoiceItemRequest{
		Description: "Extra hours", UnitPrice: dec("40.00"), Quantity: dec("1"),
	})
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPartiallyPaid, grown.Status)
	s.Equal("100.00", grown.AmountPaid.StringFixed(2))
	s.Equal("40.00", grown.Balance.StringFixed(2))

	shrunk, err := s.service.RemoveItem(ctx, cc, inv.ID, grown.Items[1].ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusPaid, shrunk.Status)

	recalculated, err := s.service.Recalculate(ctx, cc, inv.ID)
	s.Require().NoError(err)
	s.True(recalculated.Balance.IsZero())
}

func (s *InvoiceServiceSuite) TestCalculateTotalsPersistsNothing() {
	resp, err := s.service.CalculateTotals(s.GetContext(), s.GetCompanyContext(), dto.InvoiceTotalsRequest{
		Items: []dto.CreateInvoiceItemRequest{
			{Description: "Seats", UnitPrice: dec("12.50"), Quantity: dec("4"), ServiceType: types.ServiceTypeVoIP},
		},
		TaxProfile: dto.TaxProfile{Jurisdiction: types.JurisdictionFederal},
	})
	s.Require().NoError(err)
	s.Equal("50.00", resp.Subtotal.StringFixed(2))
	s.Equal("1.50", resp.TotalTax.StringFixed(2))
	s.Equal("51.50", resp.Amount.StringFixed(2))

	list, err := s.service.ListInvoices(s.GetContext(), s.GetCompanyContext(), nil)
	s.Require().NoError(err)
	s.Empty(list.Items)
}
