package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mspfin/billing-engine/internal/api/cron"
	"github.com/mspfin/billing-engine/internal/api/dto"
	v1 "github.com/mspfin/billing-engine/internal/api/v1"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	gin.SetMode(gin.TestMode)

	stores := s.GetStores()
	params := service.NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetClock(),
		s.GetLocker(),
		s.GetCache(),
		nil,
		stores.InvoiceRepo,
		stores.ContractRepo,
		stores.RecurringRepo,
		stores.PaymentRepo,
		stores.TaxRateRepo,
		s.GetAuditRecorder(),
	)

	taxService := service.NewTaxService(params)
	invoiceService := service.NewInvoiceService(params, taxService)
	contractService := service.NewContractService(params)
	recurringService := service.NewRecurringInvoiceService(params, taxService)
	paymentService := service.NewPaymentService(params)
	calculationService := service.NewCalculationService(params)
	log := s.GetLogger()

	s.router = NewRouter(Handlers{
		Health:        v1.NewHealthHandler(s.GetConfig(), s.GetClock()),
		Calculation:   v1.NewCalculationHandler(invoiceService, taxService, contractService, calculationService, log),
		Invoice:       v1.NewInvoiceHandler(invoiceService, log),
		Contract:      v1.NewContractHandler(contractService, log),
		Recurring:     v1.NewRecurringInvoiceHandler(recurringService, s.GetClock(), log),
		Payment:       v1.NewPaymentHandler(paymentService, log),
		TaxRate:       v1.NewTaxRateHandler(taxService, log),
		CronRecurring: cron.NewRecurringInvoiceHandler(recurringService, s.GetClock(), log),
	}, s.GetConfig(), log)
}

func (s *RouterSuite) do(method, path string, body any, company string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if company != "" {
		req.Header.Set(middleware.HeaderCompanyID, company)
		req.Header.Set(middleware.HeaderUserID, "user_api")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *RouterSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(middleware.HeaderRequestID))
}

func (s *RouterSuite) TestMissingCompanyHeader() {
	rec := s.do(http.MethodGet, "/v1/invoices", nil, "")
	s.Equal(http.StatusForbidden, rec.Code)

	var resp ierr.ErrorResponse
	s.decode(rec, &resp)
	s.False(resp.Success)
	s.Equal(ierr.ErrCodePermissionDenied, resp.Error.Code)
	s.Contains(resp.Error.Display, middleware.HeaderCompanyID)
}

func (s *RouterSuite) TestCalculateTax() {
	rec := s.do(http.MethodPost, "/v1/calculate/tax", map[string]any{
		"amount":       "100.00",
		"service_type": "voip",
		"tax_profile":  map[string]any{"jurisdiction": "federal", "include_usf": true},
	}, "company_api")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		TotalTax decimal.Decimal `json:"total_tax"`
	}
	s.decode(rec, &resp)
	s.Equal("36.40", resp.TotalTax.StringFixed(2))
}

func (s *RouterSuite) TestInvoiceLifecycle() {
	rec := s.do(http.MethodPost, "/v1/invoices", map[string]any{
		"client_id": "client_api",
		"items": []map[string]any{
			{"description": "Managed services", "unit_price": "250", "quantity": "2"},
		},
	}, "company_api")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID      string          `json:"id"`
		Amount  decimal.Decimal `json:"amount"`
		Balance decimal.Decimal `json:"balance"`
	}
	s.decode(rec, &created)
	s.Equal("500.00", created.Amount.StringFixed(2))

	rec = s.do(http.MethodPost, "/v1/payments", map[string]any{
		"invoice_id": created.ID,
		"amount":     "200",
	}, "company_api")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var applied dto.ApplyPaymentResponse
	s.decode(rec, &applied)
	s.Equal("300.00", applied.NewBalance.StringFixed(2))

	rec = s.do(http.MethodGet, "/v1/clients/client_api/balance", nil, "company_api")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	// another company cannot see the invoice
	rec = s.do(http.MethodGet, "/v1/invoices/"+created.ID, nil, "company_other")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestValidationErrorShape() {
	rec := s.do(http.MethodPost, "/v1/payments", map[string]any{
		"invoice_id": "inv_missing",
		"amount":     "0",
	}, "company_api")
	s.Equal(http.StatusBadRequest, rec.Code)

	var resp ierr.ErrorResponse
	s.decode(rec, &resp)
	s.Equal(ierr.ErrCodeValidation, resp.Error.Code)
	s.NotEmpty(resp.Error.Display)
}

func (s *RouterSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/tax-rates", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderCompanyID, "company_api")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RouterSuite) TestContractConfigurationError() {
	rec := s.do(http.MethodPost, "/v1/calculate/contract-billing", map[string]any{
		"contract": map[string]any{
			"client_id":     "client_api",
			"name":          "Quote",
			"billing_model": "asset_based",
			"frequency":     "monthly",
			"start_date":    "2024-01-01T00:00:00Z",
			"asset_count":   10,
		},
	}, "company_api")
	s.Equal(http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp ierr.ErrorResponse
	s.decode(rec, &resp)
	s.Equal(ierr.ErrCodeConfiguration, resp.Error.Code)
}

func (s *RouterSuite) TestCronProcessAllDue() {
	rec := s.do(http.MethodPost, "/cron/recurring-invoices/process-due", nil, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp cron.ProcessAllDueResponse
	s.decode(rec, &resp)
	s.Empty(resp.Companies)
}
