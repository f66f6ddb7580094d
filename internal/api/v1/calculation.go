package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

// CalculationHandler exposes the stateless calculators. Nothing it serves is
// persisted.
type CalculationHandler struct {
	invoiceService     service.InvoiceService
	taxService         service.TaxService
	contractService    service.ContractService
	calculationService service.CalculationService
	logger             *logger.Logger
}

func NewCalculationHandler(
	invoiceService service.InvoiceService,
	taxService service.TaxService,
	contractService service.ContractService,
	calculationService service.CalculationService,
	logger *logger.Logger,
) *CalculationHandler {
	return &CalculationHandler{
		invoiceService:     invoiceService,
		taxService:         taxService,
		contractService:    contractService,
		calculationService: calculationService,
		logger:             logger,
	}
}

// @Summary Calculate invoice totals
// @Tags Calculations
// @Accept json
// @Produce json
// @Param request body dto.InvoiceTotalsRequest true "Lines and discount"
// @Success 200 {object} dto.InvoiceTotalsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /calculate/invoice-totals [post]
func (h *CalculationHandler) InvoiceTotals(c *gin.Context) {
	var req dto.InvoiceTotalsRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.invoiceService.CalculateTotals(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Calculate telecom tax
// @Tags Calculations
// @Accept json
// @Produce json
// @Param request body dto.CalculateTaxRequest true "Amount, service type and tax profile"
// @Success 200 {object} dto.CalculateTaxResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /calculate/tax [post]
func (h *CalculationHandler) Tax(c *gin.Context) {
	var req dto.CalculateTaxRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.taxService.CalculateTax(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Prorate an amount
// @Tags Calculations
// @Accept json
// @Produce json
// @Param request body dto.ProrationRequest true "Amount and covered dates"
// @Success 200 {object} dto.ProrationResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /calculate/proration [post]
func (h *CalculationHandler) Proration(c *gin.Context) {
	var req dto.ProrationRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.calculationService.Prorate(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Price a contract configuration
// @Tags Calculations
// @Accept json
// @Produce json
// @Param request body dto.CalculateContractBillingRequest true "Contract configuration"
// @Success 200 {object} dto.ContractBillingResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Router /calculate/contract-billing [post]
func (h *CalculationHandler) ContractBilling(c *gin.Context) {
	var req dto.CalculateContractBillingRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.contractService.CalculateConfiguration(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
