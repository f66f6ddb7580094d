package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/gin-gonic/gin"
)

type TaxRateHandler struct {
	service service.TaxService
	logger  *logger.Logger
}

func NewTaxRateHandler(service service.TaxService, logger *logger.Logger) *TaxRateHandler {
	return &TaxRateHandler{
		service: service,
		logger:  logger,
	}
}

// @Summary Create a local tax rate
// @Tags TaxRates
// @Accept json
// @Produce json
// @Param rate body dto.CreateTaxRateRequest true "Tax rate"
// @Success 201 {object} dto.TaxRateResponse
// @Router /tax-rates [post]
func (h *TaxRateHandler) CreateTaxRate(c *gin.Context) {
	var req dto.CreateTaxRateRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.CreateTaxRate(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a tax rate
// @Tags TaxRates
// @Produce json
// @Param id path string true "Tax rate ID"
// @Success 200 {object} dto.TaxRateResponse
// @Router /tax-rates/{id} [get]
func (h *TaxRateHandler) GetTaxRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetTaxRate(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List tax rates
// @Tags TaxRates
// @Produce json
// @Param filter query types.QueryFilter false "Pagination"
// @Success 200 {object} dto.ListTaxRatesResponse
// @Router /tax-rates [get]
func (h *TaxRateHandler) ListTaxRates(c *gin.Context) {
	var filter types.QueryFilter
	if !bindQuery(c, h.logger, &filter, &filter) {
		return
	}

	resp, err := h.service.ListTaxRates(c.Request.Context(), middleware.GetCompanyContext(c), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Delete a tax rate
// @Tags TaxRates
// @Param id path string true "Tax rate ID"
// @Success 204
// @Router /tax-rates/{id} [delete]
func (h *TaxRateHandler) DeleteTaxRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteTaxRate(c.Request.Context(), middleware.GetCompanyContext(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
