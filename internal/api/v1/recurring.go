package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type RecurringInvoiceHandler struct {
	service service.RecurringInvoiceService
	clock   clock.Clock
	logger  *logger.Logger
}

func NewRecurringInvoiceHandler(service service.RecurringInvoiceService, clock clock.Clock, logger *logger.Logger) *RecurringInvoiceHandler {
	return &RecurringInvoiceHandler{service: service, clock: clock, logger: logger}
}

// @Summary Create a recurring invoice
// @Tags RecurringInvoices
// @Accept json
// @Produce json
// @Param recurring body dto.CreateRecurringInvoiceRequest true "Schedule"
// @Success 201 {object} dto.RecurringInvoiceResponse
// @Router /recurring-invoices [post]
func (h *RecurringInvoiceHandler) CreateRecurringInvoice(c *gin.Context) {
	var req dto.CreateRecurringInvoiceRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.CreateRecurringInvoice(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a recurring invoice
// @Tags RecurringInvoices
// @Produce json
// @Param id path string true "Recurring invoice ID"
// @Success 200 {object} dto.RecurringInvoiceResponse
// @Router /recurring-invoices/{id} [get]
func (h *RecurringInvoiceHandler) GetRecurringInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetRecurringInvoice(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List recurring invoices
// @Tags RecurringInvoices
// @Produce json
// @Param filter query dto.RecurringInvoiceFilter false "Filter"
// @Success 200 {object} dto.ListRecurringInvoicesResponse
// @Router /recurring-invoices [get]
func (h *RecurringInvoiceHandler) ListRecurringInvoices(c *gin.Context) {
	var filter dto.RecurringInvoiceFilter
	if !bindQuery(c, h.logger, &filter, &filter.QueryFilter) {
		return
	}

	resp, err := h.service.ListRecurringInvoices(c.Request.Context(), middleware.GetCompanyContext(c), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a recurring invoice
// @Tags RecurringInvoices
// @Produce json
// @Param id path string true "Recurring invoice ID"
// @Success 200 {object} dto.RecurringInvoiceResponse
// @Router /recurring-invoices/{id}/cancel [post]
func (h *RecurringInvoiceHandler) CancelRecurringInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.CancelRecurringInvoice(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Bill the next cycle of a recurring invoice
// @Tags RecurringInvoices
// @Accept json
// @Produce json
// @Param id path string true "Recurring invoice ID"
// @Param request body dto.AdvanceRecurringInvoiceRequest false "Target date and usage"
// @Success 200 {object} dto.AdvanceRecurringInvoiceResponse
// @Router /recurring-invoices/{id}/advance [post]
func (h *RecurringInvoiceHandler) AdvanceRecurringCycle(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AdvanceRecurringInvoiceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.AdvanceRecurringCycle(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Run the company's due recurring invoices
// @Tags RecurringInvoices
// @Accept json
// @Produce json
// @Param request body dto.ProcessDueRequest false "As-of time"
// @Success 200 {object} dto.ProcessDueResponse
// @Router /recurring-invoices/process-due [post]
func (h *RecurringInvoiceHandler) ProcessDue(c *gin.Context) {
	var req dto.ProcessDueRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	asOf := h.clock.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	resp, err := h.service.ProcessDue(c.Request.Context(), middleware.GetCompanyContext(c), asOf)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
