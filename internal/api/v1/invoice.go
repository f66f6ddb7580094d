package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	logger         *logger.Logger
}

func NewInvoiceHandler(invoiceService service.InvoiceService, logger *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// CreateInvoice godoc
// @Summary Create a new invoice
// @Description Create an invoice with its line items. Totals are derived from the items.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param invoice body dto.CreateInvoiceRequest true "Invoice details"
// @Success 201 {object} dto.InvoiceResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Errorw("failed to create invoice", "error", err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, invoice)
}

// GetInvoice godoc
// @Summary Get an invoice by ID
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// ListInvoices godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param filter query dto.InvoiceFilter false "Filter"
// @Success 200 {object} dto.ListInvoicesResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var filter dto.InvoiceFilter
	if !bindQuery(c, h.logger, &filter, &filter.QueryFilter) {
		return
	}

	resp, err := h.invoiceService.ListInvoices(c.Request.Context(), middleware.GetCompanyContext(c), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// AddItem godoc
// @Summary Add a line item
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param item body dto.CreateInvoiceItemRequest true "Line item"
// @Success 200 {object} dto.InvoiceResponse
// @Router /invoices/{id}/items [post]
func (h *InvoiceHandler) AddItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateInvoiceItemRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	invoice, err := h.invoiceService.AddItem(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// UpdateItem godoc
// @Summary Update a line item
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param item_id path string true "Item ID"
// @Param item body dto.UpdateInvoiceItemRequest true "Changed fields"
// @Success 200 {object} dto.InvoiceResponse
// @Router /invoices/{id}/items/{item_id} [put]
func (h *InvoiceHandler) UpdateItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	var req dto.UpdateInvoiceItemRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	invoice, err := h.invoiceService.UpdateItem(c.Request.Context(), middleware.GetCompanyContext(c), id, itemID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// RemoveItem godoc
// @Summary Remove a line item
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Param item_id path string true "Item ID"
// @Success 200 {object} dto.InvoiceResponse
// @Router /invoices/{id}/items/{item_id} [delete]
func (h *InvoiceHandler) RemoveItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.RemoveItem(c.Request.Context(), middleware.GetCompanyContext(c), id, itemID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// SetDiscount godoc
// @Summary Set the invoice discount
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param discount body dto.SetDiscountRequest true "Discount"
// @Success 200 {object} dto.InvoiceResponse
// @Router /invoices/{id}/discount [put]
func (h *InvoiceHandler) SetDiscount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.SetDiscountRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	invoice, err := h.invoiceService.SetDiscount(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Recalculate godoc
// @Summary Recalculate invoice totals
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Router /invoices/{id}/recalculate [post]
func (h *InvoiceHandler) Recalculate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.Recalculate(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}
