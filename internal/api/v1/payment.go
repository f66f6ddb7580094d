package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

// @Summary Apply a payment to one invoice
// @Description Records the payment and returns the invoice's new balance. Replaying an idempotency key returns the first result.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payment body dto.ApplyPaymentRequest true "Payment"
// @Success 201 {object} dto.ApplyPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) ApplyPayment(c *gin.Context) {
	var req dto.ApplyPaymentRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.ApplyPayment(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(statusFor(resp.AlreadyApplied), resp)
}

// @Summary Allocate a payment across a client's invoices
// @Tags Payments
// @Accept json
// @Produce json
// @Param payment body dto.AllocatePaymentRequest true "Payment and allocation order"
// @Success 201 {object} dto.AllocatePaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /payments/allocate [post]
func (h *PaymentHandler) AllocatePayment(c *gin.Context) {
	var req dto.AllocatePaymentRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.AllocatePayment(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(statusFor(resp.AlreadyApplied), resp)
}

// @Summary Refund a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param refund body dto.RefundPaymentRequest true "Refund"
// @Success 201 {object} dto.RefundPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RefundPaymentRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.ProcessRefund(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(statusFor(resp.AlreadyApplied), resp)
}

// @Summary Get a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} dto.PaymentResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetPayment(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List payments
// @Tags Payments
// @Produce json
// @Param filter query dto.PaymentFilter false "Filter"
// @Success 200 {object} dto.ListPaymentsResponse
// @Router /payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var filter dto.PaymentFilter
	if !bindQuery(c, h.log, &filter, &filter.QueryFilter) {
		return
	}

	resp, err := h.service.ListPayments(c.Request.Context(), middleware.GetCompanyContext(c), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Client balance
// @Tags Payments
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} dto.ClientBalanceResponse
// @Router /clients/{id}/balance [get]
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetBalance(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(replayed bool) int {
	if replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}
