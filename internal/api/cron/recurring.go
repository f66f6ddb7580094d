package cron

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/clock"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

// RecurringInvoiceHandler lets an external scheduler trigger the billing run
// that the in-process scheduler otherwise performs.
type RecurringInvoiceHandler struct {
	service service.RecurringInvoiceService
	clock   clock.Clock
	logger  *logger.Logger
}

func NewRecurringInvoiceHandler(service service.RecurringInvoiceService, clock clock.Clock, logger *logger.Logger) *RecurringInvoiceHandler {
	return &RecurringInvoiceHandler{
		service: service,
		clock:   clock,
		logger:  logger,
	}
}

// ProcessAllDueResponse summarises a billing run over every company
type ProcessAllDueResponse struct {
	Companies []*dto.ProcessDueResponse `json:"companies"`
	Processed int                       `json:"processed"`
	Failed    int                       `json:"failed"`
}

// ProcessAllDue bills every due recurring invoice of every company
func (h *RecurringInvoiceHandler) ProcessAllDue(c *gin.Context) {
	var req dto.ProcessDueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Errorw("failed to parse request parameters", "error", err)
			_ = c.Error(ierr.WithError(err).WithHint("Invalid request parameters").Mark(ierr.ErrValidation))
			return
		}
	}

	asOf := h.clock.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	h.logger.Infow("starting recurring invoice billing run", "as_of", asOf)

	companies, err := h.service.ProcessAllDue(c.Request.Context(), asOf)
	if err != nil {
		h.logger.Errorw("billing run failed", "error", err)
		_ = c.Error(err)
		return
	}

	response := &ProcessAllDueResponse{Companies: companies}
	for _, company := range companies {
		response.Processed += company.Processed
		response.Failed += company.Failed
	}

	h.logger.Infow("completed recurring invoice billing run",
		"companies", len(companies),
		"processed", response.Processed,
		"failed", response.Failed)

	c.JSON(http.StatusOK, response)
}
