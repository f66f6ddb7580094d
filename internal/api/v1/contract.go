package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/gin-gonic/gin"
)

type ContractHandler struct {
	service service.ContractService
	logger  *logger.Logger
}

func NewContractHandler(service service.ContractService, logger *logger.Logger) *ContractHandler {
	return &ContractHandler{service: service, logger: logger}
}

// @Summary Create a contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param contract body dto.CreateContractRequest true "Contract"
// @Success 201 {object} dto.ContractResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Router /contracts [post]
func (h *ContractHandler) CreateContract(c *gin.Context) {
	var req dto.CreateContractRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.CreateContract(c.Request.Context(), middleware.GetCompanyContext(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a contract
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} dto.ContractResponse
// @Router /contracts/{id} [get]
func (h *ContractHandler) GetContract(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetContract(c.Request.Context(), middleware.GetCompanyContext(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List contracts
// @Tags Contracts
// @Produce json
// @Param filter query dto.ContractFilter false "Filter"
// @Success 200 {object} dto.ListContractsResponse
// @Router /contracts [get]
func (h *ContractHandler) ListContracts(c *gin.Context) {
	var filter dto.ContractFilter
	if !bindQuery(c, h.logger, &filter, &filter.QueryFilter) {
		return
	}

	resp, err := h.service.ListContracts(c.Request.Context(), middleware.GetCompanyContext(c), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Update a contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param contract body dto.UpdateContractRequest true "Contract"
// @Success 200 {object} dto.ContractResponse
// @Router /contracts/{id} [put]
func (h *ContractHandler) UpdateContract(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateContractRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.UpdateContract(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Archive a contract
// @Tags Contracts
// @Param id path string true "Contract ID"
// @Success 204
// @Router /contracts/{id}/archive [post]
func (h *ContractHandler) ArchiveContract(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.ArchiveContract(c.Request.Context(), middleware.GetCompanyContext(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Calculate the period charge of a contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param request body dto.ContractBillingRequest false "As-of date and usage override"
// @Success 200 {object} dto.ContractBillingResponse
// @Router /contracts/{id}/billing [post]
func (h *ContractHandler) CalculateBilling(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ContractBillingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	resp, err := h.service.CalculateBilling(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Annual value of a contract
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Param as_of query string false "As-of date"
// @Success 200 {object} dto.AnnualValueResponse
// @Router /contracts/{id}/annual-value [get]
func (h *ContractHandler) AnnualValue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.ContractBillingRequest
	if !bindQuery(c, h.logger, &req, nil) {
		return
	}

	resp, err := h.service.AnnualValue(c.Request.Context(), middleware.GetCompanyContext(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
