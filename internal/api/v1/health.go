package v1

import (
	"net/http"

	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	config *config.Configuration
	clock  clock.Clock
}

func NewHealthHandler(config *config.Configuration, clock clock.Clock) *HealthHandler {
	return &HealthHandler{config: config, clock: clock}
}

// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"mode":   h.config.Deployment.Mode,
		"time":   h.clock.Now().UTC(),
	})
}
