package v1

import (
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/gin-gonic/gin"
)

func bindJSON(c *gin.Context, log *logger.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.WithContext(c.Request.Context()).Errorw("failed to bind request", "error", err)
		_ = c.Error(ierr.WithError(err).WithHint("Invalid request format").Mark(ierr.ErrValidation))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, log *logger.Logger, filter any, qf *types.QueryFilter) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		log.WithContext(c.Request.Context()).Errorw("failed to bind query parameters", "error", err)
		_ = c.Error(ierr.WithError(err).WithHint("Invalid query parameters").Mark(ierr.ErrValidation))
		return false
	}
	if qf != nil && qf.Limit == 0 {
		qf.Limit = types.DefaultLimit
	}
	return true
}

func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if id == "" {
		_ = c.Error(ierr.Newf("%s is required", name).
			WithHintf("The %s path parameter is required", name).
			Mark(ierr.ErrValidation))
		return "", false
	}
	return id, true
}
