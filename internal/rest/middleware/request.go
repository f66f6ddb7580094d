package middleware

import (
	"strings"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderUserID    = "X-User-ID"

	companyContextKey = "company_context"
)

func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	c.Request = c.Request.WithContext(types.SetRequestID(c.Request.Context(), requestID))
	c.Header(HeaderRequestID, requestID)

	c.Next()
}

// CompanyMiddleware reads the tenant and actor headers into a CompanyContext.
// Authentication happens in front of this service.
func CompanyMiddleware(c *gin.Context) {
	companyID := strings.TrimSpace(c.GetHeader(HeaderCompanyID))
	if companyID == "" {
		_ = c.Error(ierr.NewError("missing company header").
			WithHintf("The %s header is required", HeaderCompanyID).
			Mark(ierr.ErrPermissionDenied))
		c.Abort()
		return
	}

	cc := types.CompanyContext{
		CompanyID: companyID,
		UserID:    strings.TrimSpace(c.GetHeader(HeaderUserID)),
		RequestID: types.GetRequestID(c.Request.Context()),
	}
	c.Set(companyContextKey, cc)
	c.Request = c.Request.WithContext(cc.Into(c.Request.Context()))

	c.Next()
}

// GetCompanyContext returns the context stored by CompanyMiddleware.
func GetCompanyContext(c *gin.Context) types.CompanyContext {
	if v, ok := c.Get(companyContextKey); ok {
		if cc, ok := v.(types.CompanyContext); ok {
			return cc
		}
	}
	return types.CompanyContext{RequestID: types.GetRequestID(c.Request.Context())}
}
