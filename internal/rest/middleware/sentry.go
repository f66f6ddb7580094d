package middleware

import (
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware captures panics and request performance, and tags the
// scope with the company once CompanyMiddleware has run.
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// SentryCompanyTags attaches the company and request ids to the request hub.
func SentryCompanyTags(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		cc := GetCompanyContext(c)
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("company_id", cc.CompanyID)
			scope.SetTag("request_id", cc.RequestID)
			if cc.UserID != "" {
				scope.SetUser(sentry.User{ID: cc.UserID})
			}
		})
	}
	c.Next()
}
