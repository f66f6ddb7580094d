package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxCompanyID     ContextKey = "ctx_company_id"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	// SystemUserID is the actor recorded for mutations made by the scheduler.
	SystemUserID = "system"
)

// CompanyContext identifies the tenant and actor of an operation. It is passed
// explicitly to every service call instead of being read from ambient state.
type CompanyContext struct {
	CompanyID string `json:"company_id" validate:"required"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

// Actor returns the user recorded on audit entries.
func (c CompanyContext) Actor() string {
	if c.UserID == "" {
		return SystemUserID
	}
	return c.UserID
}

// Into stores the company context on ctx so loggers can pick it up.
func (c CompanyContext) Into(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, CtxCompanyID, c.CompanyID)
	if c.UserID != "" {
		ctx = context.WithValue(ctx, CtxUserID, c.UserID)
	}
	if c.RequestID != "" {
		ctx = context.WithValue(ctx, CtxRequestID, c.RequestID)
	}
	return ctx
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetCompanyID(ctx context.Context) string {
	if companyID, ok := ctx.Value(CtxCompanyID).(string); ok {
		return companyID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}
