package testutil

import (
	"context"

	"github.com/mspfin/billing-engine/internal/types"
)

const (
	DefaultCompanyID = "company_test"
	DefaultUserID    = "user_test"
)

func DefaultCompanyContext() types.CompanyContext {
	return types.CompanyContext{
		CompanyID: DefaultCompanyID,
		UserID:    DefaultUserID,
		RequestID: types.GenerateUUID(),
	}
}

func SetupContext() context.Context {
	return DefaultCompanyContext().Into(context.Background())
}
