package memory

import (
	"context"

	"github.com/mspfin/billing-engine/internal/postgres"
)

// TxClient satisfies postgres.IClient for the in-memory stores. fn runs
// without isolation; writes made before an error are kept.
type TxClient struct{}

var _ postgres.IClient = (*TxClient)(nil)

func NewTxClient() *TxClient {
	return &TxClient{}
}

func (c *TxClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// Querier is never used by the in-memory stores.
func (c *TxClient) Querier(ctx context.Context) postgres.Querier {
	return nil
}
