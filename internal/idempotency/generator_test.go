package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsStable(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{
		"company_id":   "comp_1",
		"recurring_id": "recur_1",
		"period_start": "2024-01-31",
	}

	a := g.GenerateKey(ScopeRecurringCycle, params)
	b := g.GenerateKey(ScopeRecurringCycle, map[string]interface{}{
		"period_start": "2024-01-31",
		"recurring_id": "recur_1",
		"company_id":   "comp_1",
	})
	assert.Equal(t, a, b)
	assert.Len(t, a, 24)
	assert.True(t, g.ValidateKey(ScopeRecurringCycle, params, a))

	assert.NotEqual(t, a, g.GenerateKey(ScopePayment, params))
	params["period_start"] = "2024-02-29"
	assert.NotEqual(t, a, g.GenerateKey(ScopeRecurringCycle, params))
}
