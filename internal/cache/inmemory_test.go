package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	cfg := config.GetDefaultConfig()
	c := NewInMemoryCache(cfg, logger.NewNoopLogger())

	key := GenerateKey(PrefixJurisdiction, "comp_1", "CA", "Los Angeles")
	assert.Equal(t, "jurisdiction:v1:comp_1:ca:los angeles", key)

	c.Set(ctx, key, "rows", 0)
	v, ok := c.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, "rows", v)

	c.Set(ctx, GenerateKey(PrefixJurisdiction, "comp_2", "CA"), "other", time.Minute)
	c.DeleteByPrefix(ctx, GenerateKey(PrefixJurisdiction, "comp_1"))

	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
	_, ok = c.Get(ctx, GenerateKey(PrefixJurisdiction, "comp_2", "CA"))
	assert.True(t, ok)
}

func TestInMemoryCacheDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := config.GetDefaultConfig()
	cfg.Cache.Enabled = false
	c := NewInMemoryCache(cfg, logger.NewNoopLogger())

	c.Set(ctx, "k", "v", time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
