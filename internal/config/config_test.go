package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mspfin/billing-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigReadsYAML(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, types.ModeLocal, cfg.Deployment.Mode)
	assert.Equal(t, "0.20", cfg.Billing.FederalExciseThreshold.StringFixed(2))
	assert.Equal(t, "33.4", cfg.Billing.USFContributionFactor.String())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.LockTTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, uint64(3), cfg.Scheduler.MaxRetries)
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("BILLING_BILLING_USF_CONTRIBUTION_FACTOR", "36.6")
	t.Setenv("BILLING_SCHEDULER_LOCK_TTL", "1m")
	t.Setenv("BILLING_DEPLOYMENT_MODE", "api")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "36.6", cfg.Billing.USFContributionFactor.String())
	assert.Equal(t, time.Minute, cfg.Scheduler.LockTTL)
	assert.Equal(t, types.ModeAPI, cfg.Deployment.Mode)
}

func TestValidateRejectsUnknownLateFee(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Billing.LateFee.Type = "compound"
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvFilesFeedsNewConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"BILLING_BILLING_USF_CONTRIBUTION_FACTOR=36.6\nBILLING_DEPLOYMENT_MODE=scheduler\n"), 0o600))

	// the process environment wins over the file
	t.Setenv("BILLING_DEPLOYMENT_MODE", "api")
	t.Cleanup(func() { os.Unsetenv("BILLING_BILLING_USF_CONTRIBUTION_FACTOR") })

	require.NoError(t, LoadEnvFiles(path))

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "36.6", cfg.Billing.USFContributionFactor.String())
	assert.Equal(t, types.ModeAPI, cfg.Deployment.Mode)
}

func TestLoadEnvFilesSkipsMissingFile(t *testing.T) {
	assert.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadEnvFilesRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BILLING_DEPLOYMENT_MODE='unterminated\n"), 0o600))

	assert.Error(t, LoadEnvFiles(path))
}
