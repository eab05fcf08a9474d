package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderThreshold, cfg.Provider)
	assert.Equal(t, 5*time.Minute, cfg.MaxSessionTTL)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Provider = "hsm"
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.MaxSessionTTL = 0
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.CapacityRequestsPerKilosecond = 0
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.CapacityValidDays = -1
	require.Error(t, cfg.Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("KEY_AUTHORITY_PROVIDER", "secretshare")
	t.Setenv("KEY_AUTHORITY_MAX_SESSION_TTL", "2m")
	t.Setenv("KEY_AUTHORITY_CHAIN_ID", "5")
	t.Setenv("KEY_AUTHORITY_TOKEN_SECRET", "hunter2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderSecretShare, cfg.Provider)
	assert.Equal(t, 2*time.Minute, cfg.MaxSessionTTL)
	assert.Equal(t, 5, cfg.ChainID)
	assert.Equal(t, "hunter2", cfg.TokenSecret)
	// Untouched options keep their defaults.
	assert.Equal(t, Defaults().Domain, cfg.Domain)
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("KEY_AUTHORITY_PROVIDER", "hsm")
	_, err := FromEnv()
	require.Error(t, err)
}
