package config

import (
	"os"
	"path/filepath"
	"testing"

	"recpay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
app:
  name: recpay
  environment: test
payhero:
  base_url: https://backend.payhero.example/api/v2
  auth_token: Basic dGVzdDp0ZXN0
  channel_id: 5512
api:
  enabled: true
services:
  - id: "1"
    name: Basketball Court
    category: Sports
    price: 1500
    duration: 1 Hour
    available: true
`

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "recpay", cfg.App.Name)
	assert.Equal(t, 5512, cfg.PayHero.ChannelID)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, int64(1500), cfg.Services[0].Price)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "m-pesa", cfg.PayHero.Provider)
	assert.Equal(t, "254", cfg.PayHero.CountryCode)
	assert.Equal(t, 4, cfg.Payment.DeadTime)
	assert.Equal(t, 3, cfg.Payment.PollInterval)
	assert.Equal(t, 2, cfg.Payment.ManualEntryAfter)
	assert.Equal(t, 5, cfg.Payment.BypassAfter)
	assert.Equal(t, 3, cfg.Payment.WarningWindow)
	assert.Zero(t, cfg.Payment.MaxAttempts)
	assert.False(t, cfg.Payment.AllowDemoBypass)
	assert.Equal(t, models.DefaultRecommendCacheSeconds, cfg.Recommend.CacheTTL)
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("PAYHERO_TOKEN", "Basic c2VjcmV0")
	path := writeConfig(t, `
payhero:
  base_url: https://backend.payhero.example/api/v2
  auth_token: ${PAYHERO_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Basic c2VjcmV0", cfg.PayHero.AuthToken)
}

func TestLoadMissingToken(t *testing.T) {
	path := writeConfig(t, `
payhero:
  base_url: https://backend.payhero.example/api/v2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token is required")
}

func TestValidateServices(t *testing.T) {
	t.Run("DuplicateID", func(t *testing.T) {
		err := ValidateServices([]models.Service{
			{ID: "1", Name: "Court", Price: 100},
			{ID: "1", Name: "Pool", Price: 200},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate service ID")
	})

	t.Run("EmptyID", func(t *testing.T) {
		err := ValidateServices([]models.Service{{Name: "Court", Price: 100}})
		require.Error(t, err)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		err := ValidateServices([]models.Service{{ID: "1", Name: "Court", Price: 0}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-positive price")
	})

	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, ValidateServices([]models.Service{
			{ID: "1", Name: "Court", Price: 100},
			{ID: "2", Name: "Pool", Price: 200},
		}))
	})
}
