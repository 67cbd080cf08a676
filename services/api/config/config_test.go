package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "API_PORT", "API_BEARER_TOKEN", "CORS_ALLOWED_ORIGINS", "METADATA_ENDPOINT"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8020, cfg.Port)
	assert.Equal(t, ":8020", cfg.ListenAddr())
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.BearerToken)
	assert.Equal(t, "http://localhost:8018/istsos4/v1.1", cfg.Harvest.Endpoint)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_PORT", "9000")
	t.Setenv("API_BEARER_TOKEN", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "secret", cfg.BearerToken)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)

	t.Setenv("PORT", "9100")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "http")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPropagatesHarvestConfigErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("METADATA_ENDPOINT", "ftp://nowhere")
	_, err := Load()
	assert.Error(t, err)
}
