package config

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Realtime.URL)
	assert.Equal(t, 45, cfg.API.RequestTimeoutSeconds)
	assert.Equal(t, 2, cfg.API.ConnectRetries)
	assert.Equal(t, 1, cfg.API.TimeoutRetries)
	assert.Equal(t, 180, cfg.API.RenewalWindowSeconds)
	assert.Equal(t, 30, cfg.Cache.UserScopedTTLSeconds)
	assert.Equal(t, 300, cfg.Cache.ReferenceTTLSeconds)
	assert.Equal(t, 5, cfg.Realtime.ReconnectDelaySeconds)
	assert.Equal(t, 4, cfg.Realtime.HeartbeatSeconds)
	assert.Empty(t, cfg.Storage.Path)
}

func TestConfig_Overrides(t *testing.T) {
	lookup := envconfig.MapLookuper(map[string]string{
		"TANDEM_API_URL":              "https://api.example.com",
		"TANDEM_WS_URL":               "wss://api.example.com/ws",
		"TANDEM_REQUEST_TIMEOUT_SECS": "10",
		"TANDEM_STORAGE_PATH":         "/tmp/tandem.json",
	})

	cfg, err := load(context.Background(), lookup)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://api.example.com/ws", cfg.Realtime.URL)
	assert.Equal(t, 10, cfg.API.RequestTimeoutSeconds)
	assert.Equal(t, "/tmp/tandem.json", cfg.Storage.Path)
}

func TestConfig_InvalidTimeout(t *testing.T) {
	lookup := envconfig.MapLookuper(map[string]string{
		"TANDEM_REQUEST_TIMEOUT_SECS": "0",
	})

	_, err := load(context.Background(), lookup)
	assert.ErrorContains(t, err, "TANDEM_REQUEST_TIMEOUT_SECS")
}

func TestConfig_NegativeRetries(t *testing.T) {
	lookup := envconfig.MapLookuper(map[string]string{
		"TANDEM_CONNECT_RETRIES": "-1",
	})

	_, err := load(context.Background(), lookup)
	assert.ErrorContains(t, err, "retry counts")
}
