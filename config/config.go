package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API      APIConfig
	Cache    CacheConfig
	Realtime RealtimeConfig
	Storage  StorageConfig
}

type APIConfig struct {
	BaseURL string `env:"TANDEM_API_URL, default=http://localhost:8080"`

	RequestTimeoutSeconds int `env:"TANDEM_REQUEST_TIMEOUT_SECS, default=45"`
	ConnectRetries        int `env:"TANDEM_CONNECT_RETRIES, default=2"`
	TimeoutRetries        int `env:"TANDEM_TIMEOUT_RETRIES, default=1"`
	RetryBackoffSeconds   int `env:"TANDEM_RETRY_BACKOFF_SECS, default=1"`

	// RenewalWindowSeconds is the margin before access token expiry at
	// which the background renewer considers the token due for renewal.
	RenewalWindowSeconds int `env:"TANDEM_RENEWAL_WINDOW_SECS, default=180"`
}

type CacheConfig struct {
	// UserScopedTTLSeconds applies to per-user collections (skill lists).
	UserScopedTTLSeconds int `env:"TANDEM_CACHE_USER_TTL_SECS, default=30"`

	// ReferenceTTLSeconds applies to slow-changing reference data (the
	// global skill catalogue).
	ReferenceTTLSeconds int `env:"TANDEM_CACHE_REFERENCE_TTL_SECS, default=300"`
}

type RealtimeConfig struct {
	URL string `env:"TANDEM_WS_URL, default=ws://localhost:8080/ws"`

	ReconnectDelaySeconds int `env:"TANDEM_RECONNECT_DELAY_SECS, default=5"`
	HeartbeatSeconds      int `env:"TANDEM_HEARTBEAT_SECS, default=4"`
}

type StorageConfig struct {
	// Path of the credential storage file. Empty selects in-memory
	// storage, which does not survive a restart.
	Path string `env:"TANDEM_STORAGE_PATH"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values that would leave the
// client unable to operate.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("TANDEM_API_URL must be set")
	}
	if c.Realtime.URL == "" {
		return fmt.Errorf("TANDEM_WS_URL must be set")
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("TANDEM_REQUEST_TIMEOUT_SECS must be positive")
	}
	if c.API.ConnectRetries < 0 || c.API.TimeoutRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	return nil
}
