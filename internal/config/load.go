package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables (prefix PROVISION_) take precedence
// over values from the config file. Returns a populated Config or an
// error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults cover everything.
	}

	v.SetEnvPrefix("PROVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the defaults for every tunable. The queue retry
// policy (3 attempts, 2s exponential base) and retention bounds (100
// completed / 500 failed) mirror the production settings of the system
// this replaces.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Secrets and endpoints have no usable defaults, but the keys must
	// exist for Unmarshal to see their environment variables.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.service_key", "")
	v.SetDefault("email.base_url", "")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.from_address", "")

	v.SetDefault("queue.worker_count", 5)
	v.SetDefault("queue.buffer_size", 100)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base_seconds", 2.0)
	v.SetDefault("queue.rate_per_second", 10.0)
	v.SetDefault("queue.rate_burst", 5)
	v.SetDefault("queue.keep_completed", 100)
	v.SetDefault("queue.keep_failed", 500)
	v.SetDefault("queue.stale_active_minutes", 30)
	v.SetDefault("queue.reaper_interval_minutes", 5)
	v.SetDefault("queue.mode_cache_ttl_seconds", 60)
	v.SetDefault("queue.guard_window_minutes", 60)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_millis", 1000)
	v.SetDefault("retry.exponential", true)
	v.SetDefault("retry.max_delay_seconds", 30.0)

	v.SetDefault("health.probe_timeout_seconds", 10)
	v.SetDefault("health.backoff_cap_seconds", 60)
	v.SetDefault("health.max_wait_attempts", 10)
}
