package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Retry    RetryConfig    `mapstructure:"retry"    validate:"required"`
	Health   HealthConfig   `mapstructure:"health"   validate:"required"`
	Identity IdentityConfig `mapstructure:"identity" validate:"required"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains authentication settings for the operator surface.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// QueueConfig controls the durable queue and worker pool. The retry
// constants were fixed literals in the system this replaces; they are
// preserved as defaults but exposed here.
type QueueConfig struct {
	WorkerCount          int     `mapstructure:"worker_count"            validate:"required,gt=0"`
	BufferSize           int     `mapstructure:"buffer_size"             validate:"required,gt=0"`
	MaxAttempts          int     `mapstructure:"max_attempts"            validate:"required,gt=0"`
	BackoffBaseSeconds   float64 `mapstructure:"backoff_base_seconds"    validate:"required,gt=0"`
	RatePerSecond        float64 `mapstructure:"rate_per_second"         validate:"required,gt=0"`
	RateBurst            int     `mapstructure:"rate_burst"              validate:"required,gt=0"`
	KeepCompleted        int     `mapstructure:"keep_completed"          validate:"required,gt=0"`
	KeepFailed           int     `mapstructure:"keep_failed"             validate:"required,gt=0"`
	StaleActiveMinutes   int     `mapstructure:"stale_active_minutes"    validate:"required,gt=0"`
	ReaperIntervalMins   int     `mapstructure:"reaper_interval_minutes" validate:"required,gt=0"`
	ModeCacheTTLSeconds  int     `mapstructure:"mode_cache_ttl_seconds"  validate:"gte=0"`
	GuardWindowMinutes   int     `mapstructure:"guard_window_minutes"    validate:"required,gt=0"`
}

// RetryConfig holds the defaults for the generic retry wrapper used on
// calls into the identity and data stores.
type RetryConfig struct {
	MaxRetries      int     `mapstructure:"max_retries"       validate:"required,gte=0"`
	BaseDelayMillis int     `mapstructure:"base_delay_millis" validate:"required,gt=0"`
	Exponential     bool    `mapstructure:"exponential"`
	MaxDelaySeconds float64 `mapstructure:"max_delay_seconds" validate:"required,gt=0"`
}

// HealthConfig controls the health monitor's probe and backoff behavior.
type HealthConfig struct {
	ProbeTimeoutSeconds int `mapstructure:"probe_timeout_seconds" validate:"required,gt=0"`
	BackoffCapSeconds   int `mapstructure:"backoff_cap_seconds"   validate:"required,gt=0"`
	MaxWaitAttempts     int `mapstructure:"max_wait_attempts"     validate:"required,gt=0"`
}

// IdentityConfig points at the identity store's admin API.
type IdentityConfig struct {
	BaseURL    string `mapstructure:"base_url"    validate:"required,url"`
	ServiceKey string `mapstructure:"service_key" validate:"required"`
}

// EmailConfig points at the outbound email service. Optional: when the
// base URL is empty the welcome email step is skipped.
type EmailConfig struct {
	BaseURL     string `mapstructure:"base_url"     validate:"omitempty,url"`
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address" validate:"omitempty,email"`
}
