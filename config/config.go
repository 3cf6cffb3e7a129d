// Package config provides viper-based configuration for the scheduler
// service: TOML file plus SCHEDULER_-prefixed environment variables, with an
// explicit, validated mapping from collaborator service names to base URLs.
package config

// Config represents the scheduler service configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Identity IdentityConfig `mapstructure:"identity"`

	// Services maps collaborator service names to base URLs,
	// e.g. user-service = "http://user-service.internal:3000".
	// A job referencing a service absent from this map is rejected at
	// registration time rather than silently falling back to a default.
	Services map[string]string `mapstructure:"services"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// TriggerRatePerMinute bounds manual/admin trigger requests across the
	// admin surface (token bucket). 0 disables the limit.
	TriggerRatePerMinute int `mapstructure:"trigger_rate_per_minute"`
	TriggerBurst         int `mapstructure:"trigger_burst"`
}

// DispatchConfig configures outbound job dispatch
type DispatchConfig struct {
	// TimeoutSeconds bounds each outbound HTTP call to a collaborator
	// service. A hung collaborator is treated as a failed execution once
	// the timeout elapses.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// IdentityConfig configures the identity collaborator used to resolve
// trigger identities to internal user ids
type IdentityConfig struct {
	Service  string `mapstructure:"service"`
	Endpoint string `mapstructure:"endpoint"`
}

// Default ports and limits
const (
	DefaultServerPort      = 4400
	DefaultDispatchTimeout = 120 // seconds
	DefaultTriggerRate     = 30  // per minute
	DefaultTriggerBurst    = 10
)
