package config

import (
	"github.com/spf13/viper"
)

// SetDefaults registers default values on the given Viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "scheduler.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trigger_rate_per_minute", DefaultTriggerRate)
	v.SetDefault("server.trigger_burst", DefaultTriggerBurst)

	v.SetDefault("dispatch.timeout_seconds", DefaultDispatchTimeout)

	// identity.service intentionally has no default: identity resolution is
	// disabled until an operator maps the identity collaborator in [services]
	v.SetDefault("identity.service", "")
	v.SetDefault("identity.endpoint", "/api/internal/users/resolve")

	v.SetDefault("services", map[string]string{})
}
