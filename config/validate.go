package config

import (
	"net/url"

	"github.com/feedline/scheduler/errors"
)

// Validate checks the configuration for values that would otherwise fail at
// runtime: every configured service base URL must be absolute and
// well-formed, and numeric limits must be sane.
func Validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Newf("server.port out of range: %d", cfg.Server.Port)
	}

	if cfg.Dispatch.TimeoutSeconds <= 0 {
		return errors.Newf("dispatch.timeout_seconds must be positive, got %d", cfg.Dispatch.TimeoutSeconds)
	}

	for name, baseURL := range cfg.Services {
		u, err := url.Parse(baseURL)
		if err != nil {
			return errors.Wrapf(err, "services.%s: invalid base URL %q", name, baseURL)
		}
		if !u.IsAbs() || u.Host == "" {
			return errors.Newf("services.%s: base URL must be absolute with a host, got %q", name, baseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Newf("services.%s: unsupported scheme %q", name, u.Scheme)
		}
	}

	if cfg.Identity.Service != "" {
		if _, ok := cfg.Services[cfg.Identity.Service]; !ok {
			// Identity resolution degrades gracefully at runtime, but a
			// configured identity service with no base URL is a config error.
			return errors.Newf("identity.service %q has no entry in [services]", cfg.Identity.Service)
		}
	}

	return nil
}
