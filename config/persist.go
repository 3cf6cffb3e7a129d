package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/feedline/scheduler/errors"
)

// Marshal renders the configuration as TOML, as written to scheduler.toml
// and printed by `schedulerd config show`.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := toml.Marshal(persistFormOf(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return out, nil
}

// WriteFile persists the configuration to the given path.
func WriteFile(cfg *Config, path string) error {
	out, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", path)
	}
	return nil
}

// persistForm mirrors Config with toml tags matching the mapstructure keys,
// so a written file round-trips through Load.
type persistForm struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Server struct {
		Port                 int      `toml:"port"`
		AllowedOrigins       []string `toml:"allowed_origins"`
		TriggerRatePerMinute int      `toml:"trigger_rate_per_minute"`
		TriggerBurst         int      `toml:"trigger_burst"`
	} `toml:"server"`
	Dispatch struct {
		TimeoutSeconds int `toml:"timeout_seconds"`
	} `toml:"dispatch"`
	Identity struct {
		Service  string `toml:"service"`
		Endpoint string `toml:"endpoint"`
	} `toml:"identity"`
	Services map[string]string `toml:"services"`
}

func persistFormOf(cfg *Config) persistForm {
	var p persistForm
	p.Database.Path = cfg.Database.Path
	p.Server.Port = cfg.Server.Port
	p.Server.AllowedOrigins = cfg.Server.AllowedOrigins
	p.Server.TriggerRatePerMinute = cfg.Server.TriggerRatePerMinute
	p.Server.TriggerBurst = cfg.Server.TriggerBurst
	p.Dispatch.TimeoutSeconds = cfg.Dispatch.TimeoutSeconds
	p.Identity.Service = cfg.Identity.Service
	p.Identity.Endpoint = cfg.Identity.Endpoint
	p.Services = cfg.Services
	return p
}
