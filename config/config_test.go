package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/var/lib/scheduler/scheduler.db"

[server]
port = 4500

[dispatch]
timeout_seconds = 60

[services]
user-service = "http://user-service.internal:3000"
email-service = "http://email-service.internal:3100"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scheduler/scheduler.db", cfg.Database.Path)
	assert.Equal(t, 4500, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Dispatch.TimeoutSeconds)
	assert.Equal(t, "http://user-service.internal:3000", cfg.Services["user-service"])
	assert.Equal(t, "http://email-service.internal:3100", cfg.Services["email-service"])
}

func TestLoadFromFileDefaults(t *testing.T) {
	path := writeConfig(t, `
[services]
user-service = "http://localhost:3000"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDispatchTimeout, cfg.Dispatch.TimeoutSeconds)
	assert.Equal(t, "scheduler.db", cfg.Database.Path)
}

func TestValidateRejectsBadServiceURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"relative", "/api/only-a-path"},
		{"no host", "http://"},
		{"bad scheme", "ftp://files.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
[services]
broken-service = "`+tt.url+`"
`)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "broken-service")
		})
	}
}

func TestValidateRejectsUnmappedIdentityService(t *testing.T) {
	path := writeConfig(t, `
[identity]
service = "user-service"

[services]
email-service = "http://email-service.internal:3100"
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user-service")
}

func TestValidateRejectsBadPort(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 99999
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Path = "test.db"
	cfg.Server.Port = 4400
	cfg.Dispatch.TimeoutSeconds = 30
	cfg.Services = map[string]string{
		"user-service": "http://localhost:3000",
	}

	path := filepath.Join(t.TempDir(), "scheduler.toml")
	require.NoError(t, WriteFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Database.Path, loaded.Database.Path)
	assert.Equal(t, cfg.Server.Port, loaded.Server.Port)
	assert.Equal(t, cfg.Dispatch.TimeoutSeconds, loaded.Dispatch.TimeoutSeconds)
	assert.Equal(t, cfg.Services, loaded.Services)
}
