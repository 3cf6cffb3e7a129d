package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/logger"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
[services]
user-service = "http://localhost:3000"
`)

	w, err := NewWatcher(path, logger.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})
	w.Start()

	// Rewrite the file with a new service mapping
	err = os.WriteFile(path, []byte(`
[services]
user-service = "http://localhost:3000"
email-service = "http://localhost:3100"
`), 0o644)
	require.NoError(t, err)

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "http://localhost:3100", cfg.Services["email-service"])
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidWrite(t *testing.T) {
	path := writeConfig(t, `
[services]
user-service = "http://localhost:3000"
`)

	w, err := NewWatcher(path, logger.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan struct{}, 1)
	w.OnReload(func(cfg *Config) error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})
	w.Start()

	// Invalid service URL must not trigger a reload callback
	err = os.WriteFile(path, []byte(`
[services]
user-service = "not a url"
`), 0o644)
	require.NoError(t, err)

	select {
	case <-reloaded:
		t.Fatal("callback fired for invalid config")
	case <-time.After(1500 * time.Millisecond):
		// Expected: invalid config swallowed, previous config kept
	}
}
