package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerIsNeverNil(t *testing.T) {
	// Package init installs a no-op logger before Initialize is called
	require.NotNil(t, Logger)

	// Logging before Initialize must not panic
	assert.NotPanics(t, func() {
		Logger.Infow("pre-init log", "key", "value")
	})
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)
}

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)
}

func TestInitializeVerbose(t *testing.T) {
	err := InitializeVerbose(false)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		Logger.Debugw("debug message", "detail", 42)
	})
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	require.NotNil(t, log)
	assert.NotPanics(t, func() {
		log.Errorw("swallowed", "error", "nothing happens")
	})
}
