package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/errors"
)

func TestServiceDirectoryResolve(t *testing.T) {
	directory := NewServiceDirectory(map[string]string{
		"user-service":  "http://user-service.internal:8080",
		"email-service": "http://email-service.internal:8080/", // trailing slash
	})

	url, err := directory.Resolve("user-service", "/internal/jobs/cleanup")
	require.NoError(t, err)
	assert.Equal(t, "http://user-service.internal:8080/internal/jobs/cleanup", url)

	// Trailing slash on the base and a missing leading slash both normalize
	url, err = directory.Resolve("email-service", "internal/jobs/digest")
	require.NoError(t, err)
	assert.Equal(t, "http://email-service.internal:8080/internal/jobs/digest", url)
}

func TestServiceDirectoryResolveUnmapped(t *testing.T) {
	directory := NewServiceDirectory(nil)

	_, err := directory.Resolve("ghost-service", "/jobs/run")
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.False(t, directory.Has("ghost-service"))
}

func TestServiceDirectoryReplace(t *testing.T) {
	directory := NewServiceDirectory(map[string]string{
		"user-service": "http://old-host:8080",
	})

	directory.Replace(map[string]string{
		"email-service": "http://email-service.internal:8080",
	})

	assert.False(t, directory.Has("user-service"))
	assert.True(t, directory.Has("email-service"))
}
