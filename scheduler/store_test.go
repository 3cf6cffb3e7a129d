package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/internal/util"
)

func testJob(name string) *JobDefinition {
	return &JobDefinition{
		Name:           name,
		DisplayName:    "Cleanup Expired Sessions",
		Description:    "Deletes expired session rows nightly",
		CronExpression: "0 3 * * *",
		Enabled:        true,
		JobType:        "cleanup",
		Service:        "user-service",
		Endpoint:       "/internal/jobs/cleanup-sessions",
		Config:         map[string]interface{}{"batchSize": float64(500)},
	}
}

func TestUpsertAndGetJob(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	job := testJob("cleanup-sessions")
	require.NoError(t, store.UpsertJob(job))

	retrieved, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	assert.Equal(t, job.Name, retrieved.Name)
	assert.Equal(t, job.DisplayName, retrieved.DisplayName)
	assert.Equal(t, job.CronExpression, retrieved.CronExpression)
	assert.True(t, retrieved.Enabled)
	assert.Equal(t, job.Service, retrieved.Service)
	assert.Equal(t, job.Endpoint, retrieved.Endpoint)
	assert.Equal(t, job.Config, retrieved.Config)
	assert.Zero(t, retrieved.TotalRuns)
	assert.Nil(t, retrieved.LastRunAt)
	assert.False(t, retrieved.CreatedAt.IsZero())
}

func TestGetJobNotFound(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	_, err := store.GetJob("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpsertJobIsIdempotentAndPreservesCounters(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	job := testJob("cleanup-sessions")
	require.NoError(t, store.UpsertJob(job))
	require.NoError(t, store.RecordRun("cleanup-sessions", true, time.Now().UTC()))

	first, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalRuns)

	// Re-registering (the owning service restarted) overwrites mutable
	// fields but must not reset counters or created_at
	updated := testJob("cleanup-sessions")
	updated.CronExpression = "0 4 * * *"
	updated.Description = "Now runs at 4am"
	require.NoError(t, store.UpsertJob(updated))

	second, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	assert.Equal(t, "0 4 * * *", second.CronExpression)
	assert.Equal(t, "Now runs at 4am", second.Description)
	assert.Equal(t, 1, second.TotalRuns)
	assert.Equal(t, 1, second.SuccessfulRuns)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestListJobsOrderedByName(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	for _, name := range []string{"zeta-report", "alpha-cleanup", "mid-digest"} {
		require.NoError(t, store.UpsertJob(testJob(name)))
	}

	jobs, err := store.ListJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "alpha-cleanup", jobs[0].Name)
	assert.Equal(t, "mid-digest", jobs[1].Name)
	assert.Equal(t, "zeta-report", jobs[2].Name)
}

func TestSetEnabled(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	require.NoError(t, store.UpsertJob(testJob("cleanup-sessions")))
	require.NoError(t, store.SetEnabled("cleanup-sessions", false))

	job, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	assert.False(t, job.Enabled)

	err = store.SetEnabled("missing", true)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSetNextRunAt(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	require.NoError(t, store.UpsertJob(testJob("cleanup-sessions")))

	next := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetNextRunAt("cleanup-sessions", util.Ptr(next)))

	job, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, next, job.NextRunAt.UTC())

	// nil clears the column
	require.NoError(t, store.SetNextRunAt("cleanup-sessions", nil))
	job, err = store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	assert.Nil(t, job.NextRunAt)
}

func TestRecordRunCounters(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	require.NoError(t, store.UpsertJob(testJob("cleanup-sessions")))

	ranAt := time.Date(2026, 8, 30, 3, 0, 5, 0, time.UTC)
	require.NoError(t, store.RecordRun("cleanup-sessions", true, ranAt))
	require.NoError(t, store.RecordRun("cleanup-sessions", false, ranAt.Add(time.Hour)))
	require.NoError(t, store.RecordRun("cleanup-sessions", true, ranAt.Add(2*time.Hour)))

	job, err := store.GetJob("cleanup-sessions")
	require.NoError(t, err)
	assert.Equal(t, 3, job.TotalRuns)
	assert.Equal(t, 2, job.SuccessfulRuns)
	assert.Equal(t, 1, job.FailedRuns)
	require.NotNil(t, job.LastRunAt)
	assert.Equal(t, ranAt.Add(2*time.Hour), job.LastRunAt.UTC())

	err = store.RecordRun("missing", true, ranAt)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDeleteJob(t *testing.T) {
	db := createTestDB(t)
	store := NewJobStore(db)

	require.NoError(t, store.UpsertJob(testJob("cleanup-sessions")))
	require.NoError(t, store.DeleteJob("cleanup-sessions"))

	_, err := store.GetJob("cleanup-sessions")
	assert.True(t, errors.IsNotFoundError(err))

	err = store.DeleteJob("cleanup-sessions")
	assert.True(t, errors.IsNotFoundError(err))
}
