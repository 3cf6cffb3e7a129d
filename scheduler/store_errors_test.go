package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/internal/httpclient"
	"github.com/feedline/scheduler/logger"
)

// Persistence failure paths, driven through sqlmock so the database errors
// are deterministic.

func TestUpsertJobPersistenceFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").
		WillReturnError(errors.New("disk I/O error"))

	store := NewJobStore(db)
	err = store.UpsertJob(testJob("cleanup-sessions"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeExecutionPersistenceFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE executions").
		WillReturnError(errors.New("database is locked"))

	rec := runningRecord("cleanup-sessions", time.Now().UTC())
	rec.Status = ExecutionStatusCompleted

	store := NewExecutionStore(db)
	err = store.FinalizeExecution(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed ledger insert must abort the dispatch: the run is not allowed to
// happen unrecorded.
func TestBeginAbortsWhenLedgerCreateFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	job := testJob("cleanup-sessions")
	columns := []string{
		"name", "display_name", "description", "cron_expression", "enabled",
		"job_type", "service", "endpoint", "config",
		"total_runs", "successful_runs", "failed_runs",
		"last_run_at", "next_run_at", "created_at", "updated_at",
	}
	now := time.Now().UTC().Format(time.RFC3339)
	mock.ExpectQuery("SELECT (.+) FROM jobs").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			job.Name, job.DisplayName, job.Description, job.CronExpression, 1,
			job.JobType, job.Service, job.Endpoint, nil,
			0, 0, 0,
			nil, nil, now, now,
		))
	mock.ExpectExec("INSERT INTO executions").
		WillReturnError(errors.New("disk full"))

	dispatcher := NewDispatcher(
		NewJobStore(db),
		NewExecutionStore(db),
		NewServiceDirectory(map[string]string{"user-service": "http://unused.invalid"}),
		httpclient.New(time.Second),
		nil, nil, logger.NewNop(),
	)

	_, _, err = dispatcher.Begin(context.Background(), "cleanup-sessions", TriggerScheduler, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create execution record")

	assert.NoError(t, mock.ExpectationsWereMet())
}
