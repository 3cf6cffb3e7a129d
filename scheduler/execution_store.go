package scheduler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedline/scheduler/errors"
)

// ExecutionStore handles persistence of the execution ledger
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a new execution ledger store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// CreateExecution inserts a new ledger row. Called with status 'running'
// before the dispatch call is made, so a crash mid-call leaves a visible
// stuck record rather than losing the run entirely.
func (s *ExecutionStore) CreateExecution(rec *ExecutionRecord) error {
	metadataJSON, err := marshalConfig(rec.Metadata)
	if err != nil {
		return errors.Wrapf(err, "execution %s: invalid metadata", rec.ID)
	}

	var completedAt, errorMessage, triggeredByUser interface{}
	var durationMs interface{}
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339)
	}
	if rec.DurationMs != nil {
		durationMs = *rec.DurationMs
	}
	if rec.ErrorMessage != nil {
		errorMessage = *rec.ErrorMessage
	}
	if rec.TriggeredByUser != nil {
		triggeredByUser = *rec.TriggeredByUser
	}

	query := `
		INSERT INTO executions (
			id, job_name, job_type, status,
			started_at, completed_at, duration_ms,
			items_processed, items_succeeded, items_failed,
			error_message, metadata, triggered_by, triggered_by_user,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		rec.ID,
		rec.JobName,
		rec.JobType,
		rec.Status,
		rec.StartedAt.UTC().Format(time.RFC3339),
		completedAt,
		durationMs,
		rec.ItemsProcessed,
		rec.ItemsSucceeded,
		rec.ItemsFailed,
		errorMessage,
		metadataJSON,
		string(rec.TriggeredBy),
		triggeredByUser,
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	return nil
}

// FinalizeExecution transitions a running record to its terminal state.
// The WHERE clause only matches status = 'running', so a record can reach a
// terminal state exactly once; finalizing twice is an error.
func (s *ExecutionStore) FinalizeExecution(rec *ExecutionRecord) error {
	if rec.Status != ExecutionStatusCompleted && rec.Status != ExecutionStatusFailed {
		return errors.Newf("cannot finalize execution %s to non-terminal status %q", rec.ID, rec.Status)
	}

	metadataJSON, err := marshalConfig(rec.Metadata)
	if err != nil {
		return errors.Wrapf(err, "execution %s: invalid metadata", rec.ID)
	}

	var completedAt, errorMessage interface{}
	var durationMs interface{}
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339)
	}
	if rec.DurationMs != nil {
		durationMs = *rec.DurationMs
	}
	if rec.ErrorMessage != nil {
		errorMessage = *rec.ErrorMessage
	}

	query := `
		UPDATE executions
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    items_processed = ?,
		    items_succeeded = ?,
		    items_failed = ?,
		    error_message = ?,
		    metadata = ?,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		rec.Status,
		completedAt,
		durationMs,
		rec.ItemsProcessed,
		rec.ItemsSucceeded,
		rec.ItemsFailed,
		errorMessage,
		metadataJSON,
		time.Now().UTC().Format(time.RFC3339),
		rec.ID,
		ExecutionStatusRunning,
	)
	if err != nil {
		return errors.Wrap(err, "failed to finalize execution")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.Newf("execution %s is not running (missing or already terminal)", rec.ID)
	}

	return nil
}

// GetExecution retrieves a ledger row by id
func (s *ExecutionStore) GetExecution(id string) (*ExecutionRecord, error) {
	query := selectExecutionColumns + ` WHERE id = ?`

	rec, err := scanExecution(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("execution not found: %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}

	return rec, nil
}

// ListExecutions retrieves history for a job, most recent first, with the
// total row count for pagination. Tolerates job names with no history.
func (s *ExecutionStore) ListExecutions(jobName string, limit, offset int) ([]*ExecutionRecord, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM executions WHERE job_name = ?`, jobName,
	).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	query := selectExecutionColumns + `
		WHERE job_name = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.Query(query, jobName, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	executions := make([]*ExecutionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution")
		}
		executions = append(executions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating executions")
	}

	return executions, total, nil
}

// Stats aggregates ledger rows for a job within the window. Average duration
// covers completed records only; an empty history returns zeroed stats, not
// an error.
func (s *ExecutionStore) Stats(jobName string, windowDays int) (*JobStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays).Format(time.RFC3339)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = ? THEN duration_ms END), 0),
			COALESCE(SUM(items_processed), 0)
		FROM executions
		WHERE job_name = ? AND started_at >= ?
	`

	stats := &JobStats{JobName: jobName, WindowDays: windowDays}
	err := s.db.QueryRow(query,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCompleted,
		jobName,
		since,
	).Scan(
		&stats.TotalExecutions,
		&stats.Successful,
		&stats.Failed,
		&stats.AvgDurationMs,
		&stats.ItemsProcessed,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compute stats for job %q", jobName)
	}

	return stats, nil
}

// MarkStaleRunning fails any 'running' record older than the given age.
// This is an operator-invoked sweep for executions orphaned by a process
// crash; the scheduler never runs it automatically.
// Returns the number of records marked.
func (s *ExecutionStore) MarkStaleRunning(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query := `
		UPDATE executions
		SET status = ?,
		    error_message = ?,
		    updated_at = ?
		WHERE status = ? AND started_at < ?
	`

	message := fmt.Sprintf("marked stale: still running after %s (scheduler likely restarted mid-execution)", olderThan)
	result, err := s.db.Exec(query,
		ExecutionStatusFailed,
		message,
		time.Now().UTC().Format(time.RFC3339),
		ExecutionStatusRunning,
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark stale executions")
	}

	marked, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(marked), nil
}

// PurgeOlderThan deletes ledger rows older than the retention period.
// Returns the number of rows deleted.
func (s *ExecutionStore) PurgeOlderThan(retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	result, err := s.db.Exec(`DELETE FROM executions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge old executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(deleted), nil
}

const selectExecutionColumns = `
	SELECT id, job_name, job_type, status,
	       started_at, completed_at, duration_ms,
	       items_processed, items_succeeded, items_failed,
	       error_message, metadata, triggered_by, triggered_by_user,
	       created_at, updated_at
	FROM executions`

func scanExecution(row rowScanner) (*ExecutionRecord, error) {
	var rec ExecutionRecord
	var startedAt, createdAt, updatedAt, triggeredBy string
	var completedAt, errorMessage, metadataJSON, triggeredByUser sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&rec.ID,
		&rec.JobName,
		&rec.JobType,
		&rec.Status,
		&startedAt,
		&completedAt,
		&durationMs,
		&rec.ItemsProcessed,
		&rec.ItemsSucceeded,
		&rec.ItemsFailed,
		&errorMessage,
		&metadataJSON,
		&triggeredBy,
		&triggeredByUser,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.TriggeredBy = TriggerSource(triggeredBy)

	rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at for execution %s", rec.ID)
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for execution %s", rec.ID)
	}
	rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for execution %s", rec.ID)
	}

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse completed_at for execution %s", rec.ID)
		}
		rec.CompletedAt = &t
	}
	if durationMs.Valid {
		duration := int(durationMs.Int64)
		rec.DurationMs = &duration
	}
	if errorMessage.Valid {
		rec.ErrorMessage = &errorMessage.String
	}
	if triggeredByUser.Valid {
		rec.TriggeredByUser = &triggeredByUser.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to parse metadata for execution %s", rec.ID)
		}
	}

	return &rec, nil
}
