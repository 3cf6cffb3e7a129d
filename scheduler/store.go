package scheduler

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/feedline/scheduler/errors"
)

// JobStore handles persistence of job definitions
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new job definition store
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// UpsertJob inserts or updates a definition keyed by name. Registration is
// idempotent: re-registering overwrites the mutable fields and preserves run
// counters and created_at.
func (s *JobStore) UpsertJob(job *JobDefinition) error {
	configJSON, err := marshalConfig(job.Config)
	if err != nil {
		return errors.Wrapf(err, "job %q: invalid config", job.Name)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO jobs (
			name, display_name, description, cron_expression, enabled,
			job_type, service, endpoint, config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			cron_expression = excluded.cron_expression,
			enabled = excluded.enabled,
			job_type = excluded.job_type,
			service = excluded.service,
			endpoint = excluded.endpoint,
			config = excluded.config,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		job.Name,
		job.DisplayName,
		job.Description,
		job.CronExpression,
		boolToInt(job.Enabled),
		job.JobType,
		job.Service,
		job.Endpoint,
		configJSON,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert job %q", job.Name)
	}

	return nil
}

// GetJob retrieves a definition by name
func (s *JobStore) GetJob(name string) (*JobDefinition, error) {
	query := selectJobColumns + ` WHERE name = ?`

	row := s.db.QueryRow(query, name)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("job not found: %s", name)
		}
		return nil, errors.Wrapf(err, "failed to get job %q", name)
	}

	return job, nil
}

// ListJobs returns all definitions ordered by name
func (s *JobStore) ListJobs() ([]*JobDefinition, error) {
	query := selectJobColumns + ` ORDER BY name ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*JobDefinition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}

	return jobs, nil
}

// SetEnabled flips the enabled flag
func (s *JobStore) SetEnabled(name string, enabled bool) error {
	result, err := s.db.Exec(
		`UPDATE jobs SET enabled = ?, updated_at = ? WHERE name = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set enabled for job %q", name)
	}
	return requireRowAffected(result, name)
}

// SetCronExpression persists a new schedule for the job
func (s *JobStore) SetCronExpression(name, expr string) error {
	result, err := s.db.Exec(
		`UPDATE jobs SET cron_expression = ?, updated_at = ? WHERE name = ?`,
		expr, time.Now().UTC().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set cron expression for job %q", name)
	}
	return requireRowAffected(result, name)
}

// SetNextRunAt caches the next computed fire time on the job row. A nil time
// clears the column (job disabled or deleted from the driver).
func (s *JobStore) SetNextRunAt(name string, next *time.Time) error {
	var value interface{}
	if next != nil {
		value = next.UTC().Format(time.RFC3339)
	}

	result, err := s.db.Exec(
		`UPDATE jobs SET next_run_at = ?, updated_at = ? WHERE name = ?`,
		value, time.Now().UTC().Format(time.RFC3339), name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set next_run_at for job %q", name)
	}
	return requireRowAffected(result, name)
}

// RecordRun bumps the convenience counters after an execution reaches a
// terminal state
func (s *JobStore) RecordRun(name string, success bool, ranAt time.Time) error {
	successDelta := 0
	failedDelta := 0
	if success {
		successDelta = 1
	} else {
		failedDelta = 1
	}

	result, err := s.db.Exec(
		`UPDATE jobs
		 SET total_runs = total_runs + 1,
		     successful_runs = successful_runs + ?,
		     failed_runs = failed_runs + ?,
		     last_run_at = ?,
		     updated_at = ?
		 WHERE name = ?`,
		successDelta, failedDelta,
		ranAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		name,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record run for job %q", name)
	}
	return requireRowAffected(result, name)
}

// DeleteJob removes a definition. Execution history is retained.
func (s *JobStore) DeleteJob(name string) error {
	result, err := s.db.Exec(`DELETE FROM jobs WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete job %q", name)
	}
	return requireRowAffected(result, name)
}

const selectJobColumns = `
	SELECT name, display_name, description, cron_expression, enabled,
	       job_type, service, endpoint, config,
	       total_runs, successful_runs, failed_runs,
	       last_run_at, next_run_at, created_at, updated_at
	FROM jobs`

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*JobDefinition, error) {
	var job JobDefinition
	var enabled int
	var configJSON, lastRunAt, nextRunAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.Name,
		&job.DisplayName,
		&job.Description,
		&job.CronExpression,
		&enabled,
		&job.JobType,
		&job.Service,
		&job.Endpoint,
		&configJSON,
		&job.TotalRuns,
		&job.SuccessfulRuns,
		&job.FailedRuns,
		&lastRunAt,
		&nextRunAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Enabled = enabled != 0

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &job.Config); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config for job %q", job.Name)
		}
	}

	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %q", job.Name)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %q", job.Name)
	}

	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse last_run_at for job %q", job.Name)
		}
		job.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t, err := time.Parse(time.RFC3339, nextRunAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse next_run_at for job %q", job.Name)
		}
		job.NextRunAt = &t
	}

	return &job, nil
}

func marshalConfig(config map[string]interface{}) (interface{}, error) {
	if len(config) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(result sql.Result, name string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if affected == 0 {
		return errors.NewNotFoundError("job not found: %s", name)
	}
	return nil
}
