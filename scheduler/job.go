// Package scheduler implements the centralized job scheduler core: a
// registry of cron-driven jobs dispatched as HTTP calls to owning services,
// with durable execution tracking and derived statistics.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feedline/scheduler/errors"
)

// JobDefinition describes a scheduled task. The actual work lives in a
// collaborator service; the scheduler only knows how to reach it.
type JobDefinition struct {
	// Name is the unique identifier and immutable key
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	CronExpression string `json:"cron_expression"`
	Enabled        bool   `json:"enabled"`
	// JobType is a free-form category tag, e.g. "cleanup", "email"
	JobType string `json:"job_type"`
	// Service is the logical name of the owning collaborator service;
	// Endpoint is the path on that service to POST to
	Service  string                 `json:"service"`
	Endpoint string                 `json:"endpoint"`
	Config   map[string]interface{} `json:"config,omitempty"`

	// Run counters are operator-convenience caches maintained alongside the
	// ledger; the executions table is authoritative.
	TotalRuns      int        `json:"total_runs"`
	SuccessfulRuns int        `json:"successful_runs"`
	FailedRuns     int        `json:"failed_runs"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// cronParser accepts standard 5-field cron expressions plus an optional
// leading seconds field and @-descriptors. All schedules evaluate in UTC.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCronExpression validates a cron expression, returning the parsed
// schedule or ErrInvalidSchedule.
func ParseCronExpression(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, errors.NewInvalidScheduleError("cron expression is empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidSchedule, "cannot parse %q: %v", expr, err)
	}
	return schedule, nil
}

// Validate checks a definition for registration. Cron validation happens
// here so a bad expression is rejected before anything is persisted.
func (j *JobDefinition) Validate() error {
	if j.Name == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "job name is required")
	}
	if j.Service == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "job %q: service is required", j.Name)
	}
	if j.Endpoint == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "job %q: endpoint is required", j.Name)
	}
	if _, err := ParseCronExpression(j.CronExpression); err != nil {
		return err
	}
	return nil
}
