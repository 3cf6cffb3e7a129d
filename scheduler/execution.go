package scheduler

import "time"

// ExecutionRecord is one row of the execution ledger: a single attempt to
// run a job, created in 'running' state before the dispatch call and updated
// exactly once to a terminal state. Records are never mutated after reaching
// a terminal state.
//
// JobName and JobType are denormalized copies so history stays accurate even
// if the definition is later renamed, retyped, or deleted.
type ExecutionRecord struct {
	ID      string `json:"id"`
	JobName string `json:"job_name"`
	JobType string `json:"job_type"`

	Status string `json:"status"` // "running", "completed", "failed"

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int       `json:"duration_ms,omitempty"`

	// Item counts as reported by the job itself; zero if omitted
	ItemsProcessed int `json:"items_processed"`
	ItemsSucceeded int `json:"items_succeeded"`
	ItemsFailed    int `json:"items_failed"`

	ErrorMessage *string                `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	TriggeredBy     TriggerSource `json:"triggered_by"`
	TriggeredByUser *string       `json:"triggered_by_user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution status constants
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// JobStats aggregates ledger rows for one job over a time window. Average
// duration covers completed records only so a stuck 'running' row cannot
// skew it.
type JobStats struct {
	JobName         string  `json:"job_name"`
	WindowDays      int     `json:"window_days"`
	TotalExecutions int     `json:"total_executions"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	ItemsProcessed  int     `json:"items_processed"`
}
