package scheduler

// Wire contract between the scheduler and collaborator services. A job
// endpoint receives a JobContext as an HTTP POST body and answers with a
// JobResult. A non-2xx status is always treated as failure regardless of
// body content.

// ExecutionIDHeader carries the execution id on dispatch requests so the
// receiving service can correlate its logs independent of the body.
const ExecutionIDHeader = "X-Scheduler-Execution-Id"

// TriggerSource is the reason an execution started
type TriggerSource string

const (
	TriggerScheduler TriggerSource = "scheduler" // cron fire
	TriggerManual    TriggerSource = "manual"    // operator action
	TriggerAdmin     TriggerSource = "admin"     // administrative override
)

// Valid reports whether t is a known trigger source
func (t TriggerSource) Valid() bool {
	switch t {
	case TriggerScheduler, TriggerManual, TriggerAdmin:
		return true
	}
	return false
}

// JobContext is the payload sent to a collaborator's job endpoint
type JobContext struct {
	JobName     string                 `json:"jobName"`
	Config      map[string]interface{} `json:"config"`
	ExecutionID string                 `json:"executionId"`
	TriggeredBy TriggerSource          `json:"triggeredBy"`

	// TriggeredByUser is the resolved internal identity id, present only
	// for manual/admin triggers where resolution succeeded
	TriggeredByUser string `json:"triggeredByUser,omitempty"`
}

// JobResult is the expected response body from a collaborator
type JobResult struct {
	Success        bool                   `json:"success"`
	ItemsProcessed int                    `json:"itemsProcessed"`
	ItemsSucceeded int                    `json:"itemsSucceeded"`
	ItemsFailed    int                    `json:"itemsFailed"`
	Error          string                 `json:"error,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
