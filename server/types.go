package server

import "github.com/feedline/scheduler/scheduler"

// RegisterJobRequest is the body for POST /api/jobs. Registration is
// idempotent by name; owning services call this at their own startup.
type RegisterJobRequest struct {
	Name           string                 `json:"name"`
	DisplayName    string                 `json:"display_name"`
	Description    string                 `json:"description"`
	CronExpression string                 `json:"cron_expression"`
	Enabled        *bool                  `json:"enabled"` // defaults to true when omitted
	JobType        string                 `json:"job_type"`
	Service        string                 `json:"service"`
	Endpoint       string                 `json:"endpoint"`
	Config         map[string]interface{} `json:"config"`
}

func (r *RegisterJobRequest) toDefinition() *scheduler.JobDefinition {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &scheduler.JobDefinition{
		Name:           r.Name,
		DisplayName:    r.DisplayName,
		Description:    r.Description,
		CronExpression: r.CronExpression,
		Enabled:        enabled,
		JobType:        r.JobType,
		Service:        r.Service,
		Endpoint:       r.Endpoint,
		Config:         r.Config,
	}
}

// ListJobsResponse is the body for GET /api/jobs
type ListJobsResponse struct {
	Jobs  []*scheduler.JobStatus `json:"jobs"`
	Count int                    `json:"count"`
}

// RescheduleRequest is the body for PATCH /api/jobs/{name}/schedule
type RescheduleRequest struct {
	CronExpression string `json:"cron_expression"`
}

// TriggerRequest is the optional body for POST /api/jobs/{name}/trigger
type TriggerRequest struct {
	// Source is "manual" (default) or "admin"
	Source string `json:"source"`
	// ExternalUser is the caller's identity as known to the admin surface's
	// auth layer; resolved to an internal user id when possible
	ExternalUser string `json:"external_user"`
}

// TriggerResponse is the body for an asynchronous trigger (202 Accepted)
type TriggerResponse struct {
	ExecutionID string `json:"execution_id"`
	JobName     string `json:"job_name"`
	Status      string `json:"status"`
}

// ListExecutionsResponse is the body for GET /api/jobs/{name}/executions
type ListExecutionsResponse struct {
	Executions []*scheduler.ExecutionRecord `json:"executions"`
	Total      int                          `json:"total"`
	Limit      int                          `json:"limit"`
	Offset     int                          `json:"offset"`
}
