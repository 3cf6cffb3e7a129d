package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/internal/httpclient"
)

// ExecutionBroadcaster receives execution lifecycle events for live operator
// feeds. Implemented by the server's WebSocket layer; a nil broadcaster
// disables events.
type ExecutionBroadcaster interface {
	BroadcastExecutionStarted(jobName, executionID string, triggeredBy TriggerSource)
	BroadcastExecutionCompleted(jobName, executionID string, result *JobResult, durationMs int)
	BroadcastExecutionFailed(jobName, executionID, errorMsg string, durationMs int)
}

// Dispatcher performs one job execution attempt end-to-end: ledger entry,
// HTTP call to the owning collaborator, ledger finalization. Runtime and
// network failures are fully contained here; they surface as a failed
// ExecutionRecord plus a JobResult with success=false, never as an error
// that could destabilize the cron driver or other jobs.
type Dispatcher struct {
	jobs        *JobStore
	executions  *ExecutionStore
	directory   *ServiceDirectory
	client      *httpclient.Client
	identity    IdentityResolver
	broadcaster ExecutionBroadcaster
	logger      *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. broadcaster may be nil.
func NewDispatcher(
	jobs *JobStore,
	executions *ExecutionStore,
	directory *ServiceDirectory,
	client *httpclient.Client,
	identity IdentityResolver,
	broadcaster ExecutionBroadcaster,
	logger *zap.SugaredLogger,
) *Dispatcher {
	if identity == nil {
		identity = NopIdentityResolver{}
	}
	return &Dispatcher{
		jobs:        jobs,
		executions:  executions,
		directory:   directory,
		client:      client,
		identity:    identity,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Execute runs one execution attempt end-to-end. It returns an error only
// when no execution could be recorded at all (unknown job, or the ledger
// create failed); once a ledger row exists, every outcome is reported
// through the returned record and JobResult.
//
// externalUser is the identity presented by the admin surface for
// manual/admin triggers; empty for scheduler fires.
func (d *Dispatcher) Execute(ctx context.Context, jobName string, trigger TriggerSource, externalUser string) (*JobResult, *ExecutionRecord, error) {
	job, record, err := d.Begin(ctx, jobName, trigger, externalUser)
	if err != nil {
		return nil, nil, err
	}
	result := d.Run(ctx, job, record)
	return result, record, nil
}

// Begin performs the pre-dispatch half of an execution: definition lookup,
// identity resolution, and creation of the running ledger row. Callers that
// want fire-and-record semantics can return the execution id to their
// client and hand the record to Run on a background goroutine.
func (d *Dispatcher) Begin(ctx context.Context, jobName string, trigger TriggerSource, externalUser string) (*JobDefinition, *ExecutionRecord, error) {
	// A concurrent delete can race this lookup; not-found is a normal
	// outcome, not a crash
	job, err := d.jobs.GetJob(jobName)
	if err != nil {
		return nil, nil, err
	}

	// Identity hiccups never block operational jobs: degrade to no user
	var triggeredByUser *string
	if externalUser != "" && trigger != TriggerScheduler {
		resolved, err := d.identity.Resolve(ctx, externalUser)
		if err != nil {
			d.logger.Warnw("Identity resolution failed, proceeding without user",
				"job", jobName,
				"external_id", externalUser,
				"error", err)
		} else {
			triggeredByUser = &resolved
		}
	}

	// The ledger row must exist before the network call so a crash mid-call
	// leaves a visible running record
	startedAt := time.Now().UTC()
	record := &ExecutionRecord{
		ID:              uuid.NewString(),
		JobName:         job.Name,
		JobType:         job.JobType,
		Status:          ExecutionStatusRunning,
		StartedAt:       startedAt,
		TriggeredBy:     trigger,
		TriggeredByUser: triggeredByUser,
		CreatedAt:       startedAt,
		UpdatedAt:       startedAt,
	}
	if err := d.executions.CreateExecution(record); err != nil {
		// Losing the audit trail silently would undermine the scheduler;
		// this is a loud failure
		d.logger.Errorw("Failed to create execution record",
			"job", jobName,
			"execution_id", record.ID,
			"error", err)
		return nil, nil, errors.Wrap(err, "failed to create execution record")
	}

	d.logger.Infow("Dispatching job",
		"job", job.Name,
		"execution_id", record.ID,
		"service", job.Service,
		"endpoint", job.Endpoint,
		"triggered_by", trigger)

	if d.broadcaster != nil {
		d.broadcaster.BroadcastExecutionStarted(job.Name, record.ID, trigger)
	}

	return job, record, nil
}

// Run performs the network half of an execution and always finalizes the
// ledger row before returning, so a caller awaiting Run observes a process
// that has either fully succeeded or fully recorded its failure.
func (d *Dispatcher) Run(ctx context.Context, job *JobDefinition, record *ExecutionRecord) *JobResult {
	result, dispatchErr := d.dispatch(ctx, job, record)
	// Sub-millisecond dispatches still record a nonzero duration
	durationMs := int(time.Since(record.StartedAt).Milliseconds())
	if durationMs < 1 {
		durationMs = 1
	}

	if dispatchErr != nil {
		return d.finalizeFailure(job, record, dispatchErr.Error(), durationMs)
	}
	if !result.Success {
		// The collaborator answered 2xx but reported failure; the execution
		// is failed, with the job's own counts and error preserved
		errorMsg := result.Error
		if errorMsg == "" {
			errorMsg = "job reported failure without an error message"
		}
		record.ItemsProcessed = result.ItemsProcessed
		record.ItemsSucceeded = result.ItemsSucceeded
		record.ItemsFailed = result.ItemsFailed
		record.Metadata = result.Metadata
		return d.finalizeFailure(job, record, errorMsg, durationMs)
	}

	return d.finalizeSuccess(job, record, result, durationMs)
}

// dispatch performs the HTTP call and parses the response. Any error return
// is a dispatch failure to be recorded, never propagated further.
func (d *Dispatcher) dispatch(ctx context.Context, job *JobDefinition, record *ExecutionRecord) (*JobResult, error) {
	targetURL, err := d.directory.Resolve(job.Service, job.Endpoint)
	if err != nil {
		return nil, err
	}

	jobCtx := JobContext{
		JobName:     job.Name,
		Config:      job.Config,
		ExecutionID: record.ID,
		TriggeredBy: record.TriggeredBy,
	}
	if record.TriggeredByUser != nil {
		jobCtx.TriggeredByUser = *record.TriggeredByUser
	}

	body, err := json.Marshal(jobCtx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal job context")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build dispatch request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ExecutionIDHeader, record.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "dispatch to %s failed", targetURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Capture a short body excerpt for the operator; the status alone
		// is often not enough to debug a collaborator
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("%s returned %s", job.Service, resp.Status)
		if len(excerpt) > 0 {
			msg += ": " + string(excerpt)
		}
		return nil, errors.New(msg)
	}

	var result JobResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&result); err != nil {
		return nil, errors.Wrapf(err, "malformed JobResult from %s", job.Service)
	}

	return &result, nil
}

func (d *Dispatcher) finalizeSuccess(job *JobDefinition, record *ExecutionRecord, result *JobResult, durationMs int) *JobResult {
	completedAt := record.StartedAt.Add(time.Duration(durationMs) * time.Millisecond)
	record.Status = ExecutionStatusCompleted
	record.CompletedAt = &completedAt
	record.DurationMs = &durationMs
	record.ItemsProcessed = result.ItemsProcessed
	record.ItemsSucceeded = result.ItemsSucceeded
	record.ItemsFailed = result.ItemsFailed
	record.Metadata = result.Metadata

	d.finalize(record)
	d.recordRun(job.Name, true, completedAt)

	d.logger.Infow("Job completed",
		"job", job.Name,
		"execution_id", record.ID,
		"duration_ms", durationMs,
		"items_processed", result.ItemsProcessed,
		"items_succeeded", result.ItemsSucceeded,
		"items_failed", result.ItemsFailed)

	if d.broadcaster != nil {
		d.broadcaster.BroadcastExecutionCompleted(job.Name, record.ID, result, durationMs)
	}

	return result
}

func (d *Dispatcher) finalizeFailure(job *JobDefinition, record *ExecutionRecord, errorMsg string, durationMs int) *JobResult {
	completedAt := record.StartedAt.Add(time.Duration(durationMs) * time.Millisecond)
	record.Status = ExecutionStatusFailed
	record.CompletedAt = &completedAt
	record.DurationMs = &durationMs
	record.ErrorMessage = &errorMsg

	d.finalize(record)
	d.recordRun(job.Name, false, completedAt)

	d.logger.Errorw("Job failed",
		"job", job.Name,
		"execution_id", record.ID,
		"duration_ms", durationMs,
		"error", errorMsg)

	if d.broadcaster != nil {
		d.broadcaster.BroadcastExecutionFailed(job.Name, record.ID, errorMsg, durationMs)
	}

	return &JobResult{
		Success:        false,
		ItemsProcessed: record.ItemsProcessed,
		ItemsSucceeded: record.ItemsSucceeded,
		ItemsFailed:    record.ItemsFailed,
		Error:          errorMsg,
		Metadata:       record.Metadata,
	}
}

// finalize writes the terminal state. A failed write here is the one class
// of error that must be loud: the run happened but the ledger does not
// reflect it.
func (d *Dispatcher) finalize(record *ExecutionRecord) {
	if err := d.executions.FinalizeExecution(record); err != nil {
		d.logger.Errorw("Failed to finalize execution record",
			"job", record.JobName,
			"execution_id", record.ID,
			"status", record.Status,
			"error", err)
	}
}

// recordRun updates the convenience counters on the job row. The job may
// have been deleted while the execution was in flight; that is normal.
func (d *Dispatcher) recordRun(jobName string, success bool, ranAt time.Time) {
	if err := d.jobs.RecordRun(jobName, success, ranAt); err != nil {
		if errors.IsNotFoundError(err) {
			return
		}
		d.logger.Errorw("Failed to update job run counters",
			"job", jobName,
			"error", err)
	}
}
