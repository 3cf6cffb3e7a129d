package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/internal/httpclient"
)

// Engine wires the registry, cron driver, dispatcher, and ledger into one
// explicitly constructed scheduling authority. Lifecycle is explicit:
// Initialize hydrates from storage and starts timers, Shutdown stops all
// timers and waits for in-flight dispatches to finish.
type Engine struct {
	registry   *Registry
	driver     *CronDriver
	dispatcher *Dispatcher
	jobs       *JobStore
	executions *ExecutionStore
	directory  *ServiceDirectory
	logger     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     EngineState
	startedAt time.Time
}

// EngineState tracks the engine lifecycle
type EngineState int

const (
	EngineCreated EngineState = iota
	EngineRunning
	EngineStopped
)

func (s EngineState) String() string {
	switch s {
	case EngineCreated:
		return "created"
	case EngineRunning:
		return "running"
	case EngineStopped:
		return "stopped"
	}
	return "unknown"
}

// EngineConfig carries the engine's runtime knobs
type EngineConfig struct {
	// Services maps collaborator service names to base URLs
	Services map[string]string

	// DispatchTimeout bounds each outbound HTTP call
	DispatchTimeout time.Duration

	// IdentityService/IdentityEndpoint locate the identity collaborator.
	// Empty service disables identity resolution.
	IdentityService  string
	IdentityEndpoint string
}

// NewEngine constructs an engine over an opened database. broadcaster may
// be nil.
func NewEngine(database *sql.DB, cfg EngineConfig, broadcaster ExecutionBroadcaster, logger *zap.SugaredLogger) *Engine {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 2 * time.Minute
	}

	directory := NewServiceDirectory(cfg.Services)
	client := httpclient.New(cfg.DispatchTimeout)

	var identity IdentityResolver = NopIdentityResolver{}
	if cfg.IdentityService != "" {
		identity = NewHTTPIdentityResolver(directory, client, cfg.IdentityService, cfg.IdentityEndpoint)
	}

	jobs := NewJobStore(database)
	executions := NewExecutionStore(database)
	dispatcher := NewDispatcher(jobs, executions, directory, client, identity, broadcaster, logger)

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		dispatcher: dispatcher,
		jobs:       jobs,
		executions: executions,
		directory:  directory,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      EngineCreated,
	}

	e.driver = NewCronDriver(e.fireScheduled, logger)
	e.registry = NewRegistry(jobs, e.driver, directory, logger)

	return e
}

// Initialize hydrates the registry from storage and starts the cron driver
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != EngineCreated {
		return errors.Newf("engine already %s", e.state)
	}

	if err := e.registry.Hydrate(); err != nil {
		return err
	}
	e.driver.Start()

	e.state = EngineRunning
	e.startedAt = time.Now().UTC()
	e.logger.Infow("Scheduler engine initialized")
	return nil
}

// Shutdown stops all timers and waits for in-flight dispatches to complete
// and be recorded. No job fires after Shutdown begins.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.state != EngineRunning {
		e.mu.Unlock()
		return
	}
	e.state = EngineStopped
	e.mu.Unlock()

	e.driver.Stop()
	e.cancel()
	e.wg.Wait()
	e.logger.Infow("Scheduler engine stopped")
}

// fireScheduled handles a cron fire: one independent, non-blocking dispatch
// per fire. Overlapping runs of the same job each get their own record.
func (e *Engine) fireScheduled(jobName string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// The dispatch runs on the engine context, not the timer's; failure
		// is contained by the dispatcher and never propagates here
		_, _, err := e.dispatcher.Execute(e.ctx, jobName, TriggerScheduler, "")
		if err != nil {
			// Unknown job (deleted between fire and dispatch) or a ledger
			// write failure; already logged loudly by the dispatcher
			e.logger.Warnw("Scheduled dispatch did not run", "job", jobName, "error", err)
			return
		}

		e.afterRun(jobName)
	}()
}

// afterRun refreshes cached next-fire and counter columns after a dispatch
func (e *Engine) afterRun(jobName string) {
	if next := e.driver.NextFire(jobName); next != nil {
		if err := e.jobs.SetNextRunAt(jobName, next); err != nil && !errors.IsNotFoundError(err) {
			e.logger.Errorw("Failed to update next_run_at", "job", jobName, "error", err)
		}
	}
	e.registry.RefreshCounters(jobName)
}

// Trigger starts a manual or admin execution. With wait=false the dispatch
// continues in the background and the returned record (in running state)
// carries the execution id; with wait=true the terminal JobResult is
// returned directly. Either way the trigger itself succeeds even when the
// execution ultimately fails.
func (e *Engine) Trigger(trigger TriggerSource, jobName, externalUser string, wait bool) (*JobResult, *ExecutionRecord, error) {
	if trigger != TriggerManual && trigger != TriggerAdmin {
		return nil, nil, errors.Wrapf(errors.ErrInvalidRequest, "invalid trigger source %q", trigger)
	}

	e.mu.Lock()
	if e.state != EngineRunning {
		e.mu.Unlock()
		return nil, nil, errors.Newf("engine is %s, cannot trigger jobs", e.state)
	}
	e.mu.Unlock()

	job, record, err := e.dispatcher.Begin(e.ctx, jobName, trigger, externalUser)
	if err != nil {
		return nil, nil, err
	}

	if wait {
		result := e.dispatcher.Run(e.ctx, job, record)
		e.afterRun(jobName)
		return result, record, nil
	}

	// The background goroutine owns the live record from here; the caller
	// gets a snapshot so finalization never races its reads
	snapshot := *record
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatcher.Run(e.ctx, job, record)
		e.afterRun(jobName)
	}()

	return nil, &snapshot, nil
}

// ReplaceServices swaps the service directory contents, for config reloads.
// Jobs bound to a service that disappears fail at dispatch time, not here.
func (e *Engine) ReplaceServices(services map[string]string) {
	e.directory.Replace(services)
}

// Registry exposes job CRUD for the admin surface
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Executions exposes the ledger for the admin surface
func (e *Engine) Executions() *ExecutionStore {
	return e.executions
}

// Health is a point-in-time snapshot for the health endpoint
type Health struct {
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	Jobs         int       `json:"jobs"`
	ActiveTimers int       `json:"active_timers"`
}

// Health reports the engine's current state
func (e *Engine) Health() Health {
	e.mu.Lock()
	state := e.state
	startedAt := e.startedAt
	e.mu.Unlock()

	return Health{
		State:        state.String(),
		StartedAt:    startedAt,
		Jobs:         len(e.registry.List()),
		ActiveTimers: e.driver.ActiveTimers(),
	}
}
