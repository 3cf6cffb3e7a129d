package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedline/scheduler/errors"
)

// Registry is the source of truth for which jobs exist and how they are
// configured, mirrored between an in-memory map and the job store. All
// mutations are applied under one lock so a concurrent dispatch never
// observes a half-updated definition.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*JobDefinition
	store     *JobStore
	driver    *CronDriver
	directory *ServiceDirectory
	logger    *zap.SugaredLogger
	started   bool
}

// JobStatus is a read-only view of a definition plus derived scheduling
// state (whether a timer is active and when it next fires).
type JobStatus struct {
	Definition JobDefinition `json:"definition"`
	IsRunning  bool          `json:"is_running"`
	NextFireAt *time.Time    `json:"next_fire_at,omitempty"`
}

// NewRegistry creates a registry over the given store and driver
func NewRegistry(store *JobStore, driver *CronDriver, directory *ServiceDirectory, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		jobs:      make(map[string]*JobDefinition),
		store:     store,
		driver:    driver,
		directory: directory,
		logger:    logger,
	}
}

// Hydrate loads all definitions from storage and starts timers for enabled
// jobs. Called once at engine startup; storage is the recovery point after
// a restart.
func (r *Registry) Hydrate() error {
	jobs, err := r.store.ListJobs()
	if err != nil {
		return errors.Wrap(err, "failed to hydrate registry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range jobs {
		r.jobs[job.Name] = job
		if job.Enabled {
			if err := r.driver.StartJob(job.Name, job.CronExpression); err != nil {
				// A definition that no longer parses must not block startup;
				// the job simply holds no timer until rescheduled
				r.logger.Errorw("Failed to schedule job during hydration",
					"job", job.Name,
					"cron", job.CronExpression,
					"error", err)
				continue
			}
			r.cacheNextFire(job.Name)
		}
	}

	r.started = true
	r.logger.Infow("Registry hydrated",
		"jobs", len(jobs),
		"timers", r.driver.ActiveTimers())

	return nil
}

// Register validates and upserts a definition. Idempotent by name: owning
// services re-register at their own startup and the latest values win. If
// the job is enabled and the registry is running, a timer starts (or is
// replaced) immediately.
func (r *Registry) Register(def *JobDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if !r.directory.Has(def.Service) {
		return errors.Wrapf(errors.ErrServiceUnavailable,
			"job %q references service %q with no configured base URL", def.Name, def.Service)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.UpsertJob(def); err != nil {
		return err
	}

	// Counters live in storage; re-read so the in-memory view carries them
	stored, err := r.store.GetJob(def.Name)
	if err != nil {
		return err
	}
	r.jobs[def.Name] = stored

	if r.started {
		if stored.Enabled {
			if err := r.driver.StartJob(stored.Name, stored.CronExpression); err != nil {
				return err
			}
			r.cacheNextFire(stored.Name)
		} else {
			r.driver.StopJob(stored.Name)
			r.clearNextFire(stored.Name)
		}
	}

	r.logger.Infow("Job registered",
		"job", stored.Name,
		"service", stored.Service,
		"endpoint", stored.Endpoint,
		"cron", stored.CronExpression,
		"enabled", stored.Enabled)

	return nil
}

// Get returns a copy of the definition with derived scheduling state
func (r *Registry) Get(name string) (*JobStatus, error) {
	// The copy happens under the lock; mutations write the shared structs
	// under the same lock, so callers only ever see a consistent snapshot
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, errors.NewNotFoundError("job not found: %s", name)
	}

	return r.statusOf(job), nil
}

// List returns all definitions with derived scheduling state, ordered by name
func (r *Registry) List() []*JobStatus {
	r.mu.RLock()
	statuses := make([]*JobStatus, 0, len(r.jobs))
	for _, job := range r.jobs {
		statuses = append(statuses, r.statusOf(job))
	}
	r.mu.RUnlock()

	sortJobStatuses(statuses)
	return statuses
}

// Enable flips the job on and starts its timer. Idempotent beyond the write.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable flips the job off and stops its timer. An in-flight dispatch
// already under way runs to completion and is recorded normally.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return errors.NewNotFoundError("job not found: %s", name)
	}

	if err := r.store.SetEnabled(name, enabled); err != nil {
		return err
	}
	job.Enabled = enabled

	if r.started {
		if enabled {
			if err := r.driver.StartJob(name, job.CronExpression); err != nil {
				return err
			}
			r.cacheNextFire(name)
		} else {
			r.driver.StopJob(name)
			r.clearNextFire(name)
		}
	}

	r.logger.Infow("Job toggled", "job", name, "enabled", enabled)
	return nil
}

// Reschedule validates the new expression before mutating anything, then
// persists it and atomically replaces the active timer. There is never a
// window where both schedules could fire, nor one where the job is
// unscheduled.
func (r *Registry) Reschedule(name, cronExpression string) error {
	if _, err := ParseCronExpression(cronExpression); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[name]
	if !ok {
		return errors.NewNotFoundError("job not found: %s", name)
	}

	if err := r.store.SetCronExpression(name, cronExpression); err != nil {
		return err
	}
	job.CronExpression = cronExpression

	if r.started && job.Enabled {
		// StartJob replaces the existing entry under the driver lock
		if err := r.driver.StartJob(name, cronExpression); err != nil {
			return err
		}
		r.cacheNextFire(name)
	}

	r.logger.Infow("Job rescheduled", "job", name, "cron", cronExpression)
	return nil
}

// Delete stops the timer and removes the definition. Execution history for
// the name is retained, orphaned.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[name]; !ok {
		return errors.NewNotFoundError("job not found: %s", name)
	}

	r.driver.StopJob(name)

	if err := r.store.DeleteJob(name); err != nil {
		return err
	}
	delete(r.jobs, name)

	r.logger.Infow("Job deleted", "job", name)
	return nil
}

// RefreshCounters re-reads a definition from storage so list/get views pick
// up counters updated by the dispatcher.
func (r *Registry) RefreshCounters(name string) {
	stored, err := r.store.GetJob(name)
	if err != nil {
		return
	}

	r.mu.Lock()
	if _, ok := r.jobs[name]; ok {
		r.jobs[name] = stored
	}
	r.mu.Unlock()
}

// statusOf copies the definition and derives scheduling state. Caller holds
// r.mu; the driver calls take the driver's own lock.
func (r *Registry) statusOf(job *JobDefinition) *JobStatus {
	return &JobStatus{
		Definition: *job,
		IsRunning:  r.driver.IsScheduled(job.Name),
		NextFireAt: r.driver.NextFire(job.Name),
	}
}

// cacheNextFire mirrors the driver's computed next fire onto the job row
// for quick operator display. Caller holds r.mu.
func (r *Registry) cacheNextFire(name string) {
	next := r.driver.NextFire(name)
	if err := r.store.SetNextRunAt(name, next); err != nil {
		r.logger.Errorw("Failed to cache next_run_at", "job", name, "error", err)
		return
	}
	if job, ok := r.jobs[name]; ok {
		job.NextRunAt = next
	}
}

func (r *Registry) clearNextFire(name string) {
	if err := r.store.SetNextRunAt(name, nil); err != nil {
		r.logger.Errorw("Failed to clear next_run_at", "job", name, "error", err)
		return
	}
	if job, ok := r.jobs[name]; ok {
		job.NextRunAt = nil
	}
}

func sortJobStatuses(statuses []*JobStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Definition.Name < statuses[j].Definition.Name
	})
}
