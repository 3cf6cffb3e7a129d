package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/feedline/scheduler/errors"
)

// CronDriver translates cron expressions into recurring wall-clock triggers,
// one active timer per enabled job. All schedules evaluate in UTC to avoid
// daylight-saving ambiguity.
//
// Invariant: at most one timer exists per job name. Starting a job that
// already holds a timer replaces it atomically under the driver lock, so
// rescheduling never produces duplicate fires nor an unscheduled window.
type CronDriver struct {
	cron    *cron.Cron
	onFire  func(jobName string)
	logger  *zap.SugaredLogger
	mu      sync.Mutex
	entries map[string]driverEntry
	stopped bool
}

type driverEntry struct {
	id       cron.EntryID
	schedule cron.Schedule
}

// NewCronDriver creates a driver. onFire is invoked on every timer fire with
// the job name; it must not block (the engine dispatches asynchronously).
func NewCronDriver(onFire func(jobName string), logger *zap.SugaredLogger) *CronDriver {
	return &CronDriver{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithParser(cronParser),
		),
		onFire:  onFire,
		logger:  logger,
		entries: make(map[string]driverEntry),
	}
}

// Start begins the underlying cron runner
func (d *CronDriver) Start() {
	d.cron.Start()
	d.logger.Infow("Cron driver started")
}

// Stop stops all timers deterministically. No job fires after Stop returns;
// in-flight dispatches already under way run to completion elsewhere.
func (d *CronDriver) Stop() {
	d.mu.Lock()
	d.stopped = true
	// Dropping the entries keeps IsScheduled and ActiveTimers truthful
	// after shutdown
	for name, entry := range d.entries {
		d.cron.Remove(entry.id)
		delete(d.entries, name)
	}
	d.mu.Unlock()

	ctx := d.cron.Stop()
	<-ctx.Done()
	d.logger.Infow("Cron driver stopped")
}

// StartJob schedules a timer for the job, replacing any existing one.
func (d *CronDriver) StartJob(name, cronExpression string) error {
	schedule, err := ParseCronExpression(cronExpression)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return errors.Newf("driver stopped, cannot schedule job %q", name)
	}

	// Replace-before-add keeps the single-timer invariant: the old entry is
	// removed under the same lock that installs the new one
	if existing, ok := d.entries[name]; ok {
		d.cron.Remove(existing.id)
	}

	jobName := name
	id := d.cron.Schedule(schedule, cron.FuncJob(func() {
		d.onFire(jobName)
	}))

	d.entries[name] = driverEntry{id: id, schedule: schedule}

	d.logger.Infow("Timer started",
		"job", name,
		"cron", cronExpression,
		"next_fire", schedule.Next(time.Now().UTC()).Format(time.RFC3339))

	return nil
}

// StopJob removes the job's timer if one exists. Idempotent.
func (d *CronDriver) StopJob(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[name]
	if !ok {
		return
	}

	d.cron.Remove(entry.id)
	delete(d.entries, name)

	d.logger.Infow("Timer stopped", "job", name)
}

// IsScheduled reports whether the job currently holds an active timer
func (d *CronDriver) IsScheduled(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[name]
	return ok
}

// NextFire returns the job's next fire time, or nil if it holds no timer.
func (d *CronDriver) NextFire(name string) *time.Time {
	d.mu.Lock()
	entry, ok := d.entries[name]
	d.mu.Unlock()

	if !ok {
		return nil
	}

	// The cron runner only fills Entry.Next once running; fall back to the
	// schedule itself so callers get an answer before Start too
	next := d.cron.Entry(entry.id).Next
	if next.IsZero() {
		next = entry.schedule.Next(time.Now().UTC())
	}
	if next.IsZero() {
		return nil
	}
	return &next
}

// ActiveTimers returns the number of jobs currently holding a timer
func (d *CronDriver) ActiveTimers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
