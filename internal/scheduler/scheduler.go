package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/watson/pkg/logger"
)

// Scheduler fires jobs on their cron schedules in one time zone.
// A trigger that arrives while the previous run of the same job is still
// going is skipped.
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
	opts   options

	mu      sync.RWMutex
	jobs    map[string]*entry
	running sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	job     Job
	id      cron.EntryID
	removed bool
	history history
}

// Option customizes a Scheduler
type Option func(*options)

type options struct {
	location   *time.Location
	maxRetries int
	retryDelay time.Duration
}

// WithLocation evaluates schedules in loc instead of the local zone
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithRetries retries a failed run up to maxRetries times, delay apart.
// Trading jobs keep the default of 0: a failed cycle waits for the next trigger.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
	}
}

// New creates a scheduler. Schedules take a seconds field.
func New(log *logger.Logger, opts ...Option) *Scheduler {
	o := options{location: time.Local, retryDelay: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	cl := cronLogger{log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(o.location),
			cron.WithLogger(cl),
			// 이전 실행이 끝나지 않았으면 이번 트리거는 건너뜀
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: log,
		opts:   o,
		jobs:   make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Location returns the zone schedules are evaluated in
func (s *Scheduler) Location() *time.Location {
	return s.opts.location
}

// AddJob registers a job. Names are unique per scheduler.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if e, ok := s.jobs[name]; ok && !e.removed {
		return fmt.Errorf("job %s already exists", name)
	}

	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Schedule(), func() { s.execute(e) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule(), name, err)
	}
	e.id = id
	s.jobs[name] = e

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
		"location": s.opts.location.String(),
	}).Info("Job scheduled")
	return nil
}

// RemoveJob unschedules a job; its history stays readable
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok || e.removed {
		return fmt.Errorf("job %s not found", name)
	}
	s.cron.Remove(e.id)
	e.removed = true

	s.logger.WithField("job", name).Info("Job unscheduled")
	return nil
}

// Start begins firing triggers
func (s *Scheduler) Start() {
	s.logger.WithField("location", s.opts.location.String()).Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.running.Wait()
	s.logger.Info("Scheduler stopped")
}

// NextRun returns the next activation of a job (zero before Start)
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	e, err := s.lookup(name)
	if err != nil {
		return time.Time{}, err
	}
	return s.cron.Entry(e.id).Next, nil
}

// RunJob starts a job now, outside its schedule
func (s *Scheduler) RunJob(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.execute(e)
	}()
	return nil
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok || e.removed {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return e, nil
}

// execute runs the job with the configured retries and records the outcome
func (s *Scheduler) execute(e *entry) {
	name := e.job.Name()
	log := s.logger.WithField("job", name)
	log.Info("Job started")

	result := JobResult{JobName: name, StartTime: time.Now()}

	var err error
	for result.Attempts = 1; ; result.Attempts++ {
		if err = e.job.Run(s.ctx); err == nil {
			break
		}
		if result.Attempts > s.opts.maxRetries || s.ctx.Err() != nil {
			break
		}

		log.WithFields(map[string]interface{}{
			"attempt": result.Attempts,
			"error":   err.Error(),
		}).Warn("Job failed, retrying")

		select {
		case <-s.ctx.Done():
		case <-time.After(s.opts.retryDelay):
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	e.history.add(result)
	s.mu.Unlock()

	log = log.WithField("duration", result.Duration)
	if err != nil {
		log.WithError(err).Error("Job failed")
		return
	}
	log.Info("Job completed")
}

// GetJobHistory returns the latest results of a job, oldest first
func (s *Scheduler) GetJobHistory(name string) ([]JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return e.history.latest(historyLimit), nil
}

// GetAllJobs returns the scheduled job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name, e := range s.jobs {
		if !e.removed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetJobStats returns statistics for every scheduled job
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, e := range s.jobs {
		if !e.removed {
			stats[name] = e.history.stats(name, e.job.Schedule())
		}
	}
	return stats
}

// cronLogger routes cron's own messages into the application logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kv(keysAndValues)).Error("cron: " + msg)
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
