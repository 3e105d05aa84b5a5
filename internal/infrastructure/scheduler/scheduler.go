// Package scheduler runs EduStake's periodic background jobs: expiring
// tasks past their deadline, refreshing recommendations and recomputing
// task statistics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is one periodic unit of background work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled on scheduler stop.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time

	String() string
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrJobAlreadyRegistered = errors.New("job already registered")
	ErrJobNotFound          = errors.New("job not found")
	ErrAlreadyRunning       = errors.New("scheduler is already running")
	ErrNotRunning           = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler triggers registered jobs on their schedules. One goroutine
// per due job; Stop waits for in-flight jobs to finish.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *JobMetrics
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	runs     int64
	failures int64
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		jobs:    make(map[string]*scheduledJob),
		metrics: NewJobMetrics(),
	}
}

// Register adds a job. Jobs cannot be registered twice.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil || schedule == nil {
		return errors.New("job and schedule are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
	}

	next := schedule.Next(time.Now().UTC())
	s.jobs[name] = &scheduledJob{job: job, schedule: schedule, nextRun: next}
	s.logger.Info("job registered", "job", name, "schedule", schedule.String(), "next_run", next)
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	jobCount := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs", jobCount)

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, sj)
}

// Metrics returns the job metrics tracker.
func (s *Scheduler) Metrics() *JobMetrics {
	return s.metrics
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*scheduledJob, 0)
	for _, sj := range s.jobs {
		if !sj.nextRun.After(now) {
			sj.nextRun = sj.schedule.Next(now)
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			_ = s.execute(ctx, sj)
		}(sj)
	}
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) error {
	name := sj.job.Name()
	started := time.Now()

	err := sj.job.Run(ctx)
	duration := time.Since(started)

	s.mu.Lock()
	sj.runs++
	if err != nil {
		sj.failures++
	}
	s.mu.Unlock()

	s.metrics.Record(name, duration, err == nil)

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", duration, "error", err)
		return err
	}
	s.logger.Info("job completed", "job", name, "duration", duration)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// JobMetrics aggregates job execution outcomes.
type JobMetrics struct {
	mu sync.RWMutex

	Executions map[string]int64
	Failures   map[string]int64
	Durations  map[string]time.Duration
}

// NewJobMetrics creates an empty tracker.
func NewJobMetrics() *JobMetrics {
	return &JobMetrics{
		Executions: make(map[string]int64),
		Failures:   make(map[string]int64),
		Durations:  make(map[string]time.Duration),
	}
}

// Record tracks one execution.
func (m *JobMetrics) Record(job string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Executions[job]++
	m.Durations[job] += duration
	if !success {
		m.Failures[job]++
	}
}

// Snapshot returns totals for one job.
func (m *JobMetrics) Snapshot(job string) (executions, failures int64, total time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Executions[job], m.Failures[job], m.Durations[job]
}
