package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/user/pskwatch/internal/observability"
	"github.com/user/pskwatch/internal/util"
)

// Job represents a scheduled job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	lastRun    time.Time
	nextRun    time.Time
	lastError  error
	errorCount int
	running    bool
	mu         sync.RWMutex
}

// JobStatus represents the status of a job.
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Running    bool          `json:"running"`
}

// Scheduler runs jobs at their intervals. A failed job is retried after
// half its interval.
type Scheduler struct {
	ctx     context.Context
	tick    time.Duration
	delay   time.Duration
	metrics *observability.Collector
	jobs    []*Job
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewScheduler creates a scheduler that checks jobs every tick and runs
// each one first after delay.
func NewScheduler(ctx context.Context, tick, delay time.Duration, metrics *observability.Collector) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		ctx:     ctx,
		tick:    tick,
		delay:   delay,
		metrics: metrics,
		jobs:    make([]*Job, 0),
	}
}

// AddJob adds a job to the scheduler.
func (s *Scheduler) AddJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.nextRun = time.Now().Add(s.delay)
	s.jobs = append(s.jobs, job)
}

// Run checks jobs until the context is cancelled, then waits for running
// jobs to return.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	util.Info("scheduler started", "jobs", len(s.jobs))

	for {
		select {
		case <-s.ctx.Done():
			s.wg.Wait()
			util.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.checkJobs(now)
		}
	}
}

func (s *Scheduler) checkJobs(now time.Time) {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.RLock()
		shouldRun := !job.running && !now.Before(job.nextRun)
		job.mu.RUnlock()

		if shouldRun {
			s.wg.Add(1)
			go func(j *Job) {
				defer s.wg.Done()
				s.runJob(j)
			}(job)
		}
	}
}

func (s *Scheduler) runJob(job *Job) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return
	}
	job.running = true
	job.lastRun = time.Now()
	job.mu.Unlock()

	util.Debug("running job", "job", job.Name)

	ctx, cancel := context.WithTimeout(s.ctx, job.Interval)
	defer cancel()

	err := job.Run(ctx)
	s.metrics.IncJobRun(job.Name, err)

	job.mu.Lock()
	job.running = false
	if err != nil {
		job.lastError = err
		job.errorCount++
		util.Warn("job failed", "job", job.Name, "error", err)
		job.nextRun = time.Now().Add(job.Interval / 2)
	} else {
		job.lastError = nil
		util.Debug("job completed", "job", job.Name)
		job.nextRun = time.Now().Add(job.Interval)
	}
	job.mu.Unlock()
}

// GetJobStatuses returns the status of all jobs.
func (s *Scheduler) GetJobStatuses() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		job.mu.RLock()
		status := JobStatus{
			Name:       job.Name,
			Interval:   job.Interval,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			ErrorCount: job.errorCount,
			Running:    job.running,
		}
		if job.lastError != nil {
			status.LastError = job.lastError.Error()
		}
		job.mu.RUnlock()
		statuses[i] = status
	}

	return statuses
}

// GetJob returns a job by name.
func (s *Scheduler) GetJob(name string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// TriggerJob schedules a job for the next tick.
func (s *Scheduler) TriggerJob(name string) bool {
	job := s.GetJob(name)
	if job == nil {
		return false
	}

	job.mu.Lock()
	job.nextRun = time.Now()
	job.mu.Unlock()

	return true
}
