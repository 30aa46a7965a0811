// Package scheduler turns registered jobs into queued tasks. Recurring jobs
// are emitted by walking cron fire times across tick windows, so a slow or
// restarted scheduler emits every missed fire exactly once instead of
// skipping it.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/cron"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 5 * time.Minute

	// onceTTL bounds how long an emission claim is held. It needs to outlive
	// the longest plausible tick gap so two instances never double-emit.
	onceTTL = 12 * time.Hour
)

// Prober reports liveness of a dependent subsystem, e.g. the worker pool.
type Prober interface {
	Alive() bool
}

// Health is the composite health snapshot served by the API.
type Health struct {
	Healthy        bool   `json:"healthy"`
	QueueReachable bool   `json:"queueReachable"`
	WorkersAlive   bool   `json:"workersAlive"`
	RecurringJobs  int    `json:"recurringJobs"`
	Detail         string `json:"detail,omitempty"`
}

type recurringJob struct {
	job      domain.Job
	schedule cron.Schedule
	paused   bool
}

// Scheduler owns the recurring job table and the enqueue path for one-time
// work. One Scheduler instance per process; the emitter loop should only
// run on the elected leader.
type Scheduler struct {
	queue    queue.Queue
	parser   *cron.Parser
	timezone string
	tick     time.Duration
	clock    func() time.Time
	worker   Prober // optional

	mu       sync.RWMutex
	jobs     map[uuid.UUID]*recurringJob
	lastTick time.Time
}

func New(q queue.Queue, parser *cron.Parser, timezone string, tick time.Duration) *Scheduler {
	return &Scheduler{
		queue:    q,
		parser:   parser,
		timezone: timezone,
		tick:     tick,
		clock:    time.Now,
		jobs:     make(map[uuid.UUID]*recurringJob),
	}
}

// WithWorkerProber wires worker-pool liveness into HealthCheck.
func (s *Scheduler) WithWorkerProber(p Prober) *Scheduler {
	s.worker = p
	return s
}

// ScheduleRecurring validates and registers a cron job. The cron expression
// and timezone are checked synchronously so a bad definition fails at
// registration, not at first fire.
func (s *Scheduler) ScheduleRecurring(job domain.Job) (uuid.UUID, error) {
	if err := s.applyDefaults(&job); err != nil {
		return uuid.Nil, err
	}
	if job.CronExpression == "" {
		return uuid.Nil, domain.NewValidationError("recurring job requires a cron expression")
	}

	sched, err := s.parser.Parse(job.CronExpression, job.Timezone)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(fmt.Sprintf("job %q: %v", job.Name, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &recurringJob{job: job, schedule: sched}

	log.Printf("scheduler: registered recurring job=%s name=%s cron=%q tz=%s", job.ID, job.Name, job.CronExpression, job.Timezone)
	return job.ID, nil
}

// ScheduleOneTime enqueues a single execution after job.Delay.
func (s *Scheduler) ScheduleOneTime(ctx context.Context, job domain.Job) (uuid.UUID, error) {
	if err := s.applyDefaults(&job); err != nil {
		return uuid.Nil, err
	}
	if job.Delay < 0 {
		return uuid.Nil, domain.NewValidationError("delay must not be negative")
	}

	// The execution id is the job id so the caller can query status with
	// the id this method returns.
	task := s.taskFor(job, job.ID.String())
	if err := s.queue.Enqueue(ctx, task, job.Delay); err != nil {
		return uuid.Nil, err
	}

	log.Printf("scheduler: enqueued one-time job=%s name=%s delay=%s", job.ID, job.Name, job.Delay)
	return job.ID, nil
}

// PauseJob stops future emissions and parks queued tasks. Safe to call for
// unknown or already-paused jobs.
func (s *Scheduler) PauseJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.paused = true
	}
	s.mu.Unlock()
	return s.queue.PauseJob(ctx, jobID)
}

// ResumeJob re-enables emissions and releases parked tasks. Safe to call
// for unknown or never-paused jobs.
func (s *Scheduler) ResumeJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	if entry, ok := s.jobs[jobID]; ok {
		entry.paused = false
	}
	s.mu.Unlock()
	return s.queue.ResumeJob(ctx, jobID)
}

// RemoveJob deregisters the job and purges its queued tasks. Removing a job
// that was never scheduled is a no-op.
func (s *Scheduler) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
	return s.queue.RemoveJob(ctx, jobID)
}

// TaskStatus resolves the status of any id a caller holds: a one-time job
// id, an emitted execution id, or a recurring job id (which reports pending
// between fires, cancelled while paused). Nil means the id is unknown.
func (s *Scheduler) TaskStatus(ctx context.Context, executionID string) (*domain.JobStatus, error) {
	status, ok, err := s.queue.TaskState(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return &status, nil
	}

	jobID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, nil
	}
	s.mu.Lock()
	entry, registered := s.jobs[jobID]
	paused := registered && entry.paused
	s.mu.Unlock()
	if !registered {
		return nil, nil
	}
	st := domain.JobStatusPending
	if paused {
		st = domain.JobStatusCancelled
	}
	return &st, nil
}

// QueueStats returns the current per-state task counts.
func (s *Scheduler) QueueStats(ctx context.Context) (queue.Stats, error) {
	return s.queue.Stats(ctx)
}

// HealthCheck is healthy only when the queue responds and the worker pool
// (when wired) reports alive.
func (s *Scheduler) HealthCheck(ctx context.Context) Health {
	h := Health{QueueReachable: true, WorkersAlive: true}

	if err := s.queue.Ping(ctx); err != nil {
		h.QueueReachable = false
		h.Detail = fmt.Sprintf("queue: %v", err)
	}
	if s.worker != nil && !s.worker.Alive() {
		h.WorkersAlive = false
		if h.Detail != "" {
			h.Detail += "; "
		}
		h.Detail += "worker pool not running"
	}

	s.mu.RLock()
	h.RecurringJobs = len(s.jobs)
	s.mu.RUnlock()

	h.Healthy = h.QueueReachable && h.WorkersAlive
	return h
}

// Run drives the recurring emitter until ctx is cancelled. Call this on the
// elected leader only.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.lastTick.IsZero() {
		s.lastTick = s.clock()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log.Printf("scheduler: emitter started interval=%s", s.tick)
	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: emitter stopped")
			return
		case <-ticker.C:
			s.emitDue(ctx)
		}
	}
}

// emitDue walks every fire time in (lastTick, now] for each active job and
// enqueues exactly one task per fire. AcquireOnce arbitrates between
// scheduler instances racing on the same fire.
func (s *Scheduler) emitDue(ctx context.Context) {
	now := s.clock()

	s.mu.Lock()
	from := s.lastTick
	s.lastTick = now
	entries := make([]*recurringJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		if !e.paused {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	for _, entry := range entries {
		for fire := entry.schedule.Next(from); !fire.IsZero() && !fire.After(now); fire = entry.schedule.Next(fire) {
			s.emitFire(ctx, entry.job, fire)
		}
	}
}

func (s *Scheduler) emitFire(ctx context.Context, job domain.Job, fire time.Time) {
	key := fmt.Sprintf("sched:once:%s:%d", job.ID, fire.Unix())
	won, err := s.queue.AcquireOnce(ctx, key, onceTTL)
	if err != nil {
		log.Printf("scheduler: acquire fire claim job=%s fire=%s failed: %v", job.ID, fire.Format(time.RFC3339), err)
		return
	}
	if !won {
		return
	}

	executionID := fmt.Sprintf("%s:%d", job.ID, fire.Unix())
	task := s.taskFor(job, executionID)
	if err := s.queue.Enqueue(ctx, task, 0); err != nil {
		log.Printf("scheduler: enqueue job=%s fire=%s failed: %v", job.ID, fire.Format(time.RFC3339), err)
		return
	}
	log.Printf("scheduler: emitted job=%s name=%s fire=%s", job.ID, job.Name, fire.Format(time.RFC3339))
}

func (s *Scheduler) taskFor(job domain.Job, executionID string) queue.Task {
	return queue.Task{
		ID:          executionID,
		JobID:       job.ID,
		Name:        job.Name,
		Type:        job.Type,
		Payload:     job.Payload,
		Priority:    job.Priority,
		Attempt:     1,
		MaxAttempts: job.MaxAttempts,
		TimeoutMs:   job.Timeout.Milliseconds(),
		EnqueuedAt:  s.clock().UTC(),
	}
}

func (s *Scheduler) applyDefaults(job *domain.Job) error {
	if !job.Type.Valid() {
		return domain.NewValidationError(fmt.Sprintf("unknown job type %q", job.Type))
	}
	if job.Name == "" {
		job.Name = string(job.Type)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Timezone == "" {
		job.Timezone = s.timezone
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = defaultMaxAttempts
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultTimeout
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock().UTC()
	}
	return nil
}
