package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/cron"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
)

type enqueueCall struct {
	task  queue.Task
	delay time.Duration
}

type mockQueue struct {
	mu sync.Mutex

	enqueued []enqueueCall
	claims   map[string]bool
	paused   map[uuid.UUID]bool
	removed  map[uuid.UUID]bool
	states   map[string]domain.JobStatus

	loseClaims bool
	pingErr    error
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		claims:  make(map[string]bool),
		paused:  make(map[uuid.UUID]bool),
		removed: make(map[uuid.UUID]bool),
		states:  make(map[string]domain.JobStatus),
	}
}

func (q *mockQueue) Enqueue(_ context.Context, task queue.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, enqueueCall{task: task, delay: delay})
	q.states[task.ID] = domain.JobStatusPending
	return nil
}

func (q *mockQueue) Dequeue(context.Context, time.Duration) (*queue.Task, error) { return nil, nil }
func (q *mockQueue) Complete(context.Context, queue.Task) error                  { return nil }
func (q *mockQueue) Fail(context.Context, queue.Task, string) (bool, error)      { return false, nil }

func (q *mockQueue) PauseJob(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused[jobID] = true
	return nil
}

func (q *mockQueue) ResumeJob(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.paused, jobID)
	return nil
}

func (q *mockQueue) RemoveJob(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed[jobID] = true
	return nil
}

func (q *mockQueue) TaskState(_ context.Context, id string) (domain.JobStatus, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.states[id]
	return st, ok, nil
}

func (q *mockQueue) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{Pending: 2}, nil
}

func (q *mockQueue) Ping(context.Context) error { return q.pingErr }

func (q *mockQueue) AcquireOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.loseClaims || q.claims[key] {
		return false, nil
	}
	q.claims[key] = true
	return true, nil
}

func (q *mockQueue) enqueueCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func newTestScheduler(q queue.Queue) *Scheduler {
	return New(q, cron.NewParser(), "Europe/London", 30*time.Second)
}

func TestScheduleRecurring_RejectsInvalidDefinitions(t *testing.T) {
	s := newTestScheduler(newMockQueue())

	cases := []struct {
		name string
		job  domain.Job
	}{
		{"unknown type", domain.Job{Type: "coffee_run", CronExpression: "0 7 * * *"}},
		{"missing cron", domain.Job{Type: domain.JobTypeDailySummary}},
		{"bad cron", domain.Job{Type: domain.JobTypeDailySummary, CronExpression: "nope"}},
		{"six fields", domain.Job{Type: domain.JobTypeDailySummary, CronExpression: "0 0 7 * * *"}},
		{"bad timezone", domain.Job{Type: domain.JobTypeDailySummary, CronExpression: "0 7 * * *", Timezone: "Mars/Olympus"}},
	}
	for _, tc := range cases {
		if _, err := s.ScheduleRecurring(tc.job); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestScheduleOneTime_EnqueuesWithDelay(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	id, err := s.ScheduleOneTime(context.Background(), domain.Job{
		Type:     domain.JobTypeDailySummary,
		Delay:    10 * time.Minute,
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a job id")
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(q.enqueued))
	}
	call := q.enqueued[0]
	if call.delay != 10*time.Minute {
		t.Fatalf("delay = %s, want 10m", call.delay)
	}
	if call.task.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("max attempts = %d, want default %d", call.task.MaxAttempts, defaultMaxAttempts)
	}
	if call.task.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", call.task.Attempt)
	}
}

func TestScheduleOneTime_RejectsNegativeDelay(t *testing.T) {
	s := newTestScheduler(newMockQueue())
	_, err := s.ScheduleOneTime(context.Background(), domain.Job{
		Type:  domain.JobTypeCleanup,
		Delay: -time.Second,
	})
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != domain.ErrorKindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmitDue_WalksEveryMissedFire(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	now := time.Date(2026, 8, 31, 12, 0, 30, 0, time.UTC)
	s.clock = func() time.Time { return now }
	s.lastTick = now.Add(-3 * time.Minute)

	if _, err := s.ScheduleRecurring(domain.Job{
		Type:           domain.JobTypeAggregation,
		CronExpression: "* * * * *",
		Timezone:       "UTC",
	}); err != nil {
		t.Fatal(err)
	}

	s.emitDue(context.Background())

	// Fires at 11:58, 11:59 and 12:00 fall inside the window.
	if got := q.enqueueCount(); got != 3 {
		t.Fatalf("enqueued = %d, want 3", got)
	}

	// The window advanced, so a second pass over the same instant is empty.
	s.emitDue(context.Background())
	if got := q.enqueueCount(); got != 3 {
		t.Fatalf("enqueued after idle tick = %d, want 3", got)
	}
}

func TestEmitDue_LostClaimMeansNoEnqueue(t *testing.T) {
	q := newMockQueue()
	q.loseClaims = true
	s := newTestScheduler(q)

	now := time.Date(2026, 8, 31, 12, 0, 30, 0, time.UTC)
	s.clock = func() time.Time { return now }
	s.lastTick = now.Add(-time.Minute)

	if _, err := s.ScheduleRecurring(domain.Job{
		Type:           domain.JobTypeAggregation,
		CronExpression: "* * * * *",
		Timezone:       "UTC",
	}); err != nil {
		t.Fatal(err)
	}

	s.emitDue(context.Background())
	if got := q.enqueueCount(); got != 0 {
		t.Fatalf("enqueued = %d, want 0 when another instance holds the claim", got)
	}
}

func TestEmitDue_PausedJobIsSkipped(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	now := time.Date(2026, 8, 31, 12, 0, 30, 0, time.UTC)
	s.clock = func() time.Time { return now }
	s.lastTick = now.Add(-time.Minute)

	id, err := s.ScheduleRecurring(domain.Job{
		Type:           domain.JobTypeAggregation,
		CronExpression: "* * * * *",
		Timezone:       "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PauseJob(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	s.emitDue(context.Background())
	if got := q.enqueueCount(); got != 0 {
		t.Fatalf("enqueued = %d, want 0 for paused job", got)
	}

	if err := s.ResumeJob(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	s.clock = func() time.Time { return now.Add(time.Minute) }
	s.emitDue(context.Background())
	if got := q.enqueueCount(); got != 1 {
		t.Fatalf("enqueued = %d, want 1 after resume", got)
	}
}

func TestRemoveJob_IsIdempotent(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	id, err := s.ScheduleRecurring(domain.Job{
		Type:           domain.JobTypeCleanup,
		CronExpression: "0 4 * * 0",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveJob(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveJob(context.Background(), id); err != nil {
		t.Fatalf("second remove must be a no-op, got %v", err)
	}
	if err := s.RemoveJob(context.Background(), uuid.New()); err != nil {
		t.Fatalf("removing an unknown job must be a no-op, got %v", err)
	}
}

func TestTaskStatus_UnknownReturnsNil(t *testing.T) {
	q := newMockQueue()
	q.states["known"] = domain.JobStatusRunning
	s := newTestScheduler(q)

	got, err := s.TaskStatus(context.Background(), "known")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != domain.JobStatusRunning {
		t.Fatalf("status = %v, want running", got)
	}

	got, err = s.TaskStatus(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("unknown execution must report nil status, got %v", *got)
	}
}

func TestTaskStatus_OneTimeJobReachableByReturnedID(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	id, err := s.ScheduleOneTime(context.Background(), domain.Job{
		Type:  domain.JobTypeDailySummary,
		Delay: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.TaskStatus(context.Background(), id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != domain.JobStatusPending {
		t.Fatalf("status for returned id = %v, want pending", got)
	}
}

func TestTaskStatus_RecurringJobID(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q)

	id, err := s.ScheduleRecurring(domain.Job{
		Type:           domain.JobTypeAggregation,
		CronExpression: "0 2 * * *",
		Timezone:       "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.TaskStatus(context.Background(), id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != domain.JobStatusPending {
		t.Fatalf("status between fires = %v, want pending", got)
	}

	if err := s.PauseJob(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	got, err = s.TaskStatus(context.Background(), id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != domain.JobStatusCancelled {
		t.Fatalf("status while paused = %v, want cancelled", got)
	}

	if err := s.RemoveJob(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	got, err = s.TaskStatus(context.Background(), id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("status after remove = %v, want nil", *got)
	}
}

type staticProber bool

func (p staticProber) Alive() bool { return bool(p) }

func TestHealthCheck_CompositeOfQueueAndWorkers(t *testing.T) {
	q := newMockQueue()
	s := newTestScheduler(q).WithWorkerProber(staticProber(true))

	if h := s.HealthCheck(context.Background()); !h.Healthy {
		t.Fatalf("expected healthy, got %+v", h)
	}

	q.pingErr = errors.New("redis down")
	if h := s.HealthCheck(context.Background()); h.Healthy || h.QueueReachable {
		t.Fatalf("expected unhealthy on queue failure, got %+v", h)
	}
	q.pingErr = nil

	s.worker = staticProber(false)
	if h := s.HealthCheck(context.Background()); h.Healthy || h.WorkersAlive {
		t.Fatalf("expected unhealthy on dead workers, got %+v", h)
	}
}

func TestRegisterDefaultJobs(t *testing.T) {
	s := newTestScheduler(newMockQueue())
	if err := s.RegisterDefaultJobs(); err != nil {
		t.Fatal(err)
	}
	h := s.HealthCheck(context.Background())
	if h.RecurringJobs != len(defaultJobs) {
		t.Fatalf("registered = %d, want %d", h.RecurringJobs, len(defaultJobs))
	}
}
