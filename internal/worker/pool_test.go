package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
)

type failCall struct {
	task   queue.Task
	reason string
}

type mockQueue struct {
	mu        sync.Mutex
	tasks     []queue.Task
	completed []queue.Task
	failed    []failCall
}

func (q *mockQueue) Enqueue(_ context.Context, task queue.Task, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *mockQueue) Dequeue(ctx context.Context, wait time.Duration) (*queue.Task, error) {
	q.mu.Lock()
	if len(q.tasks) > 0 {
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		return &task, nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, nil
	}
}

func (q *mockQueue) Complete(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, task)
	return nil
}

func (q *mockQueue) Fail(_ context.Context, task queue.Task, reason string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, failCall{task: task, reason: reason})
	task.Attempt++
	return task.Attempt <= task.MaxAttempts, nil
}

func (q *mockQueue) PauseJob(context.Context, uuid.UUID) error  { return nil }
func (q *mockQueue) ResumeJob(context.Context, uuid.UUID) error { return nil }
func (q *mockQueue) RemoveJob(context.Context, uuid.UUID) error { return nil }

func (q *mockQueue) TaskState(context.Context, string) (domain.JobStatus, bool, error) {
	return "", false, nil
}
func (q *mockQueue) Stats(context.Context) (queue.Stats, error) { return queue.Stats{}, nil }
func (q *mockQueue) Ping(context.Context) error                 { return nil }
func (q *mockQueue) AcquireOnce(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

type fakeSink struct {
	mu        sync.Mutex
	processed []string // "type/outcome"
	retried   []domain.JobType
}

func (s *fakeSink) TaskProcessed(t domain.JobType, outcome string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, string(t)+"/"+outcome)
}

func (s *fakeSink) TaskRetried(t domain.JobType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried = append(s.retried, t)
}

func (s *fakeSink) QueueDepth(queue.Stats)                        {}
func (s *fakeSink) AlertFired(domain.AlertType)                   {}
func (s *fakeSink) ReportGenerated(string, string, time.Duration) {}

func testTask(t domain.JobType) queue.Task {
	return queue.Task{
		ID:          uuid.New().String(),
		JobID:       uuid.New(),
		Name:        string(t),
		Type:        t,
		Priority:    domain.PriorityNormal,
		Attempt:     1,
		MaxAttempts: 3,
		TimeoutMs:   int64(5 * time.Minute / time.Millisecond),
	}
}

func TestProcess_SuccessCompletesTask(t *testing.T) {
	q := &mockQueue{}
	sink := &fakeSink{}
	reg := scheduler.NewRegistry()
	if err := reg.Register(domain.JobTypeCleanup, scheduler.HandlerFunc(
		func(context.Context, queue.Task) (domain.ExecutionResult, error) {
			return domain.ExecutionResult{Success: true, RecordsProcessed: 12}, nil
		})); err != nil {
		t.Fatal(err)
	}

	p := NewPool(q, reg, nil, sink, 1, time.Second)
	p.process(context.Background(), testTask(domain.JobTypeCleanup))

	if len(q.completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(q.completed))
	}
	if len(q.failed) != 0 {
		t.Fatalf("failed = %d, want 0", len(q.failed))
	}
	if len(sink.processed) != 1 || sink.processed[0] != "cleanup/completed" {
		t.Fatalf("sink = %v, want [cleanup/completed]", sink.processed)
	}
}

func TestProcess_TransientFailureGoesToRetryPath(t *testing.T) {
	q := &mockQueue{}
	sink := &fakeSink{}
	reg := scheduler.NewRegistry()
	if err := reg.Register(domain.JobTypeAggregation, scheduler.HandlerFunc(
		func(context.Context, queue.Task) (domain.ExecutionResult, error) {
			return domain.ExecutionResult{}, domain.NewTransientError("db unavailable", errors.New("connection refused"))
		})); err != nil {
		t.Fatal(err)
	}

	p := NewPool(q, reg, nil, sink, 1, time.Second)
	task := testTask(domain.JobTypeAggregation)
	p.process(context.Background(), task)

	if len(q.failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(q.failed))
	}
	// Attempt is untouched on the retry path; the queue advances it.
	if q.failed[0].task.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", q.failed[0].task.Attempt)
	}
	if len(sink.retried) != 1 {
		t.Fatalf("retried = %d, want 1", len(sink.retried))
	}
}

func TestProcess_ValidationFailureIsTerminal(t *testing.T) {
	q := &mockQueue{}
	reg := scheduler.NewRegistry()
	if err := reg.Register(domain.JobTypeDailySummary, scheduler.HandlerFunc(
		func(context.Context, queue.Task) (domain.ExecutionResult, error) {
			return domain.ExecutionResult{}, domain.NewValidationError("bad date")
		})); err != nil {
		t.Fatal(err)
	}

	p := NewPool(q, reg, nil, &fakeSink{}, 1, time.Second)
	task := testTask(domain.JobTypeDailySummary)
	p.process(context.Background(), task)

	if len(q.failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(q.failed))
	}
	// Attempt is exhausted so the queue marks the task failed, no retry.
	if q.failed[0].task.Attempt != task.MaxAttempts {
		t.Fatalf("attempt = %d, want %d", q.failed[0].task.Attempt, task.MaxAttempts)
	}
}

func TestProcess_UnknownJobTypeIsTerminal(t *testing.T) {
	q := &mockQueue{}
	p := NewPool(q, scheduler.NewRegistry(), nil, &fakeSink{}, 1, time.Second)

	task := testTask(domain.JobTypeWeeklySummary)
	p.process(context.Background(), task)

	if len(q.failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(q.failed))
	}
	if q.failed[0].task.Attempt != task.MaxAttempts {
		t.Fatalf("attempt = %d, want %d", q.failed[0].task.Attempt, task.MaxAttempts)
	}
	if !strings.Contains(q.failed[0].reason, "no handler registered") {
		t.Fatalf("reason = %q", q.failed[0].reason)
	}
}

func TestProcess_TimeoutBudgetCancelsHandler(t *testing.T) {
	q := &mockQueue{}
	reg := scheduler.NewRegistry()
	if err := reg.Register(domain.JobTypeDailySummary, scheduler.HandlerFunc(
		func(ctx context.Context, _ queue.Task) (domain.ExecutionResult, error) {
			<-ctx.Done()
			return domain.ExecutionResult{}, domain.NewTransientError("report", ctx.Err())
		})); err != nil {
		t.Fatal(err)
	}

	p := NewPool(q, reg, nil, &fakeSink{}, 1, time.Second)
	task := testTask(domain.JobTypeDailySummary)
	task.TimeoutMs = 20
	p.process(context.Background(), task)

	if len(q.failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(q.failed))
	}
	if !strings.Contains(q.failed[0].reason, "deadline exceeded") {
		t.Fatalf("reason = %q, want deadline exceeded", q.failed[0].reason)
	}
}

func TestRun_DrainsInFlightTaskOnShutdown(t *testing.T) {
	q := &mockQueue{}
	started := make(chan struct{})
	release := make(chan struct{})
	reg := scheduler.NewRegistry()
	if err := reg.Register(domain.JobTypeCleanup, scheduler.HandlerFunc(
		func(context.Context, queue.Task) (domain.ExecutionResult, error) {
			close(started)
			<-release
			return domain.ExecutionResult{Success: true}, nil
		})); err != nil {
		t.Fatal(err)
	}
	q.tasks = []queue.Task{testTask(domain.JobTypeCleanup)}

	p := NewPool(q, reg, nil, &fakeSink{}, 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	<-started
	if !p.Alive() {
		t.Fatal("pool must report alive while running")
	}
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain")
	}

	if p.Alive() {
		t.Fatal("pool must report dead after drain")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.completed) != 1 {
		t.Fatalf("completed = %d, want the in-flight task to finish", len(q.completed))
	}
}
