// Package queue provides the durable Redis-backed work queue behind the
// scheduler. Dequeue is atomic at the Redis level, so multiple worker
// processes can pull from the same queue without double-claiming a task.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// Task is one enqueued execution of a job.
type Task struct {
	ID    string    `json:"id"` // execution id, unique per attempt chain
	JobID uuid.UUID `json:"job_id"`

	Name    string          `json:"name"`
	Type    domain.JobType  `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Priority    domain.Priority `json:"priority"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	TimeoutMs   int64           `json:"timeout_ms"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Timeout returns the task's execution budget, or zero if unset.
func (t Task) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Stats is a per-state task count snapshot for dashboards.
type Stats struct {
	Pending   int64 `json:"pending"`
	Delayed   int64 `json:"delayed"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    int64 `json:"paused"`
}

// Queue is the contract the scheduler and workers share.
type Queue interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) error
	// Dequeue blocks up to wait for a task. A nil task with nil error means
	// the wait elapsed with nothing ready.
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)
	Complete(ctx context.Context, task Task) error
	// Fail re-enqueues the task with backoff when attempts remain and
	// reports whether a retry was scheduled.
	Fail(ctx context.Context, task Task, reason string) (retried bool, err error)

	PauseJob(ctx context.Context, jobID uuid.UUID) error
	ResumeJob(ctx context.Context, jobID uuid.UUID) error
	RemoveJob(ctx context.Context, jobID uuid.UUID) error

	TaskState(ctx context.Context, id string) (domain.JobStatus, bool, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error

	// AcquireOnce claims key for ttl and reports whether this caller won.
	// Used for idempotent recurring emission across instances.
	AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
