package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType is the closed set of work the pipeline knows how to dispatch.
type JobType string

const (
	JobTypeDailySummary  JobType = "daily_summary"
	JobTypeWeeklySummary JobType = "weekly_summary"
	JobTypeAggregation   JobType = "aggregation"
	JobTypeCleanup       JobType = "cleanup"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeDailySummary, JobTypeWeeklySummary, JobTypeAggregation, JobTypeCleanup:
		return true
	}
	return false
}

// Priority orders dequeue preference. Lower value is served first.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Job is a named, recurring or one-off unit of scheduled work.
// A Job is never mutated mid-execution; each run produces an independent
// ExecutionRecord.
type Job struct {
	ID   uuid.UUID
	Name string
	Type JobType

	// Payload is type-specific JSON, e.g. {"reportDate":"2026-08-30"}.
	Payload []byte

	// CronExpression is set for recurring jobs, Delay for one-time jobs.
	CronExpression string
	Delay          time.Duration

	Priority    Priority
	Timezone    string // IANA name, defaults to the venue's local timezone
	MaxAttempts int
	Timeout     time.Duration

	CreatedAt time.Time
}

// JobStatus is the scheduler-facing view of a job's queue state.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)
