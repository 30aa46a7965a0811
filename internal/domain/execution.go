package domain

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// pending -> running -> {completed|failed} is the only legal path.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// ExecutionRecord is one row per attempt of a job. Attempt increments only
// on retry of the same logical trigger and never decreases.
type ExecutionRecord struct {
	ID          uuid.UUID `db:"id"`
	JobID       uuid.UUID `db:"job_id"`
	ExecutionID string    `db:"execution_id"`
	JobName     string    `db:"job_name"`
	JobType     JobType   `db:"job_type"`

	Status ExecutionStatus `db:"status"`

	StartedAt       time.Time  `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	ExecutionTimeMs int64      `db:"execution_time_ms"`
	Attempt         int        `db:"attempt"`

	ErrorMessage string `db:"error_message"`
	ErrorStack   string `db:"error_stack"`
	Result       []byte `db:"result"`

	CPUPercent       float64 `db:"cpu_percent"`
	MemoryMB         float64 `db:"memory_mb"`
	RecordsProcessed int     `db:"records_processed"`

	CreatedAt time.Time `db:"created_at"`
}

// ExecutionResult is what a handler returns to the worker on success.
type ExecutionResult struct {
	Success          bool      `json:"success"`
	Result           any       `json:"result,omitempty"`
	ExecutionTimeMs  int64     `json:"executionTimeMs"`
	ProcessedAt      time.Time `json:"processedAt"`
	RecordsProcessed int       `json:"recordsProcessed,omitempty"`
}
