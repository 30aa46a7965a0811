package domain

import "fmt"

// ErrorKind classifies job failures so callers can branch without
// inspecting message strings.
type ErrorKind string

const (
	// ErrorKindTransient failures are retried by the queue's backoff policy.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindValidation failures are rejected synchronously, before enqueue.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindInfrastructure failures are fatal at initialization.
	ErrorKindInfrastructure ErrorKind = "infrastructure"
)

// JobError is the structured failure a handler or the worker surfaces to the
// retry path.
type JobError struct {
	Kind            ErrorKind
	Message         string
	ExecutionTimeMs int64
	Err             error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure should feed the retry/backoff path.
func (e *JobError) Retryable() bool {
	return e.Kind == ErrorKindTransient
}

// NewTransientError wraps err as a retryable job failure.
func NewTransientError(msg string, err error) *JobError {
	return &JobError{Kind: ErrorKindTransient, Message: msg, Err: err}
}

// NewValidationError reports a request that must be rejected before enqueue.
func NewValidationError(msg string) *JobError {
	return &JobError{Kind: ErrorKindValidation, Message: msg}
}

// NewInfrastructureError reports a failure that makes the pipeline unusable.
func NewInfrastructureError(msg string, err error) *JobError {
	return &JobError{Kind: ErrorKindInfrastructure, Message: msg, Err: err}
}
