package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{Field: "DATABASE_URL", Message: "required"})
	}

	if cfg.RedisAddr == "" {
		errs = append(errs, ValidationError{Field: "REDIS_ADDR", Message: "required (queue backend)"})
	}

	if _, err := time.LoadLocation(cfg.VenueTimezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "VENUE_TIMEZONE",
			Message: fmt.Sprintf("invalid IANA timezone: %v", err),
		})
	}

	for _, d := range []struct {
		field string
		raw   string
	}{
		{"TICK_INTERVAL", cfg.TickIntervalStr},
		{"DEQUEUE_WAIT", cfg.DequeueWaitStr},
		{"DRAIN_TIMEOUT", cfg.DrainTimeoutStr},
		{"DB_OP_TIMEOUT", cfg.DBOpTimeoutStr},
		{"JANITOR_INTERVAL", cfg.JanitorIntervalStr},
		{"STALE_CLAIM_THRESHOLD", cfg.StaleClaimThresholdStr},
	} {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if parsed <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Message: "must be positive"})
		}
	}

	if cfg.WorkerConcurrency < 1 {
		errs = append(errs, ValidationError{Field: "WORKER_CONCURRENCY", Message: "must be at least 1"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
