package domain

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertTypeFailure             AlertType = "failure"
	AlertTypeConsecutiveFailures AlertType = "consecutive_failures"
	AlertTypeSlowExecution       AlertType = "slow_execution"
	AlertTypeTimeout             AlertType = "timeout"
)

type AlertChannel string

const (
	AlertChannelEmail   AlertChannel = "email"
	AlertChannelWebhook AlertChannel = "webhook"
)

// JobAlert is a rule bound to a job. Disabled alerts are never evaluated.
type JobAlert struct {
	ID    uuid.UUID `db:"id"`
	JobID uuid.UUID `db:"job_id"`

	Type      AlertType `db:"alert_type"`
	Threshold float64   `db:"threshold"`

	Channels   []AlertChannel `db:"-"`
	Recipients []string       `db:"-"`
	WebhookURL string         `db:"webhook_url"`

	Enabled         bool       `db:"enabled"`
	LastTriggeredAt *time.Time `db:"last_triggered_at"`

	CreatedAt time.Time `db:"created_at"`
}
