package api

import "time"

// CreateJobRequest schedules either a recurring job (cron_expression set)
// or a one-time job (delay_seconds, defaulting to immediate).
type CreateJobRequest struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Payload        any    `json:"payload,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	DelaySeconds   int    `json:"delay_seconds,omitempty"`
	Priority       string `json:"priority,omitempty"` // critical|high|normal|low
	Timezone       string `json:"timezone,omitempty"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	TimeoutMs      int64  `json:"timeout_ms,omitempty"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Recurring bool   `json:"recurring"`
	CreatedAt string `json:"created_at"`
}

// CreateAlertRequest attaches an alert rule to a job.
type CreateAlertRequest struct {
	Type       string   `json:"type"` // failure|consecutive_failures|slow_execution|timeout
	Threshold  float64  `json:"threshold,omitempty"`
	Channels   []string `json:"channels"` // email|webhook
	Recipients []string `json:"recipients,omitempty"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

type AlertResponse struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
	Type  string `json:"type"`
}

type TaskStatusResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
