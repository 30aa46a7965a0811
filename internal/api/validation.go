package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

func jobFromRequest(req CreateJobRequest) (domain.Job, error) {
	jobType := domain.JobType(req.Type)
	if !jobType.Valid() {
		return domain.Job{}, fmt.Errorf("unknown job type %q", req.Type)
	}
	if req.DelaySeconds < 0 {
		return domain.Job{}, errors.New("delay_seconds must not be negative")
	}
	if req.CronExpression != "" && req.DelaySeconds > 0 {
		return domain.Job{}, errors.New("cron_expression and delay_seconds are mutually exclusive")
	}

	priority, err := parsePriority(req.Priority)
	if err != nil {
		return domain.Job{}, err
	}

	var payload []byte
	if req.Payload != nil {
		payload, err = json.Marshal(req.Payload)
		if err != nil {
			return domain.Job{}, fmt.Errorf("invalid payload: %v", err)
		}
	}

	return domain.Job{
		Name:           req.Name,
		Type:           jobType,
		Payload:        payload,
		CronExpression: req.CronExpression,
		Delay:          time.Duration(req.DelaySeconds) * time.Second,
		Priority:       priority,
		Timezone:       req.Timezone,
		MaxAttempts:    req.MaxAttempts,
		Timeout:        time.Duration(req.TimeoutMs) * time.Millisecond,
	}, nil
}

func parsePriority(s string) (domain.Priority, error) {
	switch s {
	case "", "normal":
		return domain.PriorityNormal, nil
	case "critical":
		return domain.PriorityCritical, nil
	case "high":
		return domain.PriorityHigh, nil
	case "low":
		return domain.PriorityLow, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func alertFromRequest(jobID uuid.UUID, req CreateAlertRequest) (domain.JobAlert, error) {
	alertType := domain.AlertType(req.Type)
	switch alertType {
	case domain.AlertTypeFailure, domain.AlertTypeConsecutiveFailures,
		domain.AlertTypeSlowExecution, domain.AlertTypeTimeout:
	default:
		return domain.JobAlert{}, fmt.Errorf("unknown alert type %q", req.Type)
	}

	if alertType == domain.AlertTypeConsecutiveFailures && req.Threshold < 1 {
		return domain.JobAlert{}, errors.New("consecutive_failures requires threshold >= 1")
	}
	if alertType == domain.AlertTypeSlowExecution && req.Threshold <= 1 {
		return domain.JobAlert{}, errors.New("slow_execution requires a multiplier threshold > 1")
	}

	if len(req.Channels) == 0 {
		return domain.JobAlert{}, errors.New("at least one channel is required")
	}
	var channels []domain.AlertChannel
	for _, ch := range req.Channels {
		channel := domain.AlertChannel(ch)
		switch channel {
		case domain.AlertChannelEmail:
			if len(req.Recipients) == 0 {
				return domain.JobAlert{}, errors.New("email channel requires recipients")
			}
		case domain.AlertChannelWebhook:
			if req.WebhookURL == "" {
				return domain.JobAlert{}, errors.New("webhook channel requires webhook_url")
			}
		default:
			return domain.JobAlert{}, fmt.Errorf("unknown channel %q", ch)
		}
		channels = append(channels, channel)
	}

	return domain.JobAlert{
		ID:         uuid.New(),
		JobID:      jobID,
		Type:       alertType,
		Threshold:  req.Threshold,
		Channels:   channels,
		Recipients: req.Recipients,
		WebhookURL: req.WebhookURL,
		Enabled:    true,
	}, nil
}
