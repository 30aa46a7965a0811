package monitor

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// evaluateAlerts runs every enabled alert rule for the job against the
// just-recorded failed execution. Evaluation errors are logged, never
// propagated.
func (m *Monitor) evaluateAlerts(ctx context.Context, rec domain.ExecutionRecord) {
	alerts, err := m.store.AlertsForJob(ctx, rec.JobID)
	if err != nil {
		log.Printf("monitor: load alerts job=%s failed: %v", rec.JobID, err)
		return
	}

	for _, alert := range alerts {
		if !alert.Enabled {
			continue
		}
		triggered, err := m.shouldTrigger(ctx, alert, rec)
		if err != nil {
			log.Printf("monitor: evaluate alert=%s type=%s failed: %v", alert.ID, alert.Type, err)
			continue
		}
		if triggered {
			m.fire(ctx, alert, rec)
		}
	}
}

func (m *Monitor) shouldTrigger(ctx context.Context, alert domain.JobAlert, rec domain.ExecutionRecord) (bool, error) {
	switch alert.Type {
	case domain.AlertTypeFailure:
		return true, nil

	case domain.AlertTypeConsecutiveFailures:
		run, err := m.consecutiveFailures(ctx, rec.JobID)
		if err != nil {
			return false, err
		}
		return run >= int(alert.Threshold), nil

	case domain.AlertTypeSlowExecution:
		mean, err := m.historicalMean(ctx, rec)
		if err != nil {
			return false, err
		}
		if mean <= 0 {
			return false, nil
		}
		return float64(rec.ExecutionTimeMs) > mean*alert.Threshold, nil

	case domain.AlertTypeTimeout:
		msg := strings.ToLower(rec.ErrorMessage)
		return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"), nil
	}

	return false, nil
}

// consecutiveFailures counts the failure run at the head of the job's
// history, walking backward from the newest execution until a non-failure
// is hit. At most the last 10 executions are considered.
func (m *Monitor) consecutiveFailures(ctx context.Context, jobID uuid.UUID) (int, error) {
	rows, err := m.store.RecentExecutions(ctx, jobID, consecutiveLookback)
	if err != nil {
		return 0, err
	}
	run := 0
	for _, r := range rows {
		if r.Status != domain.ExecutionStatusFailed {
			break
		}
		run++
	}
	return run, nil
}

// historicalMean averages completed execution times over the trailing week,
// excluding the execution under evaluation.
func (m *Monitor) historicalMean(ctx context.Context, rec domain.ExecutionRecord) (float64, error) {
	since := m.clock().UTC().Add(-slowExecutionWindow)
	rows, err := m.store.ListExecutionsSince(ctx, rec.JobID, since)
	if err != nil {
		return 0, err
	}
	var total int64
	var n int
	for _, r := range rows {
		if r.ID == rec.ID || r.Status != domain.ExecutionStatusCompleted {
			continue
		}
		total += r.ExecutionTimeMs
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return float64(total) / float64(n), nil
}

// fire delivers the alert on every configured channel and stamps
// last_triggered_at. The stamp is written regardless of delivery outcome so
// a flapping channel cannot re-trigger the same rule in a tight loop.
func (m *Monitor) fire(ctx context.Context, alert domain.JobAlert, rec domain.ExecutionRecord) {
	now := m.clock().UTC()
	notification := AlertNotification{
		JobID:           rec.JobID,
		JobName:         rec.JobName,
		AlertType:       alert.Type,
		ExecutionID:     rec.ExecutionID,
		ErrorMessage:    rec.ErrorMessage,
		ExecutionTimeMs: rec.ExecutionTimeMs,
		Threshold:       alert.Threshold,
		TriggeredAt:     now,
	}

	if err := m.store.MarkAlertTriggered(ctx, alert.ID, now); err != nil {
		log.Printf("monitor: mark alert=%s triggered failed: %v", alert.ID, err)
	}
	if m.metrics != nil {
		m.metrics.AlertFired(alert.Type)
	}

	if m.notifier == nil {
		log.Printf("monitor: alert=%s type=%s job=%s triggered (no notifier configured)", alert.ID, alert.Type, rec.JobName)
		return
	}

	for _, ch := range alert.Channels {
		switch ch {
		case domain.AlertChannelEmail:
			if len(alert.Recipients) == 0 {
				continue
			}
			if err := m.notifier.SendAlertEmail(ctx, alert.Recipients, notification); err != nil {
				log.Printf("monitor: alert=%s email delivery failed: %v", alert.ID, err)
			}
		case domain.AlertChannelWebhook:
			if alert.WebhookURL == "" {
				continue
			}
			if err := m.notifier.SendAlertWebhook(ctx, alert.WebhookURL, notification); err != nil {
				log.Printf("monitor: alert=%s webhook delivery failed: %v", alert.ID, err)
			}
		}
	}
}
