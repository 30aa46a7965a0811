// Package monitor records job execution lifecycles, computes rolling
// performance statistics, and evaluates alert rules. Monitor failures are
// logged and swallowed: they must never fail the job pipeline.
package monitor

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// Store is the persistence contract for execution history and alert rules.
// List methods return rows newest first.
type Store interface {
	InsertExecution(ctx context.Context, rec domain.ExecutionRecord) (uuid.UUID, error)
	ListExecutionsSince(ctx context.Context, jobID uuid.UUID, since time.Time) ([]domain.ExecutionRecord, error)
	ListAllExecutionsSince(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error)
	RecentExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.ExecutionRecord, error)

	InsertAlert(ctx context.Context, alert domain.JobAlert) error
	AlertsForJob(ctx context.Context, jobID uuid.UUID) ([]domain.JobAlert, error)
	MarkAlertTriggered(ctx context.Context, alertID uuid.UUID, at time.Time) error

	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers triggered alerts. Delivery failures are logged by the
// monitor, never retried.
type Notifier interface {
	SendAlertEmail(ctx context.Context, recipients []string, alert AlertNotification) error
	SendAlertWebhook(ctx context.Context, url string, alert AlertNotification) error
}

// AlertNotification is the payload handed to notification channels.
type AlertNotification struct {
	JobID           uuid.UUID        `json:"jobId"`
	JobName         string           `json:"jobName"`
	AlertType       domain.AlertType `json:"alertType"`
	ExecutionID     string           `json:"executionId"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	Threshold       float64          `json:"threshold"`
	TriggeredAt     time.Time        `json:"triggeredAt"`
}

// ErrorCount is one distinct error message with its frequency.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// PerformanceMetrics is the trailing-window view of one job.
type PerformanceMetrics struct {
	JobID               uuid.UUID    `json:"jobId"`
	WindowDays          int          `json:"windowDays"`
	Executions          int          `json:"executions"`
	MeanExecutionTimeMs float64      `json:"meanExecutionTimeMs"`
	SuccessRatePct      float64      `json:"successRatePct"`
	FailureRatePct      float64      `json:"failureRatePct"`
	MeanAttempts        float64      `json:"meanAttempts"`
	LastExecutionAt     time.Time    `json:"lastExecutionAt"`
	TopErrors           []ErrorCount `json:"topErrors"`
}

// JobFailureCount names a job and its recent failure count.
type JobFailureCount struct {
	JobID    uuid.UUID `json:"jobId"`
	JobName  string    `json:"jobName"`
	Failures int       `json:"failures"`
}

// SystemOverview aggregates the last 24 hours across all jobs.
type SystemOverview struct {
	CountsByStatus      map[domain.ExecutionStatus]int `json:"countsByStatus"`
	MeanExecutionTimeMs float64                        `json:"meanExecutionTimeMs"`
	SystemLoad          float64                        `json:"systemLoad"`
	TopFailingJobs      []JobFailureCount              `json:"topFailingJobs"`
}

const (
	topErrorCount        = 5
	topFailingJobCount   = 5
	consecutiveLookback  = 10
	slowExecutionWindow  = 7 * 24 * time.Hour
	systemOverviewWindow = 24 * time.Hour
	loadPerRunningJob    = 10.0
	loadPerRecentFailure = 5.0
	maxSystemLoad        = 100.0
)

// MetricsSink records fired alerts. Must be non-blocking and
// fire-and-forget.
type MetricsSink interface {
	AlertFired(alertType domain.AlertType)
}

type Monitor struct {
	store    Store
	notifier Notifier    // optional, nil = alerts evaluated but not delivered
	metrics  MetricsSink // optional
	clock    func() time.Time
}

func New(store Store) *Monitor {
	return &Monitor{store: store, clock: time.Now}
}

// WithNotifier attaches the alert delivery channels.
func (m *Monitor) WithNotifier(n Notifier) *Monitor {
	m.notifier = n
	return m
}

// WithMetrics attaches a metrics sink.
func (m *Monitor) WithMetrics(sink MetricsSink) *Monitor {
	m.metrics = sink
	return m
}

// RecordExecution inserts an execution history row and, when the execution
// failed, evaluates the job's alert rules. Returns uuid.Nil on persistence
// failure instead of an error: the caller's job outcome must not depend on
// the monitor.
func (m *Monitor) RecordExecution(ctx context.Context, rec domain.ExecutionRecord) uuid.UUID {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.clock().UTC()
	}

	id, err := m.store.InsertExecution(ctx, rec)
	if err != nil {
		log.Printf("monitor: record execution job=%s failed: %v", rec.JobID, err)
		return uuid.Nil
	}

	if rec.Status == domain.ExecutionStatusFailed {
		m.evaluateAlerts(ctx, rec)
	}

	return id
}

// JobPerformanceMetrics computes trailing-window statistics for one job.
// Returns nil when there is no execution history in the window.
func (m *Monitor) JobPerformanceMetrics(ctx context.Context, jobID uuid.UUID, windowDays int) (*PerformanceMetrics, error) {
	since := m.clock().UTC().AddDate(0, 0, -windowDays)
	rows, err := m.store.ListExecutionsSince(ctx, jobID, since)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	metrics := &PerformanceMetrics{
		JobID:      jobID,
		WindowDays: windowDays,
		Executions: len(rows),
	}

	var totalTime, totalAttempts int64
	var completed, failed int
	errorCounts := make(map[string]int)

	for _, r := range rows {
		totalTime += r.ExecutionTimeMs
		totalAttempts += int64(r.Attempt)
		switch r.Status {
		case domain.ExecutionStatusCompleted:
			completed++
		case domain.ExecutionStatusFailed:
			failed++
			if r.ErrorMessage != "" {
				errorCounts[r.ErrorMessage]++
			}
		}
		if r.StartedAt.After(metrics.LastExecutionAt) {
			metrics.LastExecutionAt = r.StartedAt
		}
	}

	n := float64(len(rows))
	metrics.MeanExecutionTimeMs = float64(totalTime) / n
	metrics.SuccessRatePct = float64(completed) / n * 100
	metrics.FailureRatePct = float64(failed) / n * 100
	metrics.MeanAttempts = float64(totalAttempts) / n
	metrics.TopErrors = topErrors(errorCounts, topErrorCount)

	return metrics, nil
}

// SystemOverview aggregates the last 24 hours across every job.
func (m *Monitor) SystemOverview(ctx context.Context) (*SystemOverview, error) {
	since := m.clock().UTC().Add(-systemOverviewWindow)
	rows, err := m.store.ListAllExecutionsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	overview := &SystemOverview{
		CountsByStatus: make(map[domain.ExecutionStatus]int),
	}

	var totalTime int64
	failuresByJob := make(map[uuid.UUID]*JobFailureCount)

	for _, r := range rows {
		overview.CountsByStatus[r.Status]++
		totalTime += r.ExecutionTimeMs
		if r.Status == domain.ExecutionStatusFailed {
			jf, ok := failuresByJob[r.JobID]
			if !ok {
				jf = &JobFailureCount{JobID: r.JobID, JobName: r.JobName}
				failuresByJob[r.JobID] = jf
			}
			jf.Failures++
		}
	}

	if len(rows) > 0 {
		overview.MeanExecutionTimeMs = float64(totalTime) / float64(len(rows))
	}

	// Load is a weighted blend of concurrently running jobs and recent
	// failures, capped at 100.
	running := overview.CountsByStatus[domain.ExecutionStatusRunning]
	failed := overview.CountsByStatus[domain.ExecutionStatusFailed]
	load := float64(running)*loadPerRunningJob + float64(failed)*loadPerRecentFailure
	if load > maxSystemLoad {
		load = maxSystemLoad
	}
	overview.SystemLoad = load

	for _, jf := range failuresByJob {
		overview.TopFailingJobs = append(overview.TopFailingJobs, *jf)
	}
	sort.Slice(overview.TopFailingJobs, func(i, j int) bool {
		if overview.TopFailingJobs[i].Failures != overview.TopFailingJobs[j].Failures {
			return overview.TopFailingJobs[i].Failures > overview.TopFailingJobs[j].Failures
		}
		return overview.TopFailingJobs[i].JobName < overview.TopFailingJobs[j].JobName
	})
	if len(overview.TopFailingJobs) > topFailingJobCount {
		overview.TopFailingJobs = overview.TopFailingJobs[:topFailingJobCount]
	}

	return overview, nil
}

// CreateAlert persists an alert rule. It is not evaluated retroactively.
func (m *Monitor) CreateAlert(ctx context.Context, alert domain.JobAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.clock().UTC()
	}
	return m.store.InsertAlert(ctx, alert)
}

// CleanupOldExecutions deletes completed executions older than the cutoff
// and returns the count removed. Failed rows are retained for audit.
func (m *Monitor) CleanupOldExecutions(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := m.clock().UTC().AddDate(0, 0, -retentionDays)
	return m.store.DeleteCompletedBefore(ctx, cutoff)
}

// topErrors returns the n most frequent messages, ties broken by message.
func topErrors(counts map[string]int, n int) []ErrorCount {
	out := make([]ErrorCount, 0, len(counts))
	for msg, c := range counts {
		out = append(out, ErrorCount{Message: msg, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
