// Package metrics exposes the pipeline's Prometheus instrumentation behind
// a Sink interface. Every method is fire-and-forget: metrics must never
// block or fail the job path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
)

// Sink receives pipeline events. Implementations must be safe for
// concurrent use.
type Sink interface {
	TaskProcessed(jobType domain.JobType, outcome string, duration time.Duration)
	TaskRetried(jobType domain.JobType)
	QueueDepth(stats queue.Stats)
	AlertFired(alertType domain.AlertType)
	ReportGenerated(reportType string, source string, duration time.Duration)
}

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

type PrometheusSink struct {
	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	alertsTotal    *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the pipeline collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backhouse",
			Name:      "tasks_processed_total",
			Help:      "Tasks processed, by job type and outcome.",
		}, []string{"job_type", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backhouse",
			Name:      "task_duration_seconds",
			Help:      "Task execution time, by job type.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"job_type"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backhouse",
			Name:      "task_retries_total",
			Help:      "Retries scheduled after task failure, by job type.",
		}, []string{"job_type"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "backhouse",
			Name:      "queue_depth",
			Help:      "Tasks per queue state.",
		}, []string{"state"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backhouse",
			Name:      "alerts_fired_total",
			Help:      "Alerts fired, by alert type.",
		}, []string{"alert_type"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backhouse",
			Name:      "report_generation_seconds",
			Help:      "Report generation time, by report type and data source.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"report_type", "source"}),
	}

	reg.MustRegister(
		s.tasksTotal,
		s.taskDuration,
		s.retriesTotal,
		s.queueDepth,
		s.alertsTotal,
		s.reportDuration,
	)
	return s
}

func (s *PrometheusSink) TaskProcessed(jobType domain.JobType, outcome string, duration time.Duration) {
	s.tasksTotal.WithLabelValues(string(jobType), outcome).Inc()
	s.taskDuration.WithLabelValues(string(jobType)).Observe(duration.Seconds())
}

func (s *PrometheusSink) TaskRetried(jobType domain.JobType) {
	s.retriesTotal.WithLabelValues(string(jobType)).Inc()
}

func (s *PrometheusSink) QueueDepth(stats queue.Stats) {
	s.queueDepth.WithLabelValues("pending").Set(float64(stats.Pending))
	s.queueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
	s.queueDepth.WithLabelValues("running").Set(float64(stats.Running))
	s.queueDepth.WithLabelValues("paused").Set(float64(stats.Paused))
}

func (s *PrometheusSink) AlertFired(alertType domain.AlertType) {
	s.alertsTotal.WithLabelValues(string(alertType)).Inc()
}

func (s *PrometheusSink) ReportGenerated(reportType string, source string, duration time.Duration) {
	s.reportDuration.WithLabelValues(reportType, source).Observe(duration.Seconds())
}

// NoopSink discards every event. Used in tests and when metrics are
// disabled.
type NoopSink struct{}

func (NoopSink) TaskProcessed(domain.JobType, string, time.Duration) {}
func (NoopSink) TaskRetried(domain.JobType)                          {}
func (NoopSink) QueueDepth(queue.Stats)                              {}
func (NoopSink) AlertFired(domain.AlertType)                         {}
func (NoopSink) ReportGenerated(string, string, time.Duration)       {}

var (
	_ Sink = (*PrometheusSink)(nil)
	_ Sink = NoopSink{}
)
