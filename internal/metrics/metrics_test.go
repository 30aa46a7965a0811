package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
)

func TestPrometheusSink_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)

	s.TaskProcessed(domain.JobTypeDailySummary, OutcomeCompleted, 200*time.Millisecond)
	s.TaskProcessed(domain.JobTypeDailySummary, OutcomeCompleted, 300*time.Millisecond)
	s.TaskProcessed(domain.JobTypeCleanup, OutcomeFailed, 50*time.Millisecond)

	got := testutil.ToFloat64(s.tasksTotal.WithLabelValues("daily_summary", "completed"))
	if got != 2 {
		t.Fatalf("daily completed = %v, want 2", got)
	}
	got = testutil.ToFloat64(s.tasksTotal.WithLabelValues("cleanup", "failed"))
	if got != 1 {
		t.Fatalf("cleanup failed = %v, want 1", got)
	}
}

func TestPrometheusSink_QueueDepthGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)

	s.QueueDepth(queue.Stats{Pending: 7, Delayed: 3, Running: 2, Paused: 1})
	s.QueueDepth(queue.Stats{Pending: 4})

	if got := testutil.ToFloat64(s.queueDepth.WithLabelValues("pending")); got != 4 {
		t.Fatalf("pending gauge = %v, want latest value 4", got)
	}
	if got := testutil.ToFloat64(s.queueDepth.WithLabelValues("delayed")); got != 0 {
		t.Fatalf("delayed gauge = %v, want 0", got)
	}
}

func TestNoopSink_ImplementsSink(t *testing.T) {
	var s Sink = NoopSink{}
	s.TaskProcessed(domain.JobTypeAggregation, OutcomeCompleted, time.Second)
	s.TaskRetried(domain.JobTypeAggregation)
	s.QueueDepth(queue.Stats{})
	s.AlertFired(domain.AlertTypeFailure)
	s.ReportGenerated("daily_summary", "live_bookings", time.Second)
}
