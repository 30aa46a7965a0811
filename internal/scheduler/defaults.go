package scheduler

import (
	"fmt"
	"time"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// Default venue schedule, evaluated in the venue's local timezone:
// daily summary after close-out, weekly summary Monday morning, nightly
// aggregation before the dailies, and history cleanup in the Sunday lull.
var defaultJobs = []domain.Job{
	{
		Name:           "daily_summary",
		Type:           domain.JobTypeDailySummary,
		CronExpression: "0 7 * * *",
		Priority:       domain.PriorityHigh,
		MaxAttempts:    3,
		Timeout:        5 * time.Minute,
	},
	{
		Name:           "weekly_summary",
		Type:           domain.JobTypeWeeklySummary,
		CronExpression: "0 8 * * 1",
		Priority:       domain.PriorityHigh,
		MaxAttempts:    3,
		Timeout:        10 * time.Minute,
	},
	{
		Name:           "booking_aggregation",
		Type:           domain.JobTypeAggregation,
		CronExpression: "30 3 * * *",
		Priority:       domain.PriorityNormal,
		MaxAttempts:    3,
		Timeout:        10 * time.Minute,
	},
	{
		Name:           "execution_cleanup",
		Type:           domain.JobTypeCleanup,
		CronExpression: "0 4 * * 0",
		Priority:       domain.PriorityLow,
		MaxAttempts:    2,
		Timeout:        5 * time.Minute,
	},
}

// RegisterDefaultJobs schedules the standing venue jobs. Registration is
// all-or-nothing: the first invalid definition aborts the rest.
func (s *Scheduler) RegisterDefaultJobs() error {
	for _, job := range defaultJobs {
		if _, err := s.ScheduleRecurring(job); err != nil {
			return fmt.Errorf("register default job %q: %w", job.Name, err)
		}
	}
	return nil
}
