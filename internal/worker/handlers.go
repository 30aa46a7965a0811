package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/report"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
)

// reportPayload is the optional task payload shared by the report and
// maintenance handlers. All fields default sensibly when absent.
type reportPayload struct {
	ReportDate    string   `json:"reportDate,omitempty"` // YYYY-MM-DD
	WeekStart     string   `json:"weekStart,omitempty"`  // YYYY-MM-DD, normalized to Monday
	Format        string   `json:"format,omitempty"`
	Recipients    []string `json:"recipients,omitempty"`
	Day           string   `json:"day,omitempty"` // YYYY-MM-DD
	RetentionDays int      `json:"retentionDays,omitempty"`
}

func parsePayload(task queue.Task) (reportPayload, error) {
	var p reportPayload
	if len(task.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, domain.NewValidationError(fmt.Sprintf("malformed payload: %v", err))
	}
	return p, nil
}

func parseDay(value string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError(fmt.Sprintf("bad date %q: want YYYY-MM-DD", value))
	}
	return day, nil
}

// DailySummaryHandler generates the previous day's summary, or the payload's
// reportDate when given.
func DailySummaryHandler(gen *report.DailyGenerator, loc *time.Location) scheduler.Handler {
	return scheduler.HandlerFunc(func(ctx context.Context, task queue.Task) (domain.ExecutionResult, error) {
		p, err := parsePayload(task)
		if err != nil {
			return domain.ExecutionResult{}, err
		}

		reportDate := time.Now().In(loc).AddDate(0, 0, -1)
		if p.ReportDate != "" {
			if reportDate, err = parseDay(p.ReportDate, loc); err != nil {
				return domain.ExecutionResult{}, err
			}
		}

		start := time.Now()
		data, err := gen.Generate(ctx, reportDate, report.Options{
			Format:     domain.OutputFormat(p.Format),
			Recipients: p.Recipients,
		})
		if err != nil {
			return domain.ExecutionResult{}, domain.NewTransientError("generate daily summary", err)
		}

		return domain.ExecutionResult{
			Success:          true,
			Result:           data,
			ExecutionTimeMs:  time.Since(start).Milliseconds(),
			ProcessedAt:      time.Now().UTC(),
			RecordsProcessed: data.RecordsProcessed,
		}, nil
	})
}

// WeeklySummaryHandler generates the summary for the most recently completed
// week, or the week containing the payload's weekStart.
func WeeklySummaryHandler(gen *report.WeeklyGenerator, loc *time.Location) scheduler.Handler {
	return scheduler.HandlerFunc(func(ctx context.Context, task queue.Task) (domain.ExecutionResult, error) {
		p, err := parsePayload(task)
		if err != nil {
			return domain.ExecutionResult{}, err
		}

		weekStart := report.WeekStartOf(time.Now().In(loc).AddDate(0, 0, -7), loc)
		if p.WeekStart != "" {
			day, err := parseDay(p.WeekStart, loc)
			if err != nil {
				return domain.ExecutionResult{}, err
			}
			weekStart = report.WeekStartOf(day, loc)
		}

		start := time.Now()
		data, err := gen.Generate(ctx, weekStart, report.Options{
			Format:     domain.OutputFormat(p.Format),
			Recipients: p.Recipients,
		})
		if err != nil {
			return domain.ExecutionResult{}, domain.NewTransientError("generate weekly summary", err)
		}

		return domain.ExecutionResult{
			Success:          true,
			Result:           data,
			ExecutionTimeMs:  time.Since(start).Milliseconds(),
			ProcessedAt:      time.Now().UTC(),
			RecordsProcessed: data.RecordsProcessed,
		}, nil
	})
}

// Aggregator rolls one day of raw bookings into the daily aggregate row.
type Aggregator interface {
	AggregateDay(ctx context.Context, day time.Time) (int, error)
}

// AggregationHandler materializes yesterday's booking aggregate, or the
// payload's day when given. Re-running a day overwrites the previous row.
func AggregationHandler(agg Aggregator, loc *time.Location) scheduler.Handler {
	return scheduler.HandlerFunc(func(ctx context.Context, task queue.Task) (domain.ExecutionResult, error) {
		p, err := parsePayload(task)
		if err != nil {
			return domain.ExecutionResult{}, err
		}

		day := time.Now().In(loc).AddDate(0, 0, -1)
		if p.Day != "" {
			if day, err = parseDay(p.Day, loc); err != nil {
				return domain.ExecutionResult{}, err
			}
		}

		start := time.Now()
		rows, err := agg.AggregateDay(ctx, day)
		if err != nil {
			return domain.ExecutionResult{}, domain.NewTransientError("aggregate bookings", err)
		}

		return domain.ExecutionResult{
			Success:          true,
			Result:           map[string]any{"day": day.Format("2006-01-02"), "bookings": rows},
			ExecutionTimeMs:  time.Since(start).Milliseconds(),
			ProcessedAt:      time.Now().UTC(),
			RecordsProcessed: rows,
		}, nil
	})
}

// Cleaner prunes completed execution history.
type Cleaner interface {
	CleanupOldExecutions(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupHandler prunes completed execution history past the retention
// window. Failed executions are never deleted.
func CleanupHandler(mon Cleaner, retentionDays int) scheduler.Handler {
	return scheduler.HandlerFunc(func(ctx context.Context, task queue.Task) (domain.ExecutionResult, error) {
		p, err := parsePayload(task)
		if err != nil {
			return domain.ExecutionResult{}, err
		}

		days := retentionDays
		if p.RetentionDays > 0 {
			days = p.RetentionDays
		}

		start := time.Now()
		deleted, err := mon.CleanupOldExecutions(ctx, days)
		if err != nil {
			return domain.ExecutionResult{}, domain.NewTransientError("cleanup executions", err)
		}

		return domain.ExecutionResult{
			Success:          true,
			Result:           map[string]any{"deleted": deleted, "retentionDays": days},
			ExecutionTimeMs:  time.Since(start).Milliseconds(),
			ProcessedAt:      time.Now().UTC(),
			RecordsProcessed: int(deleted),
		}, nil
	})
}
