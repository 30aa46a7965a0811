// Package postgres implements the monitor and report persistence contracts
// on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/report"
)

// Store implements monitor.Store, report.MetricsSource, report.HistoryStore
// and worker.Aggregator.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects, applies pool limits and verifies the connection.
func Open(ctx context.Context, url string, maxOpen, maxIdle int, pingTimeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying pool for components that need their own
// connection, e.g. leader election.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// InsertExecution appends one execution history row.
func (s *Store) InsertExecution(ctx context.Context, rec domain.ExecutionRecord) (uuid.UUID, error) {
	if _, err := s.db.NamedExecContext(ctx, queryInsertExecution, rec); err != nil {
		return uuid.Nil, fmt.Errorf("insert execution: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) ListExecutionsSince(ctx context.Context, jobID uuid.UUID, since time.Time) ([]domain.ExecutionRecord, error) {
	var rows []domain.ExecutionRecord
	if err := s.db.SelectContext(ctx, &rows, queryListExecutionsSince, jobID, since); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return rows, nil
}

func (s *Store) ListAllExecutionsSince(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	var rows []domain.ExecutionRecord
	if err := s.db.SelectContext(ctx, &rows, queryListAllExecutionsSince, since); err != nil {
		return nil, fmt.Errorf("list all executions: %w", err)
	}
	return rows, nil
}

func (s *Store) RecentExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	var rows []domain.ExecutionRecord
	if err := s.db.SelectContext(ctx, &rows, queryRecentExecutions, jobID, limit); err != nil {
		return nil, fmt.Errorf("recent executions: %w", err)
	}
	return rows, nil
}

// DeleteCompletedBefore removes completed executions older than cutoff and
// returns the count. Failed rows are never touched.
func (s *Store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryDeleteCompletedBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete executions: %w", err)
	}
	return res.RowsAffected()
}

// alertRow adapts domain.JobAlert's slice fields to text[] columns.
type alertRow struct {
	ID              uuid.UUID      `db:"id"`
	JobID           uuid.UUID      `db:"job_id"`
	Type            string         `db:"alert_type"`
	Threshold       float64        `db:"threshold"`
	Channels        pq.StringArray `db:"channels"`
	Recipients      pq.StringArray `db:"recipients"`
	WebhookURL      string         `db:"webhook_url"`
	Enabled         bool           `db:"enabled"`
	LastTriggeredAt *time.Time     `db:"last_triggered_at"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r alertRow) toDomain() domain.JobAlert {
	alert := domain.JobAlert{
		ID:              r.ID,
		JobID:           r.JobID,
		Type:            domain.AlertType(r.Type),
		Threshold:       r.Threshold,
		WebhookURL:      r.WebhookURL,
		Enabled:         r.Enabled,
		LastTriggeredAt: r.LastTriggeredAt,
		CreatedAt:       r.CreatedAt,
		Recipients:      []string(r.Recipients),
	}
	for _, ch := range r.Channels {
		alert.Channels = append(alert.Channels, domain.AlertChannel(ch))
	}
	return alert
}

func (s *Store) InsertAlert(ctx context.Context, alert domain.JobAlert) error {
	channels := make(pq.StringArray, 0, len(alert.Channels))
	for _, ch := range alert.Channels {
		channels = append(channels, string(ch))
	}

	_, err := s.db.ExecContext(ctx, queryInsertAlert,
		alert.ID,
		alert.JobID,
		string(alert.Type),
		alert.Threshold,
		channels,
		pq.StringArray(alert.Recipients),
		alert.WebhookURL,
		alert.Enabled,
		alert.LastTriggeredAt,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *Store) AlertsForJob(ctx context.Context, jobID uuid.UUID) ([]domain.JobAlert, error) {
	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, queryAlertsForJob, jobID); err != nil {
		return nil, fmt.Errorf("alerts for job: %w", err)
	}
	alerts := make([]domain.JobAlert, 0, len(rows))
	for _, r := range rows {
		alerts = append(alerts, r.toDomain())
	}
	return alerts, nil
}

func (s *Store) MarkAlertTriggered(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryMarkAlertTriggered, alertID, at); err != nil {
		return fmt.Errorf("mark alert triggered: %w", err)
	}
	return nil
}

// Rollup returns the materialized overview for the period, or (nil, nil)
// when no row exists.
func (s *Store) Rollup(ctx context.Context, reportType domain.ReportType, periodStart time.Time) (*report.OverviewMetrics, error) {
	var row struct {
		Bookings       int     `db:"bookings"`
		GrossRevenue   float64 `db:"gross_revenue"`
		Guests         int     `db:"guests"`
		TablesOccupied int     `db:"tables_occupied"`
		OccupancyRate  float64 `db:"occupancy_rate"`
	}
	err := s.db.GetContext(ctx, &row, queryRollup, string(reportType), periodStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("rollup: %w", err)
	}
	return &report.OverviewMetrics{
		Bookings:       row.Bookings,
		GrossRevenue:   row.GrossRevenue,
		Guests:         row.Guests,
		TablesOccupied: row.TablesOccupied,
		OccupancyRate:  row.OccupancyRate,
	}, nil
}

func (s *Store) DailyAggregates(ctx context.Context, start, end time.Time) ([]report.DailyAggregate, error) {
	var rows []report.DailyAggregate
	if err := s.db.SelectContext(ctx, &rows, queryDailyAggregates, start, end); err != nil {
		return nil, fmt.Errorf("daily aggregates: %w", err)
	}
	return rows, nil
}

func (s *Store) Bookings(ctx context.Context, start, end time.Time) ([]report.BookingRecord, error) {
	var rows []report.BookingRecord
	if err := s.db.SelectContext(ctx, &rows, queryBookings, start, end); err != nil {
		return nil, fmt.Errorf("bookings: %w", err)
	}
	return rows, nil
}

// InsertGeneration appends one report generation audit row. A row already
// existing for (report_type, period_start) maps to ErrDuplicateGeneration.
func (s *Store) InsertGeneration(ctx context.Context, rec domain.ReportGenerationRecord) error {
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	keyMetrics, err := json.Marshal(rec.KeyMetrics)
	if err != nil {
		return fmt.Errorf("marshal key metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryInsertGeneration,
		rec.ID,
		rec.TemplateID,
		string(rec.ReportType),
		rec.GeneratedAt,
		rec.PeriodStart,
		rec.PeriodEnd,
		string(rec.OutputFormat),
		rec.RecordsProcessed,
		rec.SectionsGenerated,
		summary,
		keyMetrics,
		rec.Success,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return report.ErrDuplicateGeneration
		}
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// AggregateDay materializes the aggregate row for one local day.
func (s *Store) AggregateDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var bookings int
	err := s.db.QueryRowContext(ctx, queryAggregateDay, start.Format("2006-01-02"), start, end).Scan(&bookings)
	if err != nil {
		return 0, fmt.Errorf("aggregate day: %w", err)
	}
	return bookings, nil
}

// isDuplicateKeyError checks for a PostgreSQL unique violation. 23505 is the
// unique_violation SQLSTATE; the message patterns cover lib/pq and pgx.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
