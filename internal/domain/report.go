package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReportType string

const (
	ReportTypeDailySummary  ReportType = "daily_summary"
	ReportTypeWeeklySummary ReportType = "weekly_summary"
)

type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatPDF   OutputFormat = "pdf"
	OutputFormatExcel OutputFormat = "excel"
	OutputFormatCSV   OutputFormat = "csv"
	OutputFormatHTML  OutputFormat = "html"
)

// ReportSummary is the human-readable digest persisted with each generation.
type ReportSummary struct {
	Title           string   `json:"title"`
	Highlights      []string `json:"highlights"`
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
}

// ReportGenerationRecord is an append-only audit row, created once per
// generator invocation immediately after data collection succeeds and
// immutable thereafter. (report_type, period_start) is unique: a concurrent
// generation for the same period is rejected, not overwritten.
type ReportGenerationRecord struct {
	ID         uuid.UUID  `db:"id"`
	TemplateID string     `db:"template_id"`
	ReportType ReportType `db:"report_type"`

	GeneratedAt time.Time `db:"generated_at"`
	PeriodStart time.Time `db:"period_start"`
	PeriodEnd   time.Time `db:"period_end"`

	OutputFormat      OutputFormat `db:"output_format"`
	RecordsProcessed  int          `db:"records_processed"`
	SectionsGenerated int          `db:"sections_generated"`

	Summary    ReportSummary      `db:"-"`
	KeyMetrics map[string]float64 `db:"-"`

	Success bool `db:"success"`
}
