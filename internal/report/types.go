// Package report builds the venue's daily and weekly summary payloads from
// the metrics source and records each generation.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// ErrDuplicateGeneration is returned by a HistoryStore when a record for
// (report_type, period_start) already exists. Generators treat it as
// "already generated" and do not re-persist or re-distribute.
var ErrDuplicateGeneration = errors.New("report generation already exists for period")

// totalTableCount is the venue's fixed table count; occupancy is always
// computed against it.
const totalTableCount = 16

// OverviewMetrics is the headline row every report opens with.
type OverviewMetrics struct {
	Bookings       int     `json:"totalBookings"`
	GrossRevenue   float64 `json:"totalRevenue"`
	Guests         int     `json:"totalGuests"`
	TablesOccupied int     `json:"tablesOccupied"`
	OccupancyRate  float64 `json:"occupancyRate"`
}

// DailyAggregate is one pre-computed rollup row from the nightly
// aggregation job.
type DailyAggregate struct {
	Date           time.Time `db:"date"`
	Bookings       int       `db:"bookings"`
	GrossRevenue   float64   `db:"gross_revenue"`
	Guests         int       `db:"guests"`
	TablesOccupied int       `db:"tables_occupied"`
}

// BookingRecord is a raw transactional row, used as the last fallback tier
// and for the domain breakdowns.
type BookingRecord struct {
	ID                string    `db:"id"`
	Status            string    `db:"status"`
	PartySize         int       `db:"party_size"`
	TotalAmount       float64   `db:"total_amount"`
	DepositAmount     float64   `db:"deposit_amount"`
	RefundAmount      float64   `db:"refund_amount"`
	TableID           string    `db:"table_id"`
	EventName         string    `db:"event_name"`
	EventDate         time.Time `db:"event_date"`
	PackageName       string    `db:"package_name"`
	CustomerID        string    `db:"customer_id"`
	CustomerCreatedAt time.Time `db:"customer_created_at"`
	CreatedAt         time.Time `db:"created_at"`
}

// MetricsSource is the read-only data store contract. Rollup returns
// (nil, nil) when no pre-aggregated row exists for the period.
type MetricsSource interface {
	Rollup(ctx context.Context, reportType domain.ReportType, periodStart time.Time) (*OverviewMetrics, error)
	DailyAggregates(ctx context.Context, start, end time.Time) ([]DailyAggregate, error)
	Bookings(ctx context.Context, start, end time.Time) ([]BookingRecord, error)
}

// HistoryStore persists generation records. Implementations return
// ErrDuplicateGeneration when (report_type, period_start) already exists.
type HistoryStore interface {
	InsertGeneration(ctx context.Context, rec domain.ReportGenerationRecord) error
}

// Distributor hands a finished report off for sending.
type Distributor interface {
	ScheduleSend(ctx context.Context, reportID uuid.UUID, recipients []string, payload any) error
}

// MetricsSink records generation timings together with the fallback tier
// that answered. Must be non-blocking and fire-and-forget.
type MetricsSink interface {
	ReportGenerated(reportType string, source string, duration time.Duration)
}

type RevenueSplit struct {
	Gross    float64 `json:"gross"`
	Net      float64 `json:"net"`
	Deposits float64 `json:"deposits"`
	Refunds  float64 `json:"refunds"`
	PerGuest float64 `json:"perGuest"`
	PerTable float64 `json:"perTable"`
}

type EventPerformance struct {
	EventName string    `json:"eventName"`
	EventDate time.Time `json:"eventDate"`
	Bookings  int       `json:"bookings"`
	Revenue   float64   `json:"revenue"`
	Guests    int       `json:"guests"`
}

type CustomerSegments struct {
	New       int `json:"new"`
	Returning int `json:"returning"`
}

type PackageRevenue struct {
	Name     string  `json:"name"`
	Revenue  float64 `json:"revenue"`
	Bookings int     `json:"bookings"`
}

// Breakdowns are the domain splits shared by the daily and weekly payloads.
type Breakdowns struct {
	StatusCounts     map[string]int     `json:"bookingStatusCounts"`
	Revenue          RevenueSplit       `json:"revenue"`
	EventPerformance []EventPerformance `json:"eventPerformance"`
	Segments         CustomerSegments   `json:"customerSegments"`
	TopPackages      []PackageRevenue   `json:"topPackages"`
}

// DailySummaryData is the computed daily payload. It is derived, never
// persisted directly; each run recomputes it from the metrics source.
type DailySummaryData struct {
	ReportDate time.Time `json:"reportDate"`

	Overview   OverviewMetrics `json:"overview"`
	Breakdowns Breakdowns      `json:"breakdowns"`

	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`

	RecordsProcessed int    `json:"recordsProcessed"`
	OverviewSource   string `json:"overviewSource"`
	FilePath         string `json:"filePath,omitempty"`
	FileURL          string `json:"fileUrl,omitempty"`
}

type WeeklyChanges struct {
	BookingsPct float64 `json:"bookingsPct"`
	RevenuePct  float64 `json:"revenuePct"`
	GuestsPct   float64 `json:"guestsPct"`
}

type WeeklyTrends struct {
	Bookings  TrendDirection `json:"bookings"`
	Revenue   TrendDirection `json:"revenue"`
	Occupancy TrendDirection `json:"occupancy"`
}

// WeeklySummaryData adds week-over-week comparison to the shared shape.
type WeeklySummaryData struct {
	WeekStart time.Time `json:"weekStart"`
	WeekEnd   time.Time `json:"weekEnd"`

	Overview   OverviewMetrics `json:"overview"`
	PriorWeek  OverviewMetrics `json:"priorWeek"`
	Breakdowns Breakdowns      `json:"breakdowns"`

	Changes WeeklyChanges `json:"changes"`
	Trends  WeeklyTrends  `json:"trends"`

	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`

	RecordsProcessed int    `json:"recordsProcessed"`
	OverviewSource   string `json:"overviewSource"`
	FilePath         string `json:"filePath,omitempty"`
	FileURL          string `json:"fileUrl,omitempty"`
}

// Options controls output format and distribution for one generation.
type Options struct {
	Format     domain.OutputFormat
	Recipients []string
}
