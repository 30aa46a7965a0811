package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// DailyGenerator assembles the daily summary payload for one venue day
// (local midnight to midnight).
type DailyGenerator struct {
	source      MetricsSource
	history     HistoryStore
	renderer    Renderer
	distributor Distributor // optional, nil = no distribution
	metrics     MetricsSink // optional
	loc         *time.Location
	clock       func() time.Time
}

func NewDailyGenerator(source MetricsSource, history HistoryStore, renderer Renderer, loc *time.Location) *DailyGenerator {
	return &DailyGenerator{
		source:   source,
		history:  history,
		renderer: renderer,
		loc:      loc,
		clock:    time.Now,
	}
}

// WithDistributor enables report hand-off after generation.
func (g *DailyGenerator) WithDistributor(d Distributor) *DailyGenerator {
	g.distributor = d
	return g
}

// WithMetrics attaches a metrics sink.
func (g *DailyGenerator) WithMetrics(sink MetricsSink) *DailyGenerator {
	g.metrics = sink
	return g
}

// Generate builds the report for reportDate. A data-fetch error in any one
// breakdown degrades to a zero default; only a duplicate-period insert or a
// renderer failure aborts.
func (g *DailyGenerator) Generate(ctx context.Context, reportDate time.Time, opts Options) (*DailySummaryData, error) {
	began := g.clock()
	start := time.Date(reportDate.Year(), reportDate.Month(), reportDate.Day(), 0, 0, 0, 0, g.loc)
	end := start.AddDate(0, 0, 1)

	data := &DailySummaryData{ReportDate: start}

	var bookings []BookingRecord
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := g.source.Bookings(ctx, start, end)
		if err != nil {
			log.Printf("report: daily bookings fetch failed, using empty set: %v", err)
			return
		}
		bookings = rows
	}()

	overview, source := g.resolveOverview(ctx, start, end, &bookings, &wg)
	wg.Wait()

	data.Overview = overview
	data.OverviewSource = source
	data.Breakdowns = computeBreakdowns(bookings, start, end)
	data.RecordsProcessed = len(bookings)
	data.Recommendations, data.Alerts = deriveAdvice(overview, data.Breakdowns.StatusCounts, dailyRevenueFloor, "daily")

	rec := domain.ReportGenerationRecord{
		ID:                uuid.New(),
		TemplateID:        "daily-summary-v1",
		ReportType:        domain.ReportTypeDailySummary,
		GeneratedAt:       g.clock().UTC(),
		PeriodStart:       start.UTC(),
		PeriodEnd:         end.UTC(),
		OutputFormat:      opts.Format,
		RecordsProcessed:  data.RecordsProcessed,
		SectionsGenerated: 5,
		Summary: domain.ReportSummary{
			Title:           fmt.Sprintf("Daily Summary — %s", start.Format("Monday 2 January 2006")),
			Highlights:      highlights(overview),
			Recommendations: data.Recommendations,
			Alerts:          data.Alerts,
		},
		KeyMetrics: keyMetrics(overview),
		Success:    true,
	}

	if err := g.history.InsertGeneration(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateGeneration) {
			// Reject-duplicate semantics: another run already produced this
			// period. Return its payload without rendering or distributing.
			log.Printf("report: daily summary for %s already generated, skipping persist", start.Format("2006-01-02"))
			return data, nil
		}
		return nil, fmt.Errorf("persist generation record: %w", err)
	}

	if opts.Format != "" && opts.Format != domain.OutputFormatJSON {
		path, url, err := g.renderer.Render(ctx, domain.ReportTypeDailySummary, start, data, opts.Format)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", opts.Format, err)
		}
		data.FilePath = path
		data.FileURL = url
	}

	if g.distributor != nil && len(opts.Recipients) > 0 {
		if err := g.distributor.ScheduleSend(ctx, rec.ID, opts.Recipients, data); err != nil {
			// Distribution failures degrade delivery, not the report itself.
			log.Printf("report: daily distribution failed: %v", err)
		}
	}

	if g.metrics != nil {
		g.metrics.ReportGenerated(string(domain.ReportTypeDailySummary), data.OverviewSource, g.clock().Sub(began))
	}
	return data, nil
}

// resolveOverview runs the three-tier fallback: materialized rollup, then
// nightly aggregate rows, then a manual scan over the raw bookings already
// being fetched for the breakdowns.
func (g *DailyGenerator) resolveOverview(ctx context.Context, start, end time.Time, bookings *[]BookingRecord, wg *sync.WaitGroup) (OverviewMetrics, string) {
	return resolve(ctx, []Tier[OverviewMetrics]{
		{
			Name: "materialized_rollup",
			Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
				row, err := g.source.Rollup(ctx, domain.ReportTypeDailySummary, start.UTC())
				if err != nil || row == nil {
					return OverviewMetrics{}, false, err
				}
				return *row, true, nil
			},
		},
		{
			Name: "daily_aggregates",
			Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
				rows, err := g.source.DailyAggregates(ctx, start.UTC(), end.UTC())
				if err != nil || len(rows) == 0 {
					return OverviewMetrics{}, false, err
				}
				return overviewFromAggregates(rows), true, nil
			},
		},
		{
			Name: "live_bookings",
			Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
				wg.Wait() // reuse the breakdown fetch
				return overviewFromBookings(*bookings), true, nil
			},
		},
	})
}

func keyMetrics(overview OverviewMetrics) map[string]float64 {
	return map[string]float64{
		"totalBookings":  float64(overview.Bookings),
		"totalRevenue":   overview.GrossRevenue,
		"totalGuests":    float64(overview.Guests),
		"tablesOccupied": float64(overview.TablesOccupied),
		"occupancyRate":  overview.OccupancyRate,
	}
}
