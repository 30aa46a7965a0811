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

// WeeklyGenerator assembles the weekly summary for a Monday-to-Sunday venue
// week, including week-over-week deltas against the prior week.
type WeeklyGenerator struct {
	source      MetricsSource
	history     HistoryStore
	renderer    Renderer
	distributor Distributor
	metrics     MetricsSink
	loc         *time.Location
	clock       func() time.Time
}

func NewWeeklyGenerator(source MetricsSource, history HistoryStore, renderer Renderer, loc *time.Location) *WeeklyGenerator {
	return &WeeklyGenerator{
		source:   source,
		history:  history,
		renderer: renderer,
		loc:      loc,
		clock:    time.Now,
	}
}

func (g *WeeklyGenerator) WithDistributor(d Distributor) *WeeklyGenerator {
	g.distributor = d
	return g
}

// WithMetrics attaches a metrics sink.
func (g *WeeklyGenerator) WithMetrics(sink MetricsSink) *WeeklyGenerator {
	g.metrics = sink
	return g
}

// WeekStartOf returns local Monday midnight of the week containing t.
func WeekStartOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	// Monday = 1 ... Sunday = 0; shift Sunday back six days.
	offset := int(day.Weekday()) - 1
	if offset < 0 {
		offset = 6
	}
	return day.AddDate(0, 0, -offset)
}

// Generate builds the report for the week starting at weekStart (any time
// within the week is accepted and normalized to Monday).
func (g *WeeklyGenerator) Generate(ctx context.Context, weekStart time.Time, opts Options) (*WeeklySummaryData, error) {
	began := g.clock()
	start := WeekStartOf(weekStart, g.loc)
	end := start.AddDate(0, 0, 7)
	priorStart := start.AddDate(0, 0, -7)

	data := &WeeklySummaryData{WeekStart: start, WeekEnd: end.AddDate(0, 0, -1)}

	var bookings []BookingRecord
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rows, err := g.source.Bookings(ctx, start, end)
		if err != nil {
			log.Printf("report: weekly bookings fetch failed, using empty set: %v", err)
			return
		}
		bookings = rows
	}()

	// Prior week runs in parallel with the breakdown fetch; a failure
	// degrades trends to comparison-against-zero rather than aborting.
	var prior OverviewMetrics
	wg.Add(1)
	go func() {
		defer wg.Done()
		prior = g.resolvePeriod(ctx, priorStart, start)
	}()

	overview, overviewSource := g.resolvePeriodWithBookings(ctx, start, end, &bookings, &wg)
	wg.Wait()

	data.Overview = overview
	data.PriorWeek = prior
	data.OverviewSource = overviewSource
	data.Breakdowns = computeBreakdowns(bookings, start, end)
	data.RecordsProcessed = len(bookings)

	data.Changes = WeeklyChanges{
		BookingsPct: PercentageChange(float64(prior.Bookings), float64(overview.Bookings)),
		RevenuePct:  PercentageChange(prior.GrossRevenue, overview.GrossRevenue),
		GuestsPct:   PercentageChange(float64(prior.Guests), float64(overview.Guests)),
	}
	data.Trends = WeeklyTrends{
		Bookings:  TrendOf(data.Changes.BookingsPct),
		Revenue:   TrendOf(data.Changes.RevenuePct),
		Occupancy: TrendOf(PercentageChange(prior.OccupancyRate, overview.OccupancyRate)),
	}

	data.Recommendations, data.Alerts = deriveAdvice(overview, data.Breakdowns.StatusCounts, weeklyRevenueFloor, "weekly")
	if data.Trends.Revenue == TrendDown {
		data.Alerts = append(data.Alerts,
			fmt.Sprintf("Revenue is down %.1f%% week over week.", -data.Changes.RevenuePct))
	}

	rec := domain.ReportGenerationRecord{
		ID:                uuid.New(),
		TemplateID:        "weekly-summary-v1",
		ReportType:        domain.ReportTypeWeeklySummary,
		GeneratedAt:       g.clock().UTC(),
		PeriodStart:       start.UTC(),
		PeriodEnd:         end.UTC(),
		OutputFormat:      opts.Format,
		RecordsProcessed:  data.RecordsProcessed,
		SectionsGenerated: 6,
		Summary: domain.ReportSummary{
			Title:           fmt.Sprintf("Weekly Summary — w/c %s", start.Format("2 January 2006")),
			Highlights:      highlights(overview),
			Recommendations: data.Recommendations,
			Alerts:          data.Alerts,
		},
		KeyMetrics: keyMetrics(overview),
		Success:    true,
	}

	if err := g.history.InsertGeneration(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateGeneration) {
			log.Printf("report: weekly summary for w/c %s already generated, skipping persist", start.Format("2006-01-02"))
			return data, nil
		}
		return nil, fmt.Errorf("persist generation record: %w", err)
	}

	if opts.Format != "" && opts.Format != domain.OutputFormatJSON {
		path, url, err := g.renderer.Render(ctx, domain.ReportTypeWeeklySummary, start, data, opts.Format)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", opts.Format, err)
		}
		data.FilePath = path
		data.FileURL = url
	}

	if g.distributor != nil && len(opts.Recipients) > 0 {
		if err := g.distributor.ScheduleSend(ctx, rec.ID, opts.Recipients, data); err != nil {
			log.Printf("report: weekly distribution failed: %v", err)
		}
	}

	if g.metrics != nil {
		g.metrics.ReportGenerated(string(domain.ReportTypeWeeklySummary), data.OverviewSource, g.clock().Sub(began))
	}
	return data, nil
}

// resolvePeriod runs the fallback chain for an arbitrary week when no
// pre-fetched booking rows are available (the prior-week comparison).
func (g *WeeklyGenerator) resolvePeriod(ctx context.Context, start, end time.Time) OverviewMetrics {
	overview, _ := resolve(ctx, []Tier[OverviewMetrics]{
		g.rollupTier(start),
		g.aggregateTier(start, end),
		{
			Name: "live_bookings",
			Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
				rows, err := g.source.Bookings(ctx, start, end)
				if err != nil {
					return OverviewMetrics{}, false, err
				}
				return overviewFromBookings(rows), true, nil
			},
		},
	})
	return overview
}

// resolvePeriodWithBookings is the same chain but reuses the in-flight
// breakdown fetch for the final tier and reports which tier answered.
func (g *WeeklyGenerator) resolvePeriodWithBookings(ctx context.Context, start, end time.Time, bookings *[]BookingRecord, wg *sync.WaitGroup) (OverviewMetrics, string) {
	return resolve(ctx, []Tier[OverviewMetrics]{
		g.rollupTier(start),
		g.aggregateTier(start, end),
		{
			Name: "live_bookings",
			Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
				wg.Wait()
				return overviewFromBookings(*bookings), true, nil
			},
		},
	})
}

func (g *WeeklyGenerator) rollupTier(start time.Time) Tier[OverviewMetrics] {
	return Tier[OverviewMetrics]{
		Name: "materialized_rollup",
		Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
			row, err := g.source.Rollup(ctx, domain.ReportTypeWeeklySummary, start.UTC())
			if err != nil || row == nil {
				return OverviewMetrics{}, false, err
			}
			return *row, true, nil
		},
	}
}

func (g *WeeklyGenerator) aggregateTier(start, end time.Time) Tier[OverviewMetrics] {
	return Tier[OverviewMetrics]{
		Name: "daily_aggregates",
		Fetch: func(ctx context.Context) (OverviewMetrics, bool, error) {
			rows, err := g.source.DailyAggregates(ctx, start.UTC(), end.UTC())
			if err != nil || len(rows) == 0 {
				return OverviewMetrics{}, false, err
			}
			return overviewFromAggregates(rows), true, nil
		},
	}
}
