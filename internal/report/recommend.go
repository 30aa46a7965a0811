package report

import "fmt"

// Fixed thresholds for the deterministic recommendation and alert rules.
// Revenue floors are in GBP.
const (
	lowOccupancyPct    = 60.0
	highOccupancyPct   = 90.0
	noShowRatePct      = 10.0
	dailyRevenueFloor  = 1000.0
	weeklyRevenueFloor = 7000.0
)

// deriveAdvice computes recommendations and alerts from the period's
// metrics. Pure functions of the inputs, never fetched or learned.
func deriveAdvice(overview OverviewMetrics, statusCounts map[string]int, revenueFloor float64, periodLabel string) (recommendations, alerts []string) {
	if overview.OccupancyRate < lowOccupancyPct {
		recommendations = append(recommendations,
			fmt.Sprintf("Occupancy was %.1f%% — consider promotions or guest-list outreach to lift midweek table bookings.", overview.OccupancyRate))
	}
	if overview.OccupancyRate > highOccupancyPct {
		recommendations = append(recommendations,
			fmt.Sprintf("Occupancy reached %.1f%% — capacity is strained; review table turn times and walk-in policy.", overview.OccupancyRate))
	}

	if overview.Bookings > 0 {
		noShows := statusCounts["no_show"]
		rate := float64(noShows) / float64(overview.Bookings) * 100
		if rate > noShowRatePct {
			recommendations = append(recommendations,
				fmt.Sprintf("No-show rate was %.1f%% — consider deposits or confirmation reminders.", rate))
		}
	}

	if overview.GrossRevenue < revenueFloor {
		alerts = append(alerts,
			fmt.Sprintf("Revenue of £%.2f is below the %s floor of £%.2f.", overview.GrossRevenue, periodLabel, revenueFloor))
	}

	return recommendations, alerts
}

// highlights builds the summary bullet list stored with the generation
// record.
func highlights(overview OverviewMetrics) []string {
	return []string{
		fmt.Sprintf("%d bookings", overview.Bookings),
		fmt.Sprintf("£%.2f gross revenue", overview.GrossRevenue),
		fmt.Sprintf("%d guests", overview.Guests),
		fmt.Sprintf("%.1f%% occupancy", overview.OccupancyRate),
	}
}
