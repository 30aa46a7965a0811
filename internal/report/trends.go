package report

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// trendDeadBandPct keeps small period-over-period wobbles from flapping
// between up and down.
const trendDeadBandPct = 5.0

// PercentageChange returns (new-old)/old*100. A zero prior value with a
// positive new value reports as a 100% increase; zero to zero is 0%.
func PercentageChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		if newValue == 0 {
			return 0
		}
		return 100
	}
	return (newValue - oldValue) / oldValue * 100
}

// TrendOf classifies a percentage change. Changes within (-5%, 5%) are
// stable; >= 5% is up; <= -5% is down.
func TrendOf(changePct float64) TrendDirection {
	switch {
	case changePct >= trendDeadBandPct:
		return TrendUp
	case changePct <= -trendDeadBandPct:
		return TrendDown
	default:
		return TrendStable
	}
}
