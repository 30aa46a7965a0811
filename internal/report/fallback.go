package report

import (
	"context"
	"log"
)

// Tier is one step of a metric fallback chain. Fetch returns ok=false when
// the tier holds no rows for the requested period.
type Tier[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, bool, error)
}

// resolve walks the tiers in order, returning the first tier that produces
// data together with its name. A tier is tried only when the previous
// returned no rows; tier errors are logged and treated as "no rows" so a
// report is always producible. When every tier comes up empty the zero value
// and the last tier's name are returned.
func resolve[T any](ctx context.Context, tiers []Tier[T]) (T, string) {
	var zero T
	source := ""
	for _, tier := range tiers {
		source = tier.Name
		value, ok, err := tier.Fetch(ctx)
		if err != nil {
			log.Printf("report: tier %s failed, falling through: %v", tier.Name, err)
			continue
		}
		if !ok {
			continue
		}
		return value, source
	}
	return zero, source
}
