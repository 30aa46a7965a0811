package report

import (
	"sort"
	"time"
)

// bookedStatuses are the states that count toward revenue and occupancy.
func revenueCounts(status string) bool {
	return status == "confirmed" || status == "completed"
}

// computeBreakdowns derives every domain split from raw booking rows.
// It is pure; both generators share it.
func computeBreakdowns(bookings []BookingRecord, periodStart, periodEnd time.Time) Breakdowns {
	b := Breakdowns{
		StatusCounts: make(map[string]int),
	}

	tables := make(map[string]struct{})
	guests := 0

	type eventKey struct {
		name string
		date string
	}
	events := make(map[eventKey]*EventPerformance)
	packages := make(map[string]*PackageRevenue)
	seenCustomers := make(map[string]bool) // value: is new this period

	for _, bk := range bookings {
		b.StatusCounts[bk.Status]++

		if bk.CustomerID != "" {
			if _, seen := seenCustomers[bk.CustomerID]; !seen {
				isNew := !bk.CustomerCreatedAt.Before(periodStart) && bk.CustomerCreatedAt.Before(periodEnd)
				seenCustomers[bk.CustomerID] = isNew
			}
		}

		if !revenueCounts(bk.Status) {
			b.Revenue.Refunds += bk.RefundAmount
			continue
		}

		b.Revenue.Gross += bk.TotalAmount
		b.Revenue.Deposits += bk.DepositAmount
		b.Revenue.Refunds += bk.RefundAmount
		guests += bk.PartySize
		if bk.TableID != "" {
			tables[bk.TableID] = struct{}{}
		}

		if bk.EventName != "" {
			key := eventKey{bk.EventName, bk.EventDate.Format("2006-01-02")}
			ev, ok := events[key]
			if !ok {
				ev = &EventPerformance{EventName: bk.EventName, EventDate: bk.EventDate}
				events[key] = ev
			}
			ev.Bookings++
			ev.Revenue += bk.TotalAmount
			ev.Guests += bk.PartySize
		}

		if bk.PackageName != "" {
			pkg, ok := packages[bk.PackageName]
			if !ok {
				pkg = &PackageRevenue{Name: bk.PackageName}
				packages[bk.PackageName] = pkg
			}
			pkg.Bookings++
			pkg.Revenue += bk.TotalAmount
		}
	}

	b.Revenue.Net = b.Revenue.Gross - b.Revenue.Refunds
	if guests > 0 {
		b.Revenue.PerGuest = b.Revenue.Gross / float64(guests)
	}
	if len(tables) > 0 {
		b.Revenue.PerTable = b.Revenue.Gross / float64(len(tables))
	}

	for _, ev := range events {
		b.EventPerformance = append(b.EventPerformance, *ev)
	}
	// Ranked by revenue descending; name breaks ties for stable output.
	sort.Slice(b.EventPerformance, func(i, j int) bool {
		if b.EventPerformance[i].Revenue != b.EventPerformance[j].Revenue {
			return b.EventPerformance[i].Revenue > b.EventPerformance[j].Revenue
		}
		return b.EventPerformance[i].EventName < b.EventPerformance[j].EventName
	})

	for _, isNew := range seenCustomers {
		if isNew {
			b.Segments.New++
		} else {
			b.Segments.Returning++
		}
	}

	for _, pkg := range packages {
		b.TopPackages = append(b.TopPackages, *pkg)
	}
	sort.Slice(b.TopPackages, func(i, j int) bool {
		if b.TopPackages[i].Revenue != b.TopPackages[j].Revenue {
			return b.TopPackages[i].Revenue > b.TopPackages[j].Revenue
		}
		return b.TopPackages[i].Name < b.TopPackages[j].Name
	})
	if len(b.TopPackages) > 5 {
		b.TopPackages = b.TopPackages[:5]
	}

	return b
}

// overviewFromBookings is the final fallback tier: manual aggregation over
// raw transactional rows.
func overviewFromBookings(bookings []BookingRecord) OverviewMetrics {
	var m OverviewMetrics
	tables := make(map[string]struct{})
	for _, bk := range bookings {
		if !revenueCounts(bk.Status) {
			continue
		}
		m.Bookings++
		m.GrossRevenue += bk.TotalAmount
		m.Guests += bk.PartySize
		if bk.TableID != "" {
			tables[bk.TableID] = struct{}{}
		}
	}
	m.TablesOccupied = len(tables)
	m.OccupancyRate = occupancy(m.TablesOccupied)
	return m
}

// overviewFromAggregates is the middle tier: sum of nightly rollup rows.
func overviewFromAggregates(rows []DailyAggregate) OverviewMetrics {
	var m OverviewMetrics
	for _, r := range rows {
		m.Bookings += r.Bookings
		m.GrossRevenue += r.GrossRevenue
		m.Guests += r.Guests
		if r.TablesOccupied > m.TablesOccupied {
			m.TablesOccupied = r.TablesOccupied
		}
	}
	m.OccupancyRate = occupancy(m.TablesOccupied)
	return m
}

// occupancy is always tables occupied over the venue's fixed table count.
func occupancy(tablesOccupied int) float64 {
	return float64(tablesOccupied) / float64(totalTableCount) * 100
}
