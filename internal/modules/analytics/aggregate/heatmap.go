package aggregate

import (
	"fmt"
	"sort"

	"atmos-server/internal/modules/analytics/types"
)

// DefaultHeatmapDays is the size of the recent-day window retained by the
// heatmap.
const DefaultHeatmapDays = 14

// Heatmap is a dense day-by-hour matrix of mean values. Values is sparse:
// a missing "day|hour" key means no observation in that cell, which callers
// must render as absent rather than zero.
type Heatmap struct {
	Days   []string           `json:"days"`
	Hours  []int              `json:"hours"`
	Values map[string]float64 `json:"values"`
}

// HeatCellKey formats the key used in Heatmap.Values.
func HeatCellKey(day string, hour int) string {
	return fmt.Sprintf("%s|%d", day, hour)
}

// HeatmapMatrix accumulates per-(day, hour) means over the whole batch, then
// keeps only the most recent maxDays distinct days (by calendar sort).
// Retention is a post-filter on purpose: the accumulation pass stays simple
// and accumulators outside the window are discarded before emitting.
func HeatmapMatrix(rows []types.MeasurementRow, maxDays int) Heatmap {
	if maxDays <= 0 {
		maxDays = DefaultHeatmapDays
	}

	type cell struct {
		day  string
		hour int
	}
	accs := make(map[cell]*accumulator)
	daySet := make(map[string]bool)

	for _, row := range rows {
		t := row.ObservedAt.UTC()
		c := cell{day: t.Format("2006-01-02"), hour: t.Hour()}
		acc := accs[c]
		if acc == nil {
			acc = &accumulator{}
			accs[c] = acc
		}
		acc.add(row.Value)
		daySet[c.day] = true
	}

	days := make([]string, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Strings(days)
	if len(days) > maxDays {
		days = days[len(days)-maxDays:]
	}
	retained := make(map[string]bool, len(days))
	for _, d := range days {
		retained[d] = true
	}

	hours := make([]int, 24)
	for h := range hours {
		hours[h] = h
	}

	values := make(map[string]float64)
	for c, acc := range accs {
		if !retained[c.day] {
			continue
		}
		values[HeatCellKey(c.day, c.hour)] = acc.mean()
	}

	return Heatmap{Days: days, Hours: hours, Values: values}
}
