// Package aggregate derives chart-ready projections from a bounded batch of
// measurement rows: temporal series, per-station averages, scatter samples,
// histograms, a day-by-hour heatmap and summary statistics. Every function is
// a pure pass over the batch; none of them mutates its input or returns an
// error. Bucket keys are always computed in UTC so they are reproducible
// across machines.
package aggregate

import "time"

// Granularity selects the width of a temporal bucket.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity maps a request string to a Granularity, falling back to
// day for unknown values.
func ParseGranularity(s string) Granularity {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityMonth, GranularityYear:
		return Granularity(s)
	default:
		return GranularityDay
	}
}

// BucketKey truncates t to this granularity and formats it as a sortable key.
// The formats are chosen so lexical order equals chronological order.
func (g Granularity) BucketKey(t time.Time) string {
	utc := t.UTC()
	switch g {
	case GranularityHour:
		return utc.Format("2006-01-02 15:00")
	case GranularityMonth:
		return utc.Format("2006-01")
	case GranularityYear:
		return utc.Format("2006")
	default:
		return utc.Format("2006-01-02")
	}
}

// accumulator collects a running sum for one (bucket, series) pair.
type accumulator struct {
	sum   float64
	count int
}

func (a *accumulator) add(v float64) {
	a.sum += v
	a.count++
}

func (a accumulator) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}
