package aggregate

import (
	"math"

	"atmos-server/internal/modules/analytics/types"
)

type Trend string

const (
	TrendRising  Trend = "Rising"
	TrendFalling Trend = "Falling"
	TrendStable  Trend = "Stable"
)

type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Trend Trend   `json:"trend"`
}

// Summarize computes count/mean/min/max over the batch and classifies the
// trend from the first and last overall bucket of the temporal result.
// The trend threshold scales with the magnitude of the mean but never drops
// below 0.05, and the comparison is strict: a delta exactly at the threshold
// is Stable. Fewer than two buckets is Stable by definition; an empty batch
// yields the zero summary.
func Summarize(rows []types.MeasurementRow, temporal TemporalResult) Summary {
	if len(rows) == 0 {
		return Summary{Trend: TrendStable}
	}

	sum := 0.0
	lo, hi := rows[0].Value, rows[0].Value
	for _, row := range rows {
		sum += row.Value
		if row.Value < lo {
			lo = row.Value
		}
		if row.Value > hi {
			hi = row.Value
		}
	}
	mean := sum / float64(len(rows))

	trend := TrendStable
	if n := len(temporal.Points); n >= 2 {
		delta := temporal.Points[n-1].Overall - temporal.Points[0].Overall
		threshold := math.Max(0.05, math.Abs(mean)*0.02)
		switch {
		case delta > threshold:
			trend = TrendRising
		case delta < -threshold:
			trend = TrendFalling
		}
	}

	return Summary{
		Count: len(rows),
		Mean:  mean,
		Min:   lo,
		Max:   hi,
		Trend: trend,
	}
}
