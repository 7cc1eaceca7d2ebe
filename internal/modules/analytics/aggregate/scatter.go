package aggregate

import (
	"math"

	"atmos-server/internal/modules/analytics/types"
)

// DefaultScatterCap bounds the scatter sample so the chart never has to draw
// an unbounded point cloud.
const DefaultScatterCap = 3500

type ScatterOptions struct {
	// SplitByStation attaches the station code to every point so the chart
	// can color by station.
	SplitByStation bool

	// Cap is the maximum number of points; zero means DefaultScatterCap.
	Cap int
}

type ScatterPoint struct {
	HourOfDay float64 `json:"hour_of_day"`
	Value     float64 `json:"value"`
	Station   string  `json:"station,omitempty"`
}

// Scatter projects the batch onto (time-of-day, value) points. Truncation is
// prefix-taking over the batch order, which is deterministic and cheap but
// biased toward the head of the batch; it is not a random sample.
func Scatter(rows []types.MeasurementRow, opts ScatterOptions) []ScatterPoint {
	limit := opts.Cap
	if limit <= 0 {
		limit = DefaultScatterCap
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]ScatterPoint, 0, len(rows))
	for _, row := range rows {
		t := row.ObservedAt.UTC()
		hour := float64(t.Hour()) + float64(t.Minute())/60
		p := ScatterPoint{
			HourOfDay: math.Round(hour*100) / 100,
			Value:     row.Value,
		}
		if opts.SplitByStation {
			p.Station = row.StationCode
		}
		out = append(out, p)
	}
	return out
}
