package aggregate

import (
	"sort"

	"atmos-server/internal/modules/analytics/types"
)

// DefaultTopStations caps the per-station bar chart.
const DefaultTopStations = 14

type StationAverage struct {
	Station string  `json:"station"`
	Average float64 `json:"average"`
}

// StationAverages computes the mean value per distinct station, sorted
// descending by average. Ties keep first-encountered order so the output is
// deterministic for a given batch.
func StationAverages(rows []types.MeasurementRow) []StationAverage {
	accs := make(map[string]*accumulator)
	var order []string

	for _, row := range rows {
		acc := accs[row.StationCode]
		if acc == nil {
			acc = &accumulator{}
			accs[row.StationCode] = acc
			order = append(order, row.StationCode)
		}
		acc.add(row.Value)
	}

	out := make([]StationAverage, 0, len(order))
	for _, code := range order {
		out = append(out, StationAverage{Station: code, Average: accs[code].mean()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average > out[j].Average })
	return out
}

// TopStationAverages is the capped variant for rendering. Callers that need
// the full set must use StationAverages.
func TopStationAverages(rows []types.MeasurementRow, n int) []StationAverage {
	if n <= 0 {
		n = DefaultTopStations
	}
	out := StationAverages(rows)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
