package aggregate

import (
	"math"

	"atmos-server/internal/modules/analytics/types"
)

// DefaultHistogramBins is the bin count used when the caller does not ask
// for a specific one.
const DefaultHistogramBins = 14

// equalTolerance is the float tolerance below which the whole value range is
// treated as degenerate (a single bin instead of a zero-width division).
const equalTolerance = 1e-9

type HistogramBin struct {
	RangeStart float64 `json:"range_start"`
	RangeEnd   float64 `json:"range_end"`
	Count      int     `json:"count"`
}

// Histogram partitions [min, max] of the batch values into bins equal-width
// intervals and counts membership. Bins are closed on the left; the final
// bin is also closed on the right, which the index clamp below enforces.
// An empty batch yields nil; an all-equal batch yields a single bin.
func Histogram(rows []types.MeasurementRow, bins int) []HistogramBin {
	if len(rows) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	lo, hi := rows[0].Value, rows[0].Value
	for _, row := range rows[1:] {
		if row.Value < lo {
			lo = row.Value
		}
		if row.Value > hi {
			hi = row.Value
		}
	}

	if hi-lo < equalTolerance {
		return []HistogramBin{{RangeStart: lo, RangeEnd: hi, Count: len(rows)}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].RangeStart = lo + float64(i)*width
		out[i].RangeEnd = lo + float64(i+1)*width
	}
	// Keep the exact max as the last bin's upper edge rather than an
	// accumulated float sum.
	out[bins-1].RangeEnd = hi

	for _, row := range rows {
		idx := int(math.Floor((row.Value - lo) / width))
		if idx > bins-1 {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Count++
	}
	return out
}
