package aggregate

import (
	"sort"

	"atmos-server/internal/modules/analytics/types"
)

// OverallKey is the reserved series key holding the mean of every row in a
// bucket, independent of the split dimension.
const OverallKey = "overall"

// DefaultMaxSeries bounds how many split series are rendered when grouping
// by variable. The dashboard historically shipped with both 3 and 4; 4 is
// the default here and both are covered by tests.
const DefaultMaxSeries = 4

type TemporalOptions struct {
	// SplitByStation groups sub-series by station code instead of variable
	// code. Station splits are never truncated; every station present in the
	// batch gets a series.
	SplitByStation bool

	// MaxSeries caps the number of variable sub-series, ranked by row count
	// (ties keep first-seen order). Zero means DefaultMaxSeries.
	MaxSeries int
}

// TemporalPoint is one bucket of the temporal aggregation. Series holds only
// the keys that have data in this bucket; a missing key is a gap, not a zero.
type TemporalPoint struct {
	Bucket  string             `json:"bucket"`
	Overall float64            `json:"overall"`
	Series  map[string]float64 `json:"series,omitempty"`
}

type TemporalResult struct {
	Points     []TemporalPoint `json:"points"`
	SeriesKeys []string        `json:"series_keys"`
}

// Temporal groups rows into time buckets of the given granularity and
// computes the overall mean plus one mean per series key per bucket.
// Buckets are sorted ascending by key (the key formats are date-safe for
// lexical sort). An empty batch yields an empty result.
func Temporal(rows []types.MeasurementRow, g Granularity, opts TemporalOptions) TemporalResult {
	maxSeries := opts.MaxSeries
	if maxSeries <= 0 {
		maxSeries = DefaultMaxSeries
	}

	type bucketAcc struct {
		overall accumulator
		series  map[string]*accumulator
	}

	buckets := make(map[string]*bucketAcc)
	seriesCount := make(map[string]int)
	var seriesOrder []string

	for _, row := range rows {
		key := g.BucketKey(row.ObservedAt)
		b := buckets[key]
		if b == nil {
			b = &bucketAcc{series: make(map[string]*accumulator)}
			buckets[key] = b
		}

		sk := row.VariableCode
		if opts.SplitByStation {
			sk = row.StationCode
		}

		b.overall.add(row.Value)
		acc := b.series[sk]
		if acc == nil {
			acc = &accumulator{}
			b.series[sk] = acc
		}
		acc.add(row.Value)

		if seriesCount[sk] == 0 {
			seriesOrder = append(seriesOrder, sk)
		}
		seriesCount[sk]++
	}

	if len(buckets) == 0 {
		return TemporalResult{}
	}

	// Rank series by row count, first-seen breaking ties, then truncate
	// variable splits to the configured cap. Station splits keep every key.
	keys := make([]string, len(seriesOrder))
	copy(keys, seriesOrder)
	sort.SliceStable(keys, func(i, j int) bool {
		return seriesCount[keys[i]] > seriesCount[keys[j]]
	})
	if !opts.SplitByStation && len(keys) > maxSeries {
		keys = keys[:maxSeries]
	}
	kept := make(map[string]bool, len(keys))
	for _, k := range keys {
		kept[k] = true
	}

	bucketKeys := make([]string, 0, len(buckets))
	for k := range buckets {
		bucketKeys = append(bucketKeys, k)
	}
	sort.Strings(bucketKeys)

	points := make([]TemporalPoint, 0, len(bucketKeys))
	for _, bk := range bucketKeys {
		b := buckets[bk]
		p := TemporalPoint{Bucket: bk, Overall: b.overall.mean()}
		for sk, acc := range b.series {
			if !kept[sk] {
				continue
			}
			if p.Series == nil {
				p.Series = make(map[string]float64)
			}
			p.Series[sk] = acc.mean()
		}
		points = append(points, p)
	}

	return TemporalResult{Points: points, SeriesKeys: keys}
}
