package aggregate

import (
	"golang.org/x/sync/errgroup"

	"atmos-server/internal/modules/analytics/types"
)

// Options parameterizes one projection pass. Zero values select the
// documented defaults.
type Options struct {
	Granularity    Granularity
	SplitByStation bool
	MaxSeries      int
	TopStations    int
	ScatterCap     int
	HistogramBins  int
	HeatmapDays    int
}

func DefaultOptions() Options {
	return Options{
		Granularity:   GranularityDay,
		MaxSeries:     DefaultMaxSeries,
		TopStations:   DefaultTopStations,
		ScatterCap:    DefaultScatterCap,
		HistogramBins: DefaultHistogramBins,
		HeatmapDays:   DefaultHeatmapDays,
	}
}

// Projections bundles every chart-ready view derived from one batch.
type Projections struct {
	Temporal        TemporalResult   `json:"temporal"`
	StationAverages []StationAverage `json:"station_averages"`
	Scatter         []ScatterPoint   `json:"scatter"`
	Histogram       []HistogramBin   `json:"histogram"`
	Heatmap         Heatmap          `json:"heatmap"`
	Summary         Summary          `json:"summary"`
}

// Build runs every aggregator over the batch. The aggregators share no
// mutable state, so the independent ones fan out concurrently; the summary
// runs after the temporal pass it depends on.
func Build(rows []types.MeasurementRow, opts Options) Projections {
	if opts.Granularity == "" {
		opts.Granularity = GranularityDay
	}

	var out Projections
	var g errgroup.Group

	g.Go(func() error {
		out.Temporal = Temporal(rows, opts.Granularity, TemporalOptions{
			SplitByStation: opts.SplitByStation,
			MaxSeries:      opts.MaxSeries,
		})
		out.Summary = Summarize(rows, out.Temporal)
		return nil
	})
	g.Go(func() error {
		out.StationAverages = TopStationAverages(rows, opts.TopStations)
		return nil
	})
	g.Go(func() error {
		out.Scatter = Scatter(rows, ScatterOptions{
			SplitByStation: opts.SplitByStation,
			Cap:            opts.ScatterCap,
		})
		return nil
	})
	g.Go(func() error {
		out.Histogram = Histogram(rows, opts.HistogramBins)
		return nil
	})
	g.Go(func() error {
		out.Heatmap = HeatmapMatrix(rows, opts.HeatmapDays)
		return nil
	})

	// The aggregators are total functions; Wait only synchronizes.
	_ = g.Wait()
	return out
}
