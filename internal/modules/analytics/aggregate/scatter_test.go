package aggregate

import (
	"testing"

	"atmos-server/internal/modules/analytics/types"
)

func TestScatter_HourOfDayRounding(t *testing.T) {
	rows := []types.MeasurementRow{
		row(t, "BEL", "PM25", "2024-03-01T13:20:00Z", 42),
		row(t, "BEL", "PM25", "2024-03-01T09:45:00Z", 7),
	}
	out := Scatter(rows, ScatterOptions{})
	if len(out) != 2 {
		t.Fatalf("points: got %d, want 2", len(out))
	}
	// 13:20 -> 13 + 20/60 = 13.333... rounded to 13.33
	if got, want := out[0].HourOfDay, 13.33; got != want {
		t.Errorf("hour of day: got %v, want %v", got, want)
	}
	if got, want := out[1].HourOfDay, 9.75; got != want {
		t.Errorf("hour of day: got %v, want %v", got, want)
	}
	if out[0].Station != "" {
		t.Errorf("station should be empty without split, got %q", out[0].Station)
	}
}

func TestScatter_SplitAttachesStation(t *testing.T) {
	rows := []types.MeasurementRow{
		row(t, "CAR", "PM25", "2024-03-01T13:00:00Z", 1),
	}
	out := Scatter(rows, ScatterOptions{SplitByStation: true})
	if out[0].Station != "CAR" {
		t.Fatalf("station: got %q, want CAR", out[0].Station)
	}
}

func TestScatter_CapTakesPrefix(t *testing.T) {
	var rows []types.MeasurementRow
	for i := 0; i < 10; i++ {
		rows = append(rows, row(t, "BEL", "PM25", "2024-03-01T10:00:00Z", float64(i)))
	}
	out := Scatter(rows, ScatterOptions{Cap: 3})
	if len(out) != 3 {
		t.Fatalf("points: got %d, want 3", len(out))
	}
	for i, p := range out {
		if p.Value != float64(i) {
			t.Errorf("point %d: got value %v, want %v (prefix, not sample)", i, p.Value, i)
		}
	}
}

func TestScatter_DefaultCap(t *testing.T) {
	var rows []types.MeasurementRow
	for i := 0; i < DefaultScatterCap+100; i++ {
		rows = append(rows, row(t, "BEL", "PM25", "2024-03-01T10:00:00Z", 1))
	}
	if got := len(Scatter(rows, ScatterOptions{})); got != DefaultScatterCap {
		t.Fatalf("points: got %d, want %d", got, DefaultScatterCap)
	}
}
