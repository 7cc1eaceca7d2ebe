package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"atmos-server/internal/modules/analytics/repository"
	"atmos-server/internal/modules/analytics/service"
	"atmos-server/internal/modules/analytics/types"
)

type mockRepo struct {
	filterOptions *types.FilterOptions
	filterErr     error
	queryResp     *types.QueryResponse
	queryErr      error
	liveSnapshot  *types.StationLiveSnapshot
	liveErr       error
	previewResp   *types.SQLPreviewResponse
	previewErr    error
}

func (m *mockRepo) GetFilterOptions() (*types.FilterOptions, error) {
	if m.filterOptions == nil && m.filterErr == nil {
		return &types.FilterOptions{}, nil
	}
	return m.filterOptions, m.filterErr
}

func (m *mockRepo) QueryMeasurements(req types.QueryRequest) (*types.QueryResponse, error) {
	if m.queryResp == nil && m.queryErr == nil {
		return &types.QueryResponse{Rows: []types.MeasurementRow{}}, nil
	}
	return m.queryResp, m.queryErr
}

func (m *mockRepo) StationLiveSnapshot(codes []string) (*types.StationLiveSnapshot, error) {
	if m.liveSnapshot == nil && m.liveErr == nil {
		return &types.StationLiveSnapshot{}, nil
	}
	return m.liveSnapshot, m.liveErr
}

func (m *mockRepo) PreviewSQL(sqlText string, limit int) (*types.SQLPreviewResponse, error) {
	return m.previewResp, m.previewErr
}

func (m *mockRepo) InsertObservation(obs types.Observation, stationName, variableName, defaultUnit string) error {
	return nil
}

func (m *mockRepo) ListStations() ([]repository.StationRecord, error) {
	return nil, nil
}

func (m *mockRepo) UpdateStation(id int64, name string, latitude, longitude float64) error {
	return nil
}

func newTestMux(repo *mockRepo) *http.ServeMux {
	mux := http.NewServeMux()
	svc := service.NewService(repo, nil)
	NewAnalyticsController(svc).RegisterRoutes(mux)
	return mux
}

func Test_handleFilters(t *testing.T) {
	t.Run("returns filter options", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			filterOptions: &types.FilterOptions{
				Sources:   []types.SourceOption{{ID: 1, Name: "marzo.csv"}},
				Stations:  []types.StationOption{{Code: "BEL", Name: "Belisario"}},
				Variables: []types.VariableOption{{Code: "PM25", Name: "PM2.5"}},
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/filters", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		var out types.FilterOptions
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(out.Sources) != 1 || out.Sources[0].Name != "marzo.csv" {
			t.Errorf("sources: got %+v", out.Sources)
		}
		if out.Stations[0].Region != "Quito" {
			t.Errorf("region: got %q; want Quito", out.Stations[0].Region)
		}
	})

	t.Run("returns 500 on repository failure", func(t *testing.T) {
		mux := newTestMux(&mockRepo{filterErr: fmt.Errorf("boom")})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/filters", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func Test_handleQuery(t *testing.T) {
	t.Run("returns rows", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			queryResp: &types.QueryResponse{
				Rows:     []types.MeasurementRow{{StationCode: "BEL", Value: 12.5, ObservedAt: time.Now().UTC()}},
				RowCount: 1,
			},
		})
		body := `{"source_file_ids": [1], "limit": 500}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/query", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
		}
		var out types.QueryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if out.RowCount != 1 {
			t.Errorf("row count: got %d; want 1", out.RowCount)
		}
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		mux := newTestMux(&mockRepo{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/query", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects out-of-range limit", func(t *testing.T) {
		mux := newTestMux(&mockRepo{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/query", strings.NewReader(`{"limit": 5}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "limit") {
			t.Errorf("body should name the invalid field; got %q", rec.Body.String())
		}
	})

	t.Run("rejects inverted date range", func(t *testing.T) {
		mux := newTestMux(&mockRepo{})
		body := `{"date_from": "2024-03-10", "date_to": "2024-03-01"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/query", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_handleProjections(t *testing.T) {
	rows := []types.MeasurementRow{
		{StationCode: "BEL", VariableCode: "PM25", Value: 10, ObservedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		{StationCode: "BEL", VariableCode: "PM25", Value: 20, ObservedAt: time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)},
	}

	t.Run("returns projections for the batch", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			queryResp: &types.QueryResponse{Rows: rows, RowCount: len(rows)},
		})
		body := `{"source_file_ids": [1], "granularity": "day"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/projections", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
		}
		var out struct {
			RowCount    int `json:"row_count"`
			Projections struct {
				Temporal struct {
					Points []struct {
						Bucket  string  `json:"bucket"`
						Overall float64 `json:"overall"`
					} `json:"points"`
				} `json:"temporal"`
				Summary struct {
					Count int    `json:"count"`
					Trend string `json:"trend"`
				} `json:"summary"`
			} `json:"projections"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if out.RowCount != 2 {
			t.Errorf("row count: got %d; want 2", out.RowCount)
		}
		if len(out.Projections.Temporal.Points) != 2 {
			t.Errorf("temporal points: got %d; want 2", len(out.Projections.Temporal.Points))
		}
		if out.Projections.Summary.Count != 2 {
			t.Errorf("summary count: got %d; want 2", out.Projections.Summary.Count)
		}
	})

	t.Run("normalizes an inverted date range instead of rejecting it", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			queryResp: &types.QueryResponse{Rows: rows, RowCount: len(rows)},
		})
		body := `{"source_file_ids": [1], "date_from": "2024-03-10", "date_to": "2024-03-01"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/projections", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		mux := newTestMux(&mockRepo{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/projections", strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func Test_handleStationLive(t *testing.T) {
	t.Run("passes station codes from the query string", func(t *testing.T) {
		lat := -0.184719
		mux := newTestMux(&mockRepo{
			liveSnapshot: &types.StationLiveSnapshot{
				Stations: []types.StationLiveItem{{StationCode: "BEL", StationName: "Belisario", Latitude: &lat}},
				Total:    1,
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/station-live?station_codes=BEL", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		var out types.StationLiveSnapshot
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if out.Total != 1 || out.Stations[0].StationCode != "BEL" {
			t.Errorf("snapshot: got %+v", out)
		}
	})

	t.Run("returns 500 on repository failure", func(t *testing.T) {
		mux := newTestMux(&mockRepo{liveErr: fmt.Errorf("boom")})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/station-live", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func Test_handleSQLPreview(t *testing.T) {
	t.Run("returns preview rows", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			previewResp: &types.SQLPreviewResponse{
				Columns:  []string{"code"},
				Rows:     []map[string]any{{"code": "BEL"}},
				RowCount: 1,
			},
		})
		body := `{"sql": "SELECT code FROM stations"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/sql/preview", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("maps validation failures to 400", func(t *testing.T) {
		mux := newTestMux(&mockRepo{
			previewErr: fmt.Errorf("%w: only SELECT queries are allowed", repository.ErrInvalidSQL),
		})
		body := `{"sql": "DELETE FROM stations"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/sql/preview", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "SELECT") {
			t.Errorf("body should explain the rule; got %q", rec.Body.String())
		}
	})

	t.Run("maps execution failures to 500", func(t *testing.T) {
		mux := newTestMux(&mockRepo{previewErr: fmt.Errorf("no such table: nope")})
		body := `{"sql": "SELECT * FROM nope"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/sql/preview", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}
