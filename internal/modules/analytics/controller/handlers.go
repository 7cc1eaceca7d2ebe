package controller

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"atmos-server/internal/modules/analytics/aggregate"
	"atmos-server/internal/modules/analytics/orchestrator"
	"atmos-server/internal/modules/analytics/repository"
	"atmos-server/internal/modules/analytics/service"
	"atmos-server/internal/modules/analytics/types"
	"atmos-server/internal/utils"
)

type AnalyticsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type analyticsControllerImpl struct {
	service *service.Service
}

func NewAnalyticsController(svc *service.Service) AnalyticsController {
	return &analyticsControllerImpl{service: svc}
}

func (c *analyticsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/filters", c.handleFilters)
	mux.HandleFunc("POST /api/v1/analytics/query", c.handleQuery)
	mux.HandleFunc("POST /api/v1/analytics/projections", c.handleProjections)
	mux.HandleFunc("GET /api/v1/analytics/station-live", c.handleStationLive)
	mux.HandleFunc("POST /api/v1/analytics/sql/preview", c.handleSQLPreview)
}

func (c *analyticsControllerImpl) handleFilters(w http.ResponseWriter, r *http.Request) {
	out, err := c.service.FilterOptions()
	if err != nil {
		slog.Error("analytics filters failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load filter options")
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *analyticsControllerImpl) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := decodeQueryRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := c.service.Query(req)
	if err != nil {
		slog.Error("analytics query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// handleProjections runs the same query and also computes every chart
// projection server-side, so thin clients can render without re-implementing
// the aggregation rules.
func (c *analyticsControllerImpl) handleProjections(w http.ResponseWriter, r *http.Request) {
	var body projectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req := orchestrator.Normalize(body.QueryRequest)
	if err := validateQueryRequest(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := c.service.Query(req)
	if err != nil {
		slog.Error("analytics projections query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "query failed")
		return
	}

	opts := aggregate.DefaultOptions()
	opts.Granularity = aggregate.ParseGranularity(body.Granularity)
	opts.SplitByStation = body.SplitByStation
	if body.MaxSeries > 0 {
		opts.MaxSeries = body.MaxSeries
	}
	if body.HistogramBins > 0 {
		opts.HistogramBins = body.HistogramBins
	}

	out := projectionsResponse{
		RowCount:    resp.RowCount,
		Truncated:   resp.Truncated,
		Projections: aggregate.Build(resp.Rows, opts),
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *analyticsControllerImpl) handleStationLive(w http.ResponseWriter, r *http.Request) {
	codes := r.URL.Query()["station_codes"]

	out, err := c.service.StationLive(codes)
	if err != nil {
		slog.Error("station live snapshot failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load station snapshot")
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *analyticsControllerImpl) handleSQLPreview(w http.ResponseWriter, r *http.Request) {
	var req types.SQLPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := c.service.PreviewSQL(req)
	if err != nil {
		if isValidationError(err) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("sql preview failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "sql preview failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func isValidationError(err error) bool {
	return errors.Is(err, repository.ErrInvalidSQL)
}
