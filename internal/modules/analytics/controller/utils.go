package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"atmos-server/internal/modules/analytics/aggregate"
	"atmos-server/internal/modules/analytics/types"
)

const (
	minQueryLimit = 100
	maxQueryLimit = 20000
)

// projectionsRequest is a query request plus the chart parameters the
// aggregation engine is configured with.
type projectionsRequest struct {
	types.QueryRequest
	Granularity    string `json:"granularity,omitempty"`
	SplitByStation bool   `json:"split_by_station,omitempty"`
	MaxSeries      int    `json:"max_series,omitempty"`
	HistogramBins  int    `json:"histogram_bins,omitempty"`
}

type projectionsResponse struct {
	RowCount    int                   `json:"row_count"`
	Truncated   bool                  `json:"truncated"`
	Projections aggregate.Projections `json:"projections"`
}

func decodeQueryRequest(r *http.Request) (types.QueryRequest, error) {
	var req types.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return types.QueryRequest{}, errors.New("invalid JSON body")
	}
	if err := validateQueryRequest(req); err != nil {
		return types.QueryRequest{}, err
	}
	return req, nil
}

func validateQueryRequest(req types.QueryRequest) error {
	if req.Limit != 0 && (req.Limit < minQueryLimit || req.Limit > maxQueryLimit) {
		return fmt.Errorf("'limit' must be between %d and %d", minQueryLimit, maxQueryLimit)
	}
	if req.DateFrom != "" {
		if _, err := time.Parse("2006-01-02", req.DateFrom); err != nil {
			return errors.New("invalid 'date_from' (expected YYYY-MM-DD)")
		}
	}
	if req.DateTo != "" {
		if _, err := time.Parse("2006-01-02", req.DateTo); err != nil {
			return errors.New("invalid 'date_to' (expected YYYY-MM-DD)")
		}
	}
	if req.DateFrom != "" && req.DateTo != "" && req.DateFrom > req.DateTo {
		return errors.New("'date_from' must be <= 'date_to'")
	}
	return nil
}
