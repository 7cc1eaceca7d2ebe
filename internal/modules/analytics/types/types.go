// Package types holds the wire types of the analytics API. JSON field names
// are the contract consumed by the dashboard and must not change.
package types

import "time"

// MeasurementRow is one observation as returned by the query endpoint,
// joined with station, variable and source file metadata.
type MeasurementRow struct {
	ObservedAt     time.Time `json:"observed_at"`
	StationCode    string    `json:"station_code"`
	StationName    string    `json:"station_name"`
	VariableCode   string    `json:"variable_code"`
	VariableName   string    `json:"variable_name"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	SourceFileID   int64     `json:"source_file_id"`
	SourceFileName string    `json:"source_file_name"`
	SourceType     string    `json:"source_type"`
}

type SourceOption struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	SourceType   string     `json:"source_type"`
	EtlRunID     string     `json:"etl_run_id"`
	DownloadedAt *time.Time `json:"downloaded_at"`
	RowCount     int        `json:"row_count"`
}

type StationOption struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Region    string   `json:"region,omitempty"`
}

type VariableOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// FilterOptions is the response of GET /analytics/filters: everything the
// dashboard needs to populate its filter controls.
type FilterOptions struct {
	Sources       []SourceOption   `json:"sources"`
	Stations      []StationOption  `json:"stations"`
	Variables     []VariableOption `json:"variables"`
	MinObservedAt *time.Time       `json:"min_observed_at"`
	MaxObservedAt *time.Time       `json:"max_observed_at"`
}

// QueryRequest is the body of POST /analytics/query. Dates are calendar days
// in "2006-01-02" form; DateTo is inclusive.
type QueryRequest struct {
	SourceFileIDs []int64  `json:"source_file_ids"`
	StationCodes  []string `json:"station_codes,omitempty"`
	VariableCodes []string `json:"variable_codes,omitempty"`
	DateFrom      string   `json:"date_from,omitempty"`
	DateTo        string   `json:"date_to,omitempty"`
	Limit         int      `json:"limit"`
}

type QueryResponse struct {
	Rows      []MeasurementRow `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

type StationLatestVariable struct {
	VariableCode string    `json:"variable_code"`
	VariableName string    `json:"variable_name"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

type StationLiveItem struct {
	StationCode      string                  `json:"station_code"`
	StationName      string                  `json:"station_name"`
	Latitude         *float64                `json:"latitude,omitempty"`
	Longitude        *float64                `json:"longitude,omitempty"`
	Region           string                  `json:"region,omitempty"`
	Variables        []StationLatestVariable `json:"variables"`
	LatestObservedAt time.Time               `json:"latest_observed_at"`
}

// StationLiveSnapshot is the response of GET /analytics/station-live: the
// latest value of every variable per station.
type StationLiveSnapshot struct {
	Stations         []StationLiveItem `json:"stations"`
	Total            int               `json:"total"`
	LatestObservedAt *time.Time        `json:"latest_observed_at"`
}

type SQLPreviewRequest struct {
	SQL   string `json:"sql"`
	Limit int    `json:"limit"`
}

type SQLPreviewResponse struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// Observation is a single live measurement received over MQTT.
type Observation struct {
	StationCode  string    `json:"station_code"`
	VariableCode string    `json:"variable_code"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}
