// Package service sits between the analytics controller and the repository:
// it keeps station metadata in sync with the curated reference table,
// decorates responses with region information and handles live observations
// arriving over MQTT.
package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"atmos-server/internal/modules/analytics/repository"
	"atmos-server/internal/modules/analytics/types"
)

// defaultVariableUnits maps normalized variable codes to the unit used when
// an observation arrives without one.
var defaultVariableUnits = map[string]string{
	"PM25": "ug/m3", "PM10": "ug/m3",
	"NO2": "ug/m3", "SO2": "ug/m3", "O3": "ug/m3",
	"CO":  "mg/m3",
	"TMP": "C", "TEMP": "C",
	"HUM": "%",
	"VEL": "m/s",
	"PRE": "hPa",
	"IUV": "index",
	"RS":  "W/m2",
	"LLU": "mm",
}

type Service struct {
	repo   repository.AnalyticsRepository
	logger *slog.Logger
}

func NewService(repo repository.AnalyticsRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// FilterOptions syncs station metadata and returns the filter options with
// regions resolved from the reference table.
func (s *Service) FilterOptions() (*types.FilterOptions, error) {
	s.syncStationReference()
	out, err := s.repo.GetFilterOptions()
	if err != nil {
		return nil, err
	}
	for i := range out.Stations {
		if ref := ResolveStationReference(out.Stations[i].Code, out.Stations[i].Name); ref != nil {
			out.Stations[i].Region = ref.Region
		}
	}
	return out, nil
}

func (s *Service) Query(req types.QueryRequest) (*types.QueryResponse, error) {
	return s.repo.QueryMeasurements(req)
}

// StationLive returns the latest value per (station, variable), filling
// coordinates and region from the reference for stations the store has no
// position for.
func (s *Service) StationLive(stationCodes []string) (*types.StationLiveSnapshot, error) {
	s.syncStationReference()
	out, err := s.repo.StationLiveSnapshot(stationCodes)
	if err != nil {
		return nil, err
	}
	for i := range out.Stations {
		item := &out.Stations[i]
		ref := ResolveStationReference(item.StationCode, item.StationName)
		if ref == nil {
			continue
		}
		item.Region = ref.Region
		if item.Latitude == nil {
			lat := ref.Latitude
			item.Latitude = &lat
		}
		if item.Longitude == nil {
			lon := ref.Longitude
			item.Longitude = &lon
		}
	}
	return out, nil
}

func (s *Service) PreviewSQL(req types.SQLPreviewRequest) (*types.SQLPreviewResponse, error) {
	return s.repo.PreviewSQL(req.SQL, req.Limit)
}

// syncStationReference pushes reference names and coordinates into the
// stations table. Failures only log; serving slightly stale metadata beats
// failing the request.
func (s *Service) syncStationReference() {
	stations, err := s.repo.ListStations()
	if err != nil {
		s.logger.Error("station reference sync: list stations", "error", err)
		return
	}
	for _, st := range stations {
		ref := ResolveStationReference(st.Code, st.Name)
		if ref == nil {
			continue
		}
		name := st.Name
		changed := false
		if isPlaceholderName(st.Name, st.Code) {
			name = ref.Name
			changed = true
		}
		if coordsDrifted(st.Latitude, ref.Latitude) || coordsDrifted(st.Longitude, ref.Longitude) {
			changed = true
		}
		if !changed {
			continue
		}
		if err := s.repo.UpdateStation(st.ID, name, ref.Latitude, ref.Longitude); err != nil {
			s.logger.Error("station reference sync: update", "station", st.Code, "error", err)
		}
	}
}

// HandleObservation validates and stores a live observation. Used as the
// MQTT message handler.
func (s *Service) HandleObservation(obs types.Observation) error {
	if err := validateObservation(obs); err != nil {
		return err
	}

	obs.StationCode = strings.TrimSpace(obs.StationCode)
	obs.VariableCode = normalizeVariableCode(obs.VariableCode)

	stationName := obs.StationCode
	if ref := ResolveStationReference(obs.StationCode, ""); ref != nil {
		stationName = ref.Name
	}
	unit := strings.TrimSpace(obs.Unit)
	if unit == "" {
		unit = defaultVariableUnits[obs.VariableCode]
	}
	obs.Unit = unit

	if err := s.repo.InsertObservation(obs, stationName, obs.VariableCode, defaultVariableUnits[obs.VariableCode]); err != nil {
		s.logger.Error("store observation",
			"station", obs.StationCode,
			"variable", obs.VariableCode,
			"error", err,
		)
		return err
	}

	s.logger.Debug("observation stored",
		"station", obs.StationCode,
		"variable", obs.VariableCode,
		"observed_at", obs.ObservedAt,
	)
	return nil
}

func validateObservation(obs types.Observation) error {
	if strings.TrimSpace(obs.StationCode) == "" {
		return fmt.Errorf("station_code is required")
	}
	if strings.TrimSpace(obs.VariableCode) == "" {
		return fmt.Errorf("variable_code is required")
	}
	if obs.ObservedAt.IsZero() {
		return fmt.Errorf("observed_at is required")
	}
	if obs.ObservedAt.After(time.Now().Add(24 * time.Hour)) {
		return fmt.Errorf("observed_at is too far in the future")
	}
	return nil
}

// normalizeVariableCode collapses the spellings the feeds use for the same
// pollutant (PM2.5, PM2_5, PM2-5 are all PM25).
func normalizeVariableCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	c = strings.ReplaceAll(c, " ", "")
	c = strings.ReplaceAll(c, "μ", "u")
	c = strings.ReplaceAll(c, "µ", "u")
	switch c {
	case "PM2.5", "PM2_5", "PM2-5":
		return "PM25"
	}
	return c
}
