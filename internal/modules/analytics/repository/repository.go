package repository

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"atmos-server/internal/modules/analytics/types"
)

//go:embed sql/filter-sources.sql
var filterSourcesSQL string

//go:embed sql/filter-stations.sql
var filterStationsSQL string

//go:embed sql/filter-variables.sql
var filterVariablesSQL string

//go:embed sql/observed-range.sql
var observedRangeSQL string

//go:embed sql/query-base.sql
var queryBaseSQL string

//go:embed sql/station-live-base.sql
var stationLiveBaseSQL string

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/upsert-variable.sql
var upsertVariableSQL string

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/ensure-live-run.sql
var ensureLiveRunSQL string

//go:embed sql/ensure-live-source.sql
var ensureLiveSourceSQL string

const defaultQueryLimit = 5000

// StationRecord is a stations table row, used by the reference sync.
type StationRecord struct {
	ID        int64
	Code      string
	Name      string
	Latitude  *float64
	Longitude *float64
}

type AnalyticsRepository interface {
	GetFilterOptions() (*types.FilterOptions, error)
	QueryMeasurements(req types.QueryRequest) (*types.QueryResponse, error)
	StationLiveSnapshot(stationCodes []string) (*types.StationLiveSnapshot, error)
	PreviewSQL(sqlText string, limit int) (*types.SQLPreviewResponse, error)
	InsertObservation(obs types.Observation, stationName, variableName, defaultUnit string) error
	ListStations() ([]StationRecord, error)
	UpdateStation(id int64, name string, latitude, longitude float64) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) AnalyticsRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) GetFilterOptions() (*types.FilterOptions, error) {
	out := &types.FilterOptions{
		Sources:   []types.SourceOption{},
		Stations:  []types.StationOption{},
		Variables: []types.VariableOption{},
	}

	rows, err := r.db.Query(filterSourcesSQL)
	if err != nil {
		return nil, fmt.Errorf("filter sources: %w", err)
	}
	defer closeRows(rows, "filter sources")
	for rows.Next() {
		var s types.SourceOption
		var downloadedAt sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.SourceType, &s.EtlRunID, &downloadedAt, &s.RowCount); err != nil {
			return nil, err
		}
		if downloadedAt.Valid {
			if t, err := parseTimestamp(downloadedAt.String); err == nil {
				s.DownloadedAt = &t
			}
		}
		out.Sources = append(out.Sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stationRows, err := r.db.Query(filterStationsSQL)
	if err != nil {
		return nil, fmt.Errorf("filter stations: %w", err)
	}
	defer closeRows(stationRows, "filter stations")
	for stationRows.Next() {
		var s types.StationOption
		var lat, lon sql.NullFloat64
		if err := stationRows.Scan(&s.Code, &s.Name, &lat, &lon); err != nil {
			return nil, err
		}
		if lat.Valid {
			s.Latitude = &lat.Float64
		}
		if lon.Valid {
			s.Longitude = &lon.Float64
		}
		out.Stations = append(out.Stations, s)
	}
	if err := stationRows.Err(); err != nil {
		return nil, err
	}

	variableRows, err := r.db.Query(filterVariablesSQL)
	if err != nil {
		return nil, fmt.Errorf("filter variables: %w", err)
	}
	defer closeRows(variableRows, "filter variables")
	for variableRows.Next() {
		var v types.VariableOption
		if err := variableRows.Scan(&v.Code, &v.Name); err != nil {
			return nil, err
		}
		out.Variables = append(out.Variables, v)
	}
	if err := variableRows.Err(); err != nil {
		return nil, err
	}

	var minStr, maxStr sql.NullString
	if err := r.db.QueryRow(observedRangeSQL).Scan(&minStr, &maxStr); err != nil {
		return nil, fmt.Errorf("observed range: %w", err)
	}
	if minStr.Valid {
		if t, err := parseTimestamp(minStr.String); err == nil {
			out.MinObservedAt = &t
		}
	}
	if maxStr.Valid {
		if t, err := parseTimestamp(maxStr.String); err == nil {
			out.MaxObservedAt = &t
		}
	}

	return out, nil
}

func (r *repositoryImpl) QueryMeasurements(req types.QueryRequest) (*types.QueryResponse, error) {
	var clauses []string
	var args []any

	if len(req.SourceFileIDs) > 0 {
		clauses = append(clauses, "sf.id IN ("+placeholders(len(req.SourceFileIDs))+")")
		for _, id := range req.SourceFileIDs {
			args = append(args, id)
		}
	}
	if len(req.StationCodes) > 0 {
		clauses = append(clauses, "s.code IN ("+placeholders(len(req.StationCodes))+")")
		for _, c := range req.StationCodes {
			args = append(args, c)
		}
	}
	if len(req.VariableCodes) > 0 {
		clauses = append(clauses, "v.code IN ("+placeholders(len(req.VariableCodes))+")")
		for _, c := range req.VariableCodes {
			args = append(args, c)
		}
	}
	// Timestamps are stored as RFC3339 UTC text, so comparing against a bare
	// calendar date gives an inclusive lower and exclusive upper day bound.
	if req.DateFrom != "" {
		day, err := parseDay(req.DateFrom)
		if err != nil {
			return nil, fmt.Errorf("date_from: %w", err)
		}
		clauses = append(clauses, "m.observed_at >= ?")
		args = append(args, day.Format("2006-01-02"))
	}
	if req.DateTo != "" {
		day, err := parseDay(req.DateTo)
		if err != nil {
			return nil, fmt.Errorf("date_to: %w", err)
		}
		clauses = append(clauses, "m.observed_at < ?")
		args = append(args, day.AddDate(0, 0, 1).Format("2006-01-02"))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	requested := req.Limit
	if requested <= 0 {
		requested = defaultQueryLimit
	}
	if requested < 100 {
		requested = 100
	}
	datasetRows, err := r.datasetRowCount(req.SourceFileIDs)
	if err != nil {
		return nil, err
	}
	effective := requested
	if datasetRows > 0 && datasetRows < effective {
		effective = datasetRows
	}

	query := queryBaseSQL + "\n" + where + "\nORDER BY m.observed_at ASC\nLIMIT ?"
	args = append(args, effective+1)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer closeRows(rows, "query measurements")

	out := make([]types.MeasurementRow, 0, effective)
	truncated := false
	for rows.Next() {
		var rec types.MeasurementRow
		var ts string
		var unit sql.NullString
		err := rows.Scan(&ts, &rec.Value, &unit,
			&rec.StationCode, &rec.StationName,
			&rec.VariableCode, &rec.VariableName,
			&rec.SourceFileID, &rec.SourceFileName, &rec.SourceType)
		if err != nil {
			return nil, err
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		rec.ObservedAt = t
		rec.Unit = unit.String
		if len(out) == effective {
			truncated = true
			break
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.QueryResponse{Rows: out, RowCount: len(out), Truncated: truncated}, nil
}

func (r *repositoryImpl) datasetRowCount(sourceFileIDs []int64) (int, error) {
	query := "SELECT COUNT(id) FROM measurements"
	var args []any
	if len(sourceFileIDs) > 0 {
		query += " WHERE source_file_id IN (" + placeholders(len(sourceFileIDs)) + ")"
		for _, id := range sourceFileIDs {
			args = append(args, id)
		}
	}
	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("dataset row count: %w", err)
	}
	return n, nil
}

func (r *repositoryImpl) StationLiveSnapshot(stationCodes []string) (*types.StationLiveSnapshot, error) {
	query := stationLiveBaseSQL
	var args []any
	if len(stationCodes) > 0 {
		query += " AND s.code IN (" + placeholders(len(stationCodes)) + ")"
		for _, c := range stationCodes {
			args = append(args, c)
		}
	}
	query += "\nORDER BY s.code ASC, v.code ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("station live: %w", err)
	}
	defer closeRows(rows, "station live")

	out := &types.StationLiveSnapshot{Stations: []types.StationLiveItem{}}
	index := make(map[string]int)
	var globalLatest time.Time

	for rows.Next() {
		var stationCode, stationName, variableCode, variableName, ts string
		var lat, lon sql.NullFloat64
		var unit sql.NullString
		var value float64
		err := rows.Scan(&stationCode, &stationName, &lat, &lon,
			&variableCode, &variableName, &value, &unit, &ts)
		if err != nil {
			return nil, err
		}
		observedAt, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}

		i, ok := index[stationCode]
		if !ok {
			item := types.StationLiveItem{
				StationCode:      stationCode,
				StationName:      stationName,
				LatestObservedAt: observedAt,
			}
			if lat.Valid {
				item.Latitude = &lat.Float64
			}
			if lon.Valid {
				item.Longitude = &lon.Float64
			}
			out.Stations = append(out.Stations, item)
			i = len(out.Stations) - 1
			index[stationCode] = i
		}

		item := &out.Stations[i]
		item.Variables = append(item.Variables, types.StationLatestVariable{
			VariableCode: variableCode,
			VariableName: variableName,
			Value:        value,
			Unit:         unit.String,
			ObservedAt:   observedAt,
		})
		if observedAt.After(item.LatestObservedAt) {
			item.LatestObservedAt = observedAt
		}
		if observedAt.After(globalLatest) {
			globalLatest = observedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out.Total = len(out.Stations)
	if !globalLatest.IsZero() {
		out.LatestObservedAt = &globalLatest
	}
	return out, nil
}

func (r *repositoryImpl) InsertObservation(obs types.Observation, stationName, variableName, defaultUnit string) error {
	if _, err := r.db.Exec(upsertStationSQL, obs.StationCode, stationName); err != nil {
		return fmt.Errorf("upsert station %q: %w", obs.StationCode, err)
	}
	var stationID int64
	if err := r.db.QueryRow(`SELECT id FROM stations WHERE code = ?`, obs.StationCode).Scan(&stationID); err != nil {
		return fmt.Errorf("lookup station %q: %w", obs.StationCode, err)
	}

	var unitArg any
	if defaultUnit != "" {
		unitArg = defaultUnit
	}
	if _, err := r.db.Exec(upsertVariableSQL, obs.VariableCode, variableName, unitArg); err != nil {
		return fmt.Errorf("upsert variable %q: %w", obs.VariableCode, err)
	}
	var variableID int64
	if err := r.db.QueryRow(`SELECT id FROM variables WHERE code = ?`, obs.VariableCode).Scan(&variableID); err != nil {
		return fmt.Errorf("lookup variable %q: %w", obs.VariableCode, err)
	}

	sourceFileID, err := r.ensureLiveSource()
	if err != nil {
		return err
	}

	ts := obs.ObservedAt.UTC().Format(time.RFC3339Nano)
	var obsUnit any
	if obs.Unit != "" {
		obsUnit = obs.Unit
	}
	hash := recordHash(obs.StationCode, obs.VariableCode, obs.ObservedAt)
	_, err = r.db.Exec(insertMeasurementSQL, stationID, variableID, ts, obs.Value, obsUnit, sourceFileID, hash)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	// The upsert degrades to an UPDATE on a duplicate observation, so the
	// counter is recomputed instead of incremented.
	_, err = r.db.Exec(
		`UPDATE source_files SET row_count = (SELECT COUNT(*) FROM measurements WHERE source_file_id = source_files.id) WHERE id = ?`,
		sourceFileID,
	)
	if err != nil {
		return fmt.Errorf("refresh live source row count: %w", err)
	}
	return nil
}

// ensureLiveSource creates the reserved live-telemetry source file (and its
// etl run) on first use and returns its id.
func (r *repositoryImpl) ensureLiveSource() (int64, error) {
	if _, err := r.db.Exec(ensureLiveRunSQL); err != nil {
		return 0, fmt.Errorf("ensure live run: %w", err)
	}
	if _, err := r.db.Exec(ensureLiveSourceSQL); err != nil {
		return 0, fmt.Errorf("ensure live source: %w", err)
	}
	var id int64
	err := r.db.QueryRow(
		`SELECT id FROM source_files WHERE original_name = 'live-telemetry' AND source_type = 'live'`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup live source: %w", err)
	}
	return id, nil
}

func (r *repositoryImpl) ListStations() ([]StationRecord, error) {
	rows, err := r.db.Query(`SELECT id, code, name, latitude, longitude FROM stations`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer closeRows(rows, "list stations")

	var out []StationRecord
	for rows.Next() {
		var rec StationRecord
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.Name, &lat, &lon); err != nil {
			return nil, err
		}
		if lat.Valid {
			rec.Latitude = &lat.Float64
		}
		if lon.Valid {
			rec.Longitude = &lon.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) UpdateStation(id int64, name string, latitude, longitude float64) error {
	_, err := r.db.Exec(
		`UPDATE stations SET name = ?, latitude = ?, longitude = ? WHERE id = ?`,
		name, latitude, longitude, id,
	)
	if err != nil {
		return fmt.Errorf("update station %d: %w", id, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", ts, err, err2)
		}
	}
	return t, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close rows", "query", what, "error", err)
	}
}
