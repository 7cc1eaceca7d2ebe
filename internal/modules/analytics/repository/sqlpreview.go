package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"atmos-server/internal/modules/analytics/types"
)

const (
	defaultPreviewLimit = 120
	maxPreviewLimit     = 500
)

// forbiddenSQLRe rejects anything that could mutate state even when hidden
// inside a SELECT body.
var forbiddenSQLRe = regexp.MustCompile(
	`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|comment|copy|call|do|merge)\b`,
)

// ErrInvalidSQL is the base of every preview validation failure; callers
// map it to a 400 instead of a 500.
var ErrInvalidSQL = errors.New("invalid preview sql")

// PreviewSQL runs a validated read-only SELECT wrapped in a limiting
// subquery and returns its columns and rows as generic maps.
func (r *repositoryImpl) PreviewSQL(sqlText string, limit int) (*types.SQLPreviewResponse, error) {
	clean, err := validateSelectSQL(sqlText)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS sql_preview LIMIT ?", clean)
	rows, err := r.db.Query(wrapped, limit+1)
	if err != nil {
		return nil, fmt.Errorf("sql preview: %w", err)
	}
	defer closeRows(rows, "sql preview")

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &types.SQLPreviewResponse{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		if len(out.Rows) == limit {
			out.Truncated = true
			break
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = previewValue(values[i])
		}
		out.Rows = append(out.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out.RowCount = len(out.Rows)
	if len(out.Rows) == 0 {
		out.Columns = []string{}
	}
	return out, nil
}

func validateSelectSQL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("%w: provide a SQL query", ErrInvalidSQL)
	}
	candidate = strings.TrimSpace(strings.TrimSuffix(candidate, ";"))
	if strings.Contains(candidate, ";") {
		return "", fmt.Errorf("%w: only one SQL statement is allowed", ErrInvalidSQL)
	}
	if !strings.HasPrefix(strings.ToLower(candidate), "select ") {
		return "", fmt.Errorf("%w: only SELECT queries are allowed", ErrInvalidSQL)
	}
	if strings.Contains(candidate, "--") || strings.Contains(candidate, "/*") || strings.Contains(candidate, "*/") {
		return "", fmt.Errorf("%w: SQL comments are not allowed in preview mode", ErrInvalidSQL)
	}
	if forbiddenSQLRe.MatchString(candidate) {
		return "", fmt.Errorf("%w: only read-only SELECT queries are allowed", ErrInvalidSQL)
	}
	return candidate, nil
}

func previewValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func recordHash(stationCode, variableCode string, observedAt time.Time) string {
	payload := stationCode + "|" + variableCode + "|" + observedAt.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
