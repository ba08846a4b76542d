package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	associator "bms-cloud/internal/associator/domain"
)

const defaultHistoryWindow = 30 * 24 * time.Hour

// HistoryQuery derives per-system stats from accepted snapshots. Telemetry
// values live inside the extracted JSONB in either the flat or the nested
// shape, so both paths are coalesced in SQL.
type HistoryQuery struct {
	db     *sql.DB
	table  string
	window time.Duration
}

// NewHistoryQuery constructs a query with the default table and window.
func NewHistoryQuery(db *sql.DB, opts ...HistoryOption) *HistoryQuery {
	query := &HistoryQuery{db: db, table: defaultSnapshotsTable, window: defaultHistoryWindow}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// HistoryOption configures the history query.
type HistoryOption func(*HistoryQuery)

// WithHistoryTable overrides the default table name.
func WithHistoryTable(table string) HistoryOption {
	return func(query *HistoryQuery) {
		if query != nil && table != "" {
			query.table = table
		}
	}
}

// WithHistoryWindow overrides how far back the stats look.
func WithHistoryWindow(window time.Duration) HistoryOption {
	return func(query *HistoryQuery) {
		if query != nil && window > 0 {
			query.window = window
		}
	}
}

// StatsBySystem returns the rolling stats for every system with accepted
// history inside the window.
func (q *HistoryQuery) StatsBySystem(ctx context.Context, tenantID string) (map[string]associator.SystemStats, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("history query: nil db")
	}
	since := time.Now().UTC().Add(-q.window)

	query := fmt.Sprintf(`
SELECT DISTINCT ON (system_id)
	system_id,
	AVG(voltage) OVER (PARTITION BY system_id) AS avg_voltage,
	soc,
	captured_at
FROM (
	SELECT
		system_id,
		captured_at,
		COALESCE(extracted->>'overallVoltage', extracted->'analysis'->>'overallVoltage')::float8 AS voltage,
		COALESCE(extracted->>'stateOfCharge', extracted->'analysis'->>'stateOfCharge')::float8 AS soc
	FROM %s
	WHERE system_id <> ''
		AND status IN ('matched_strict', 'matched_stripped', 'matched_fuzzy', 'matched_physics')
		AND ($1 = '' OR tenant_id = $1)
		AND captured_at >= $2
) h
ORDER BY system_id, captured_at DESC`, q.table)

	rows, err := q.db.QueryContext(ctx, query, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]associator.SystemStats)
	for rows.Next() {
		var (
			systemID   string
			avgVoltage sql.NullFloat64
			soc        sql.NullFloat64
			capturedAt time.Time
		)
		if err := rows.Scan(&systemID, &avgVoltage, &soc, &capturedAt); err != nil {
			return nil, err
		}
		entry := associator.SystemStats{LastTimestamp: capturedAt.UTC()}
		if avgVoltage.Valid {
			v := avgVoltage.Float64
			entry.AvgVoltage = &v
		}
		if soc.Valid {
			v := soc.Float64
			entry.LastSoc = &v
		}
		stats[systemID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
