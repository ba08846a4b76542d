package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bms-cloud/internal/auth"
)

const timeLayout = time.RFC3339

// StatsHandler serves association outcome statistics.
type StatsHandler struct {
	db       *sql.DB
	tenantID string
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(db *sql.DB, tenantID string) *StatsHandler {
	return &StatsHandler{db: db, tenantID: tenantID}
}

// ServeHTTP handles GET /api/v1/stats.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID := resolveTenant(r, h.tenantID)
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	granularity := r.URL.Query().Get("granularity")
	bucket, err := resolveBucket(granularity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := queryOutcomeStats(r.Context(), h.db, tenantID, bucket, from, to)
	if err != nil {
		http.Error(w, "query stats error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// SnapshotsHandler serves association outcome queries over a time window.
type SnapshotsHandler struct {
	db       *sql.DB
	tenantID string
}

// NewSnapshotsHandler constructs a SnapshotsHandler.
func NewSnapshotsHandler(db *sql.DB, tenantID string) *SnapshotsHandler {
	return &SnapshotsHandler{db: db, tenantID: tenantID}
}

// ServeHTTP handles GET /api/v1/snapshots.
func (h *SnapshotsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID := resolveTenant(r, h.tenantID)
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	rows, err := querySnapshotOutcomes(r.Context(), h.db, tenantID, r.URL.Query().Get("status"), from, to)
	if err != nil {
		http.Error(w, "query snapshots error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// ExportSnapshotsCSVHandler serves snapshot outcome CSV exports.
type ExportSnapshotsCSVHandler struct {
	db       *sql.DB
	tenantID string
}

// NewExportSnapshotsCSVHandler constructs a ExportSnapshotsCSVHandler.
func NewExportSnapshotsCSVHandler(db *sql.DB, tenantID string) *ExportSnapshotsCSVHandler {
	return &ExportSnapshotsCSVHandler{db: db, tenantID: tenantID}
}

// ServeHTTP handles GET /api/v1/exports/snapshots.csv.
func (h *ExportSnapshotsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID := resolveTenant(r, h.tenantID)
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	rows, err := querySnapshotOutcomes(r.Context(), h.db, tenantID, r.URL.Query().Get("status"), from, to)
	if err != nil {
		http.Error(w, "query snapshots error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshots.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"snapshot_id",
		"tenant_id",
		"source",
		"captured_at",
		"status",
		"system_id",
		"system_name",
		"confidence",
		"matched_id",
		"fuzzy_original",
		"is_new_candidate",
		"reason",
		"associated_at",
	})
	for _, row := range rows {
		_ = writer.Write([]string{
			row.SnapshotID,
			row.TenantID,
			row.Source,
			row.CapturedAt.Format(timeLayout),
			row.Status,
			row.SystemID,
			row.SystemName,
			row.Confidence,
			row.MatchedID,
			row.FuzzyOriginal,
			formatBool(row.IsNewCandidate),
			row.Reason,
			formatTimePtr(row.AssociatedAt),
		})
	}
	writer.Flush()
}

type outcomeStatRow struct {
	PeriodStart  time.Time `json:"period_start"`
	Status       string    `json:"status"`
	Count        int       `json:"count"`
	NewCandidate int       `json:"new_candidate"`
}

type snapshotOutcomeRow struct {
	SnapshotID     string     `json:"snapshot_id"`
	TenantID       string     `json:"tenant_id"`
	Source         string     `json:"source"`
	CapturedAt     time.Time  `json:"captured_at"`
	Status         string     `json:"status"`
	SystemID       string     `json:"system_id"`
	SystemName     string     `json:"system_name"`
	Confidence     string     `json:"confidence"`
	MatchedID      string     `json:"matched_id"`
	FuzzyOriginal  string     `json:"fuzzy_original"`
	IsNewCandidate bool       `json:"is_new_candidate"`
	Reason         string     `json:"reason"`
	AssociatedAt   *time.Time `json:"associated_at"`
}

func queryOutcomeStats(ctx context.Context, db *sql.DB, tenantID, bucket string, from, to time.Time) ([]outcomeStatRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	date_trunc($1, captured_at) AS period_start,
	COALESCE(NULLIF(status, ''), 'unresolved') AS status,
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE is_new_candidate) AS new_candidate
FROM snapshots
WHERE tenant_id = $2
	AND captured_at >= $3
	AND captured_at < $4
GROUP BY 1, 2
ORDER BY 1 ASC, 2 ASC`, bucket, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []outcomeStatRow
	for rows.Next() {
		var row outcomeStatRow
		if err := rows.Scan(&row.PeriodStart, &row.Status, &row.Count, &row.NewCandidate); err != nil {
			return nil, err
		}
		row.PeriodStart = row.PeriodStart.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func querySnapshotOutcomes(ctx context.Context, db *sql.DB, tenantID, status string, from, to time.Time) ([]snapshotOutcomeRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	id,
	tenant_id,
	source,
	captured_at,
	status,
	system_id,
	system_name,
	confidence,
	matched_id,
	fuzzy_original,
	is_new_candidate,
	reason,
	associated_at
FROM snapshots
WHERE tenant_id = $1
	AND ($2 = '' OR status = $2)
	AND captured_at >= $3
	AND captured_at < $4
ORDER BY captured_at ASC`, tenantID, status, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []snapshotOutcomeRow
	for rows.Next() {
		var (
			row            snapshotOutcomeRow
			systemID       sql.NullString
			systemName     sql.NullString
			confidence     sql.NullString
			matchedID      sql.NullString
			fuzzyOriginal  sql.NullString
			isNewCandidate sql.NullBool
			reason         sql.NullString
			associatedAt   sql.NullTime
		)
		if err := rows.Scan(
			&row.SnapshotID,
			&row.TenantID,
			&row.Source,
			&row.CapturedAt,
			&row.Status,
			&systemID,
			&systemName,
			&confidence,
			&matchedID,
			&fuzzyOriginal,
			&isNewCandidate,
			&reason,
			&associatedAt,
		); err != nil {
			return nil, err
		}
		row.CapturedAt = row.CapturedAt.UTC()
		row.SystemID = systemID.String
		row.SystemName = systemName.String
		row.Confidence = confidence.String
		row.MatchedID = matchedID.String
		row.FuzzyOriginal = fuzzyOriginal.String
		row.IsNewCandidate = isNewCandidate.Bool
		row.Reason = reason.String
		if associatedAt.Valid {
			t := associatedAt.Time.UTC()
			row.AssociatedAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func resolveTenant(r *http.Request, fallback string) string {
	if tenantID := auth.TenantIDFromContext(r.Context()); tenantID != "" {
		return tenantID
	}
	if tenantID := r.URL.Query().Get("tenant_id"); tenantID != "" {
		return tenantID
	}
	return fallback
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

// resolveBucket maps the public granularity values onto date_trunc fields.
func resolveBucket(granularity string) (string, error) {
	switch granularity {
	case "hour":
		return "hour", nil
	case "day":
		return "day", nil
	default:
		return "", errors.New("granularity must be hour or day")
	}
}

func formatBool(value bool) string {
	return strconv.FormatBool(value)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
