package application

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	associator "bms-cloud/internal/associator/domain"
	records "bms-cloud/internal/records/domain"
)

const timeLayout = time.RFC3339

// SnapshotSource loads stored snapshots for a window.
type SnapshotSource interface {
	ListWindow(ctx context.Context, tenantID string, from, to time.Time) ([]records.Snapshot, error)
}

// MatcherProvider builds a resolver over the current registry state.
type MatcherProvider interface {
	Matcher(ctx context.Context, tenantID string) (*associator.Associator, error)
}

// outcomeRow compares the stored outcome of one snapshot with the outcome a
// fresh run produces against today's registry.
type outcomeRow struct {
	SnapshotID     string
	CapturedAt     time.Time
	Source         string
	HardwareID     string
	PrevStatus     string
	PrevSystemID   string
	PrevConfidence string
	NewStatus      string
	NewSystemID    string
	NewConfidence  string
	NewReason      string
	Changed        bool
}

type reconcileResult struct {
	Rows []outcomeRow
}

// reconcile re-runs association for every stored snapshot in the window and
// records where the outcome drifted from what was persisted. Stored outcomes
// are never overwritten; the run is a shadow comparison.
func reconcile(ctx context.Context, snapshots SnapshotSource, matchers MatcherProvider, tenantID string, from, to time.Time) (reconcileResult, error) {
	if snapshots == nil || matchers == nil {
		return reconcileResult{}, errors.New("backfill: nil dependency")
	}

	matcher, err := matchers.Matcher(ctx, tenantID)
	if err != nil {
		return reconcileResult{}, err
	}
	stored, err := snapshots.ListWindow(ctx, tenantID, from, to)
	if err != nil {
		return reconcileResult{}, err
	}

	rows := make([]outcomeRow, 0, len(stored))
	for _, snapshot := range stored {
		fresh := matcher.FindMatch(snapshot.Extracted)

		row := outcomeRow{
			SnapshotID:    snapshot.ID,
			CapturedAt:    snapshot.CapturedAt.UTC(),
			Source:        snapshot.Source,
			HardwareID:    strings.Join(snapshot.Extracted.Canonical().CandidateIDs, " "),
			NewStatus:     fresh.Status,
			NewSystemID:   fresh.SystemID,
			NewConfidence: fresh.Confidence,
			NewReason:     fresh.Reason,
		}
		if snapshot.Outcome != nil {
			row.PrevStatus = snapshot.Outcome.Status
			row.PrevSystemID = snapshot.Outcome.SystemID
			row.PrevConfidence = snapshot.Outcome.Confidence
		}
		row.Changed = row.PrevStatus != row.NewStatus || row.PrevSystemID != row.NewSystemID
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].CapturedAt.Before(rows[j].CapturedAt) })
	return reconcileResult{Rows: rows}, nil
}

type diffSummary struct {
	Month          string         `json:"month"`
	TenantID       string         `json:"tenant_id"`
	Total          int            `json:"total"`
	Changed        int            `json:"changed"`
	ChangedPct     float64        `json:"changed_pct"`
	ReviewNew      int            `json:"review_new"`
	ByStatusBefore map[string]int `json:"by_status_before"`
	ByStatusAfter  map[string]int `json:"by_status_after"`
	GeneratedAt    string         `json:"generated_at"`
	Thresholds     Thresholds     `json:"thresholds"`
}

func buildDiffSummary(result reconcileResult, tenantID string, monthStart time.Time, thresholds Thresholds) diffSummary {
	summary := diffSummary{
		Month:          monthStart.Format("2006-01"),
		TenantID:       tenantID,
		Total:          len(result.Rows),
		ByStatusBefore: make(map[string]int),
		ByStatusAfter:  make(map[string]int),
		GeneratedAt:    time.Now().UTC().Format(timeLayout),
		Thresholds:     thresholds,
	}
	for _, row := range result.Rows {
		before := row.PrevStatus
		if before == "" {
			before = "unresolved"
		}
		summary.ByStatusBefore[before]++
		summary.ByStatusAfter[row.NewStatus]++
		if row.Changed {
			summary.Changed++
		}
		if row.Changed && reviewStatus(row.NewStatus) && !reviewStatus(row.PrevStatus) {
			summary.ReviewNew++
		}
	}
	if summary.Total > 0 {
		summary.ChangedPct = float64(summary.Changed) / float64(summary.Total)
	}
	return summary
}

func reviewStatus(status string) bool {
	switch status {
	case associator.StatusAmbiguous, associator.StatusRejectedSemantic, associator.StatusNewCandidate:
		return true
	default:
		return false
	}
}

func isThresholdExceeded(summary diffSummary, thresholds Thresholds) bool {
	if thresholds.ChangedAbs > 0 && summary.Changed >= thresholds.ChangedAbs {
		return true
	}
	if thresholds.ChangedPct > 0 && summary.ChangedPct >= thresholds.ChangedPct && summary.Changed > 0 {
		return true
	}
	if thresholds.ReviewAbs > 0 && summary.ReviewNew >= thresholds.ReviewAbs {
		return true
	}
	return false
}

func recommendedAction(summary diffSummary, thresholds Thresholds) string {
	if thresholds.ReviewAbs > 0 && summary.ReviewNew >= thresholds.ReviewAbs {
		return "triage_review_queue"
	}
	if thresholds.ChangedAbs > 0 && summary.Changed >= thresholds.ChangedAbs {
		return "rerun_batch_association"
	}
	if thresholds.ChangedPct > 0 && summary.ChangedPct >= thresholds.ChangedPct && summary.Changed > 0 {
		return "check_registry_aliases"
	}
	return "none"
}

func writeReports(outDir string, result reconcileResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := writeOutcomes(outDir, "outcomes.csv", result.Rows); err != nil {
		return err
	}
	var changed []outcomeRow
	for _, row := range result.Rows {
		if row.Changed {
			changed = append(changed, row)
		}
	}
	return writeOutcomes(outDir, "changes.csv", changed)
}

func writeOutcomes(outDir, name string, rows []outcomeRow) error {
	path := filepath.Join(outDir, name)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"snapshot_id",
		"captured_at",
		"source",
		"hardware_id",
		"prev_status",
		"prev_system_id",
		"prev_confidence",
		"new_status",
		"new_system_id",
		"new_confidence",
		"new_reason",
		"changed",
	}); err != nil {
		return err
	}

	for _, row := range rows {
		if err := writer.Write([]string{
			row.SnapshotID,
			formatTime(row.CapturedAt),
			row.Source,
			row.HardwareID,
			row.PrevStatus,
			row.PrevSystemID,
			row.PrevConfidence,
			row.NewStatus,
			row.NewSystemID,
			row.NewConfidence,
			row.NewReason,
			strconv.FormatBool(row.Changed),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeSummaryJSON(outDir string, summary diffSummary) error {
	path := filepath.Join(outDir, "diff_summary.json")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func writeArchive(outDir string) (string, error) {
	archivePath := filepath.Join(outDir, "report.zip")
	file, err := os.Create(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	defer zipWriter.Close()

	entries := []string{
		"outcomes.csv",
		"changes.csv",
		"diff_summary.json",
	}

	for _, name := range entries {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fw, err := zipWriter.Create(name)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	return archivePath, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func validateMonth(monthStart, monthEnd time.Time) error {
	if monthStart.IsZero() || monthEnd.IsZero() {
		return errors.New("backfill: invalid month range")
	}
	if !monthEnd.After(monthStart) {
		return errors.New("backfill: invalid month range")
	}
	return nil
}
