package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"bms-cloud/internal/auth"
	backfillapp "bms-cloud/internal/backfill/application"
	backfillrepo "bms-cloud/internal/backfill/infrastructure/postgres"
)

const timeLayout = time.RFC3339

// Handler provides backfill APIs.
type Handler struct {
	runner   *backfillapp.Runner
	repo     *backfillrepo.Repository
	tenantID string
}

// NewHandler constructs a handler.
func NewHandler(runner *backfillapp.Runner, repo *backfillrepo.Repository, tenantID string) (*Handler, error) {
	if runner == nil || repo == nil {
		return nil, errors.New("backfill handler: nil dependency")
	}
	return &Handler{runner: runner, repo: repo, tenantID: tenantID}, nil
}

// ServeHTTP routes backfill endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/backfill/run" && r.Method == http.MethodPost:
		h.handleRun(w, r)
	case r.URL.Path == "/api/v1/backfill/reports" && r.Method == http.MethodGet:
		h.handleReports(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/backfill/reports/"):
		h.handleReportByID(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID   string                  `json:"tenant_id"`
		Month      string                  `json:"month"`
		Thresholds *backfillapp.Thresholds `json:"thresholds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = req.TenantID
	}
	if tenantID == "" {
		tenantID = h.tenantID
	}
	if tenantID == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
		return
	}
	month, err := parseMonth(req.Month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.runner.Run(r.Context(), tenantID, month, time.Now().UTC(), req.Thresholds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]any{"tenant_id": tenantID}
	if report != nil {
		resp["report_id"] = report.ID
		resp["status"] = report.Status
		resp["changed"] = report.ChangedCount
		resp["recommended_action"] = report.RecommendedAction
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant_id")
	}
	if tenantID == "" {
		tenantID = h.tenantID
	}
	if tenantID == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
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
	reports, err := h.repo.ListReports(r.Context(), tenantID, from, to)
	if err != nil {
		http.Error(w, "query reports error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reports)
}

func (h *Handler) handleReportByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/backfill/reports/")
	parts := strings.Split(path, "/")
	reportID := parts[0]
	if reportID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleReportGet(w, r, reportID)
		return
	}
	if len(parts) == 2 && parts[1] == "download" && r.Method == http.MethodGet {
		h.handleDownload(w, r, reportID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleReportGet(w http.ResponseWriter, r *http.Request, reportID string) {
	report, ok := h.loadOwnedReport(w, r, reportID)
	if !ok {
		return
	}
	resp := map[string]any{
		"id":                 report.ID,
		"job_id":             report.JobID,
		"tenant_id":          report.TenantID,
		"month":              report.Month.Format("2006-01"),
		"report_date":        report.ReportDate.Format("2006-01-02"),
		"status":             report.Status,
		"location":           report.Location,
		"diff_summary":       json.RawMessage(report.DiffSummary),
		"changed":            report.ChangedCount,
		"changed_pct":        report.ChangedPct,
		"review_new":         report.ReviewCount,
		"recommended_action": report.RecommendedAction,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request, reportID string) {
	report, ok := h.loadOwnedReport(w, r, reportID)
	if !ok {
		return
	}
	http.ServeFile(w, r, report.Location)
}

func (h *Handler) loadOwnedReport(w http.ResponseWriter, r *http.Request, reportID string) (*backfillrepo.Report, bool) {
	report, err := h.repo.GetReport(r.Context(), reportID)
	if err != nil || report == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return nil, false
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && report.TenantID != tenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return report, true
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

func parseMonth(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("month required")
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, errors.New("month must be YYYY-MM")
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}
