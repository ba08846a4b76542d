package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bms-cloud/internal/audit"
	"bms-cloud/internal/auth"
	fleet "bms-cloud/internal/fleet/domain"
	"bms-cloud/internal/observability/metrics"
	reviewapp "bms-cloud/internal/review/application"
	review "bms-cloud/internal/review/domain"
	"bms-cloud/internal/review/interfaces"
)

// Handler provides review queue HTTP endpoints.
type Handler struct {
	service     *reviewapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler. The audit logger may be nil.
func NewHandler(service *reviewapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("review handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

type confirmRequest struct {
	SystemID  string `json:"system_id"`
	AliasKind string `json:"alias_kind"`
	Alias     string `json:"alias"`
}

// ServeHTTP handles /api/v1/review and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/review":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/review/export":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/review/"):
		h.handleAction(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	items, err := h.service.ListItems(r.Context(), status, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []review.Item{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = review.StatusOpen
	}

	items, err := h.service.ListItems(r.Context(), status, 0)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var payload []byte
	var contentType, filename string
	switch format {
	case "xlsx":
		payload, err = interfaces.BuildQueueXLSX(items, time.Now().UTC())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "review-queue.xlsx"
	case "pdf":
		payload, err = interfaces.BuildQueuePDF(items, time.Now().UTC())
		contentType = "application/pdf"
		filename = "review-queue.pdf"
	default:
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(payload)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/review/")
	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] != "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, parts[0])
		return
	}
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := parts[0]
	action := parts[1]

	var (
		item *review.Item
		err  error
	)
	switch action {
	case "confirm":
		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		item, err = h.service.Confirm(r.Context(), id, reviewapp.ConfirmInput{
			SystemID:  req.SystemID,
			AliasKind: fleet.AliasKind(req.AliasKind),
			Alias:     req.Alias,
		})
	case "dismiss":
		item, err = h.service.Dismiss(r.Context(), id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	h.logAudit(r, item, "review."+action)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(item)
}

func (h *Handler) logAudit(r *http.Request, item *review.Item, action string) {
	if h.auditLogger == nil || item == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = item.TenantID
	}
	meta := map[string]any{
		"snapshot_id": item.SnapshotID,
		"system_id":   item.SystemID,
		"status":      item.Status,
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "review_item",
		ResourceID:   item.ID,
		SystemID:     item.SystemID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(item)
}

func respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, review.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if errors.Is(err, auth.ErrTenantMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, fleet.ErrNotFound) {
		http.Error(w, "system not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}
