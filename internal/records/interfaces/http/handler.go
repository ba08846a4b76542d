package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"bms-cloud/internal/auth"
	recordsapp "bms-cloud/internal/records/application"
)

// AssociateHandler triggers a batch association run over stored snapshots
// that have no outcome yet.
type AssociateHandler struct {
	service  *recordsapp.AssociationService
	tenantID string
	logger   *log.Logger
}

// NewAssociateHandler constructs the handler.
func NewAssociateHandler(service *recordsapp.AssociationService, tenantID string, logger *log.Logger) (*AssociateHandler, error) {
	if service == nil {
		return nil, errors.New("associate handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AssociateHandler{service: service, tenantID: tenantID, logger: logger}, nil
}

// ServeHTTP handles POST /api/v1/associate/run.
func (h *AssociateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TenantID string `json:"tenant_id"`
		Limit    int    `json:"limit"`
	}
	// An empty body runs the batch with defaults.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
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

	summary, err := h.service.AssociateBatch(r.Context(), tenantID, req.Limit)
	if err != nil {
		h.logger.Printf("associate run: tenant=%s err=%v", tenantID, err)
		http.Error(w, "associate batch error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}
