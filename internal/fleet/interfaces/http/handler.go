package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bms-cloud/internal/auth"
	fleetapp "bms-cloud/internal/fleet/application"
	fleet "bms-cloud/internal/fleet/domain"
)

// Handler provides fleet registry HTTP endpoints.
type Handler struct {
	service *fleetapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *fleetapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("fleet handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles /api/v1/systems and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/systems":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleRegister(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(r.URL.Path, "/api/v1/systems/"):
		h.handleSubroute(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type systemView struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	HardwareIDs []string `json:"hardware_ids"`
	DLNumbers   []string `json:"dl_numbers"`
	Voltage     *float64 `json:"voltage,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

func toView(system fleet.System) systemView {
	return systemView{
		ID:          system.ID,
		TenantID:    system.TenantID,
		Name:        system.Name,
		HardwareIDs: system.AssociatedHardwareIDs,
		DLNumbers:   system.AssociatedDLs,
		Voltage:     system.Voltage,
		Notes:       system.Notes,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	systems, err := h.service.ListSystems(r.Context(), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]systemView, 0, len(systems))
	for _, system := range systems {
		views = append(views, toView(system))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}

type registerRequest struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	HardwareIDs []string `json:"hardware_ids"`
	DLNumbers   []string `json:"dl_numbers"`
	Voltage     *float64 `json:"voltage"`
	Notes       string   `json:"notes"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if tenantID := auth.TenantIDFromContext(r.Context()); tenantID != "" {
		req.TenantID = tenantID
	}

	system, err := h.service.RegisterSystem(r.Context(), fleetapp.RegisterInput{
		ID:          req.ID,
		TenantID:    req.TenantID,
		Name:        req.Name,
		HardwareIDs: req.HardwareIDs,
		DLNumbers:   req.DLNumbers,
		Voltage:     req.Voltage,
		Notes:       req.Notes,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toView(*system))
}

type confirmAliasRequest struct {
	Alias string `json:"alias"`
	Kind  string `json:"kind"`
}

func (h *Handler) handleSubroute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/systems/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "aliases":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleConfirmAlias(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	system, err := h.service.GetSystem(r.Context(), id)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tenantID := auth.TenantIDFromContext(r.Context()); tenantID != "" && system.TenantID != tenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toView(*system))
}

func (h *Handler) handleConfirmAlias(w http.ResponseWriter, r *http.Request, id string) {
	var req confirmAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	kind := fleet.AliasKind(req.Kind)
	if kind == "" {
		kind = fleet.AliasHardware
	}

	system, err := h.service.ConfirmAlias(r.Context(), id, kind, req.Alias)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toView(*system))
}
