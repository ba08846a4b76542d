package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	associator "bms-cloud/internal/associator/domain"
	"bms-cloud/internal/extraction"
	"bms-cloud/internal/observability/metrics"
	recordsapp "bms-cloud/internal/records/application"
	records "bms-cloud/internal/records/domain"
)

const maxUploadBytes = 10 << 20

// Extractor turns a screenshot into the extracted record fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte, filename string) (associator.RecordInput, error)
}

// Handler ingests BMS screenshots: the upload goes through the vision
// extractor, the extracted record is stored and resolved in one pass.
type Handler struct {
	extractor Extractor
	service   *recordsapp.AssociationService
	logger    *log.Logger
	tenantID  string
}

// NewHandler constructs an ingest handler. tenantID is the fallback when the
// request carries no tenant.
func NewHandler(extractor Extractor, service *recordsapp.AssociationService, tenantID string, logger *log.Logger) (*Handler, error) {
	if extractor == nil {
		return nil, errors.New("ingest handler: nil extractor")
	}
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{extractor: extractor, service: service, logger: logger, tenantID: tenantID}, nil
}

type ingestResponse struct {
	SnapshotID string                 `json:"snapshot_id"`
	Result     associator.MatchResult `json:"result"`
}

// ServeHTTP handles POST /ingest/v1/screenshots (multipart upload) and
// POST /ingest/v1/records (pre-extracted JSON record).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/ingest/v1/screenshots":
		h.handleScreenshot(w, r)
	case "/ingest/v1/records":
		h.handleRecord(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, started, "bad_multipart", "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("screenshot")
	if err != nil {
		h.fail(w, started, "missing_file", "screenshot file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.fail(w, started, "read_file", "read upload error", http.StatusBadRequest)
		return
	}

	extracted, err := h.extractor.Extract(r.Context(), image, header.Filename)
	if err != nil {
		h.logger.Printf("ingest: extract %s: %v", header.Filename, err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, extraction.ErrExtractorUnavailable) {
			status = http.StatusBadGateway
		}
		h.fail(w, started, "extract", "extraction failed", status)
		return
	}

	h.store(w, r, started, extracted, header.Filename)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var extracted associator.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&extracted); err != nil {
		h.fail(w, started, "bad_json", "invalid json body", http.StatusBadRequest)
		return
	}
	h.store(w, r, started, extracted, "record")
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request, started time.Time, extracted associator.RecordInput, source string) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = h.tenantID
	}

	snapshot := &records.Snapshot{
		TenantID:  tenantID,
		Source:    source,
		Extracted: extracted,
	}
	result, err := h.service.IngestSnapshot(r.Context(), snapshot)
	if err != nil {
		h.logger.Printf("ingest: store snapshot: %v", err)
		h.fail(w, started, "store", "store snapshot error", http.StatusInternalServerError)
		return
	}

	metrics.ObserveIngest(metrics.IngestResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ingestResponse{SnapshotID: snapshot.ID, Result: result})
}

func (h *Handler) fail(w http.ResponseWriter, started time.Time, reason, message string, status int) {
	metrics.ObserveIngest(metrics.IngestResultError, time.Since(started))
	metrics.IncIngestError(reason)
	http.Error(w, message, status)
}
