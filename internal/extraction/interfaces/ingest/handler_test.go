package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	associator "bms-cloud/internal/associator/domain"
	recordsapp "bms-cloud/internal/records/application"
	records "bms-cloud/internal/records/domain"
)

type stubExtractor struct {
	input associator.RecordInput
	err   error
}

func (e *stubExtractor) Extract(_ context.Context, _ []byte, _ string) (associator.RecordInput, error) {
	return e.input, e.err
}

type memorySnapshotRepo struct {
	snapshots map[string]*records.Snapshot
}

func (r *memorySnapshotRepo) Insert(_ context.Context, snapshot *records.Snapshot) error {
	copied := *snapshot
	r.snapshots[snapshot.ID] = &copied
	return nil
}

func (r *memorySnapshotRepo) Get(_ context.Context, id string) (*records.Snapshot, error) {
	snapshot, ok := r.snapshots[id]
	if !ok {
		return nil, nil
	}
	copied := *snapshot
	return &copied, nil
}

func (r *memorySnapshotRepo) ListUnassociated(_ context.Context, _ string, _ int) ([]records.Snapshot, error) {
	return nil, nil
}

func (r *memorySnapshotRepo) ListWindow(_ context.Context, _ string, _, _ time.Time) ([]records.Snapshot, error) {
	return nil, nil
}

func (r *memorySnapshotRepo) UpdateOutcome(_ context.Context, id string, outcome records.Outcome) error {
	if snapshot, ok := r.snapshots[id]; ok {
		snapshot.Outcome = &outcome
	}
	return nil
}

type fixedFleet struct{}

func (fixedFleet) MatcherSystems(_ context.Context, _ string) ([]associator.System, error) {
	voltage := 48.0
	return []associator.System{
		{ID: "sys-1", Name: "Alpha Rack", Voltage: &voltage, AssociatedHardwareIDs: []string{"ABC-12345"}},
	}, nil
}

type emptyHistory struct{}

func (emptyHistory) StatsBySystem(_ context.Context, _ string) (map[string]associator.SystemStats, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, extractor Extractor) *Handler {
	t.Helper()
	repo := &memorySnapshotRepo{snapshots: make(map[string]*records.Snapshot)}
	service, err := recordsapp.NewAssociationService(repo, emptyHistory{}, fixedFleet{}, nil,
		log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewAssociationService: %v", err)
	}
	handler, err := NewHandler(extractor, service, "tenant-1", log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler
}

func multipartBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("screenshot", "panel.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte{0x89, 0x50, 0x4e, 0x47}); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHandlerScreenshot(t *testing.T) {
	voltage := 49.0
	handler := newTestHandler(t, &stubExtractor{input: associator.RecordInput{
		HardwareSystemID: "ABC-12345",
		OverallVoltage:   &voltage,
		Timestamp:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}})

	body, contentType := multipartBody(t)
	req := httptest.NewRequest("POST", "/ingest/v1/screenshots", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SnapshotID == "" {
		t.Fatalf("missing snapshot id")
	}
	if resp.Result.Status != associator.StatusMatchedStrict || resp.Result.SystemID != "sys-1" {
		t.Fatalf("result = %+v", resp.Result)
	}
}

func TestHandlerRecordJSON(t *testing.T) {
	handler := newTestHandler(t, &stubExtractor{})

	body := `{"hardwareSystemId":"QQQ-54321","timestamp":"2026-03-10T12:00:00Z"}`
	req := httptest.NewRequest("POST", "/ingest/v1/records", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result.Status != associator.StatusNewCandidate {
		t.Fatalf("result status = %s", resp.Result.Status)
	}
}

func TestHandlerErrors(t *testing.T) {
	handler := newTestHandler(t, &stubExtractor{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ingest/v1/screenshots", nil))
	if rec.Code != 405 {
		t.Fatalf("bad method status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/ingest/v1/records", strings.NewReader("not json")))
	if rec.Code != 400 {
		t.Fatalf("bad json status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/ingest/v1/unknown", nil))
	if rec.Code != 404 {
		t.Fatalf("unknown route status = %d", rec.Code)
	}
}
