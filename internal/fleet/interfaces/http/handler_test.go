package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	fleetapp "bms-cloud/internal/fleet/application"
	fleet "bms-cloud/internal/fleet/domain"
)

type memorySystemRepo struct {
	systems map[string]*fleet.System
}

func (r *memorySystemRepo) Get(_ context.Context, id string) (*fleet.System, error) {
	system, ok := r.systems[id]
	if !ok {
		return nil, nil
	}
	copied := *system
	return &copied, nil
}

func (r *memorySystemRepo) List(_ context.Context, tenantID string) ([]fleet.System, error) {
	var result []fleet.System
	for _, system := range r.systems {
		if tenantID == "" || system.TenantID == tenantID {
			result = append(result, *system)
		}
	}
	return result, nil
}

func (r *memorySystemRepo) Save(_ context.Context, system *fleet.System) error {
	copied := *system
	r.systems[system.ID] = &copied
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memorySystemRepo) {
	t.Helper()
	repo := &memorySystemRepo{systems: make(map[string]*fleet.System)}
	service, err := fleetapp.NewService(repo, log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	handler, err := NewHandler(service)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler, repo
}

func TestHandlerRegisterAndGet(t *testing.T) {
	handler, _ := newTestHandler(t)

	body := `{"tenant_id":"tenant-1","name":"Alpha Rack","hardware_ids":["abc_12345"],"voltage":48}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/systems", strings.NewReader(body)))
	if rec.Code != 201 {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var created systemView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.HardwareIDs) != 1 || created.HardwareIDs[0] != "ABC-12345" {
		t.Fatalf("hardware ids = %v", created.HardwareIDs)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/systems/"+created.ID, nil))
	if rec.Code != 200 {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestHandlerConfirmAlias(t *testing.T) {
	handler, repo := newTestHandler(t)
	repo.systems["sys-1"] = &fleet.System{ID: "sys-1", TenantID: "tenant-1", Name: "Alpha"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/systems/sys-1/aliases",
		strings.NewReader(`{"alias":"qqq 54321","kind":"hardware"}`)))
	if rec.Code != 200 {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	var view systemView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.HardwareIDs) != 1 || view.HardwareIDs[0] != "QQQ-54321" {
		t.Fatalf("hardware ids = %v", view.HardwareIDs)
	}
}

func TestHandlerNotFoundAndMethods(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/systems/missing", nil))
	if rec.Code != 404 {
		t.Fatalf("missing system status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/systems", nil))
	if rec.Code != 405 {
		t.Fatalf("bad method status = %d", rec.Code)
	}
}
