package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	fleet "bms-cloud/internal/fleet/domain"
	recordevents "bms-cloud/internal/records/application/events"
	reviewapp "bms-cloud/internal/review/application"
	review "bms-cloud/internal/review/domain"
)

type memoryItemRepo struct {
	items map[string]*review.Item
}

func newMemoryItemRepo() *memoryItemRepo {
	return &memoryItemRepo{items: make(map[string]*review.Item)}
}

func (r *memoryItemRepo) Create(_ context.Context, item *review.Item) error {
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *memoryItemRepo) Get(_ context.Context, id string) (*review.Item, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (r *memoryItemRepo) FindOpenBySnapshot(_ context.Context, tenantID, snapshotID string) (*review.Item, error) {
	for _, item := range r.items {
		if item.TenantID == tenantID && item.SnapshotID == snapshotID && item.Open() {
			copied := *item
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryItemRepo) MarkConfirmed(_ context.Context, id, systemID string, resolvedAt time.Time) error {
	item, ok := r.items[id]
	if !ok {
		return review.ErrNotFound
	}
	item.Status = review.StatusConfirmed
	item.SystemID = systemID
	item.ResolvedAt = resolvedAt
	return nil
}

func (r *memoryItemRepo) MarkDismissed(_ context.Context, id string, resolvedAt time.Time) error {
	item, ok := r.items[id]
	if !ok {
		return review.ErrNotFound
	}
	item.Status = review.StatusDismissed
	item.ResolvedAt = resolvedAt
	return nil
}

func (r *memoryItemRepo) ListByStatus(_ context.Context, tenantID, status string, _ int) ([]review.Item, error) {
	var result []review.Item
	for _, item := range r.items {
		if tenantID != "" && item.TenantID != tenantID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		result = append(result, *item)
	}
	return result, nil
}

type acceptAllConfirmer struct{}

func (acceptAllConfirmer) ConfirmAlias(_ context.Context, systemID string, _ fleet.AliasKind, _ string) (*fleet.System, error) {
	return &fleet.System{ID: systemID}, nil
}

func newTestHandler(t *testing.T) (*Handler, *memoryItemRepo, *reviewapp.Service) {
	t.Helper()
	repo := newMemoryItemRepo()
	service, err := reviewapp.NewService(repo, acceptAllConfirmer{},
		log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	handler, err := NewHandler(service, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return handler, repo, service
}

func openTestItem(t *testing.T, service *reviewapp.Service, repo *memoryItemRepo) string {
	t.Helper()
	err := service.HandleCandidate(context.Background(), recordevents.NewSystemCandidate{
		TenantID:     "tenant-1",
		SnapshotID:   "snap-1",
		Status:       "new_candidate",
		Reason:       "valid new hardware id",
		CandidateIDs: []string{"QQQ-54321"},
	})
	if err != nil {
		t.Fatalf("HandleCandidate: %v", err)
	}
	for id := range repo.items {
		return id
	}
	t.Fatalf("no item created")
	return ""
}

func TestHandlerListAndConfirm(t *testing.T) {
	handler, repo, service := newTestHandler(t)
	itemID := openTestItem(t, service, repo)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/review?status=open", nil))
	if rec.Code != 200 {
		t.Fatalf("list status = %d", rec.Code)
	}
	var items []review.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].ID != itemID {
		t.Fatalf("items = %+v", items)
	}

	body := `{"system_id":"sys-1","alias_kind":"hardware","alias":"QQQ-54321"}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/review/"+itemID+"/confirm", strings.NewReader(body)))
	if rec.Code != 200 {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	var confirmed review.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &confirmed); err != nil {
		t.Fatalf("decode confirm: %v", err)
	}
	if confirmed.Status != review.StatusConfirmed || confirmed.SystemID != "sys-1" {
		t.Fatalf("confirmed = %+v", confirmed)
	}
}

func TestHandlerDismissAndGet(t *testing.T) {
	handler, repo, service := newTestHandler(t)
	itemID := openTestItem(t, service, repo)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/review/"+itemID+"/dismiss", nil))
	if rec.Code != 200 {
		t.Fatalf("dismiss status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/review/"+itemID, nil))
	if rec.Code != 200 {
		t.Fatalf("get status = %d", rec.Code)
	}
	var item review.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if item.Status != review.StatusDismissed {
		t.Fatalf("status = %s", item.Status)
	}
}

func TestHandlerExport(t *testing.T) {
	handler, repo, service := newTestHandler(t)
	openTestItem(t, service, repo)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/review/export?format=xlsx", nil))
	if rec.Code != 200 {
		t.Fatalf("xlsx status = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("empty xlsx body")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/review/export?format=pdf", nil))
	if rec.Code != 200 {
		t.Fatalf("pdf status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("content type = %s", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/review/export?format=csv", nil))
	if rec.Code != 400 {
		t.Fatalf("bad format status = %d", rec.Code)
	}
}

func TestHandlerErrors(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/review/missing/dismiss", nil))
	if rec.Code != 404 {
		t.Fatalf("missing item status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/review", nil))
	if rec.Code != 405 {
		t.Fatalf("bad method status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/review/x/unknown", nil))
	if rec.Code != 404 {
		t.Fatalf("unknown action status = %d", rec.Code)
	}
}
