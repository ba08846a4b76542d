package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	fleet "bms-cloud/internal/fleet/domain"
)

type stubSystemRepo struct {
	systems map[string]*fleet.System
	saves   int
}

func newStubSystemRepo() *stubSystemRepo {
	return &stubSystemRepo{systems: make(map[string]*fleet.System)}
}

func (r *stubSystemRepo) Get(_ context.Context, id string) (*fleet.System, error) {
	system, ok := r.systems[id]
	if !ok {
		return nil, nil
	}
	copied := *system
	return &copied, nil
}

func (r *stubSystemRepo) List(_ context.Context, tenantID string) ([]fleet.System, error) {
	var result []fleet.System
	for _, system := range r.systems {
		if tenantID == "" || system.TenantID == tenantID {
			result = append(result, *system)
		}
	}
	return result, nil
}

func (r *stubSystemRepo) Save(_ context.Context, system *fleet.System) error {
	copied := *system
	r.systems[system.ID] = &copied
	r.saves++
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func TestRegisterSystemNormalizesAliases(t *testing.T) {
	repo := newStubSystemRepo()
	service, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	system, err := service.RegisterSystem(context.Background(), RegisterInput{
		TenantID:    "tenant-1",
		Name:        "Alpha Rack",
		HardwareIDs: []string{"abc_12345", "ABC-12345", "N/A"},
		DLNumbers:   []string{"dl 123456"},
	})
	if err != nil {
		t.Fatalf("RegisterSystem: %v", err)
	}
	if system.ID == "" {
		t.Fatalf("expected generated id")
	}
	if len(system.AssociatedHardwareIDs) != 1 || system.AssociatedHardwareIDs[0] != "ABC-12345" {
		t.Fatalf("hardware aliases = %v", system.AssociatedHardwareIDs)
	}
	if len(system.AssociatedDLs) != 1 || system.AssociatedDLs[0] != "DL-123456" {
		t.Fatalf("dl aliases = %v", system.AssociatedDLs)
	}
}

func TestRegisterSystemValidates(t *testing.T) {
	service, err := NewService(newStubSystemRepo(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := service.RegisterSystem(context.Background(), RegisterInput{Name: "no tenant"}); err == nil {
		t.Fatalf("expected validation error for missing tenant")
	}
}

func TestConfirmAlias(t *testing.T) {
	repo := newStubSystemRepo()
	repo.systems["sys-1"] = &fleet.System{ID: "sys-1", TenantID: "tenant-1", Name: "Alpha"}
	service, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	system, err := service.ConfirmAlias(context.Background(), "sys-1", fleet.AliasHardware, "qqq 54321")
	if err != nil {
		t.Fatalf("ConfirmAlias: %v", err)
	}
	if len(system.AssociatedHardwareIDs) != 1 || system.AssociatedHardwareIDs[0] != "QQQ-54321" {
		t.Fatalf("aliases = %v", system.AssociatedHardwareIDs)
	}

	// Confirming the same alias again must not write.
	saves := repo.saves
	if _, err := service.ConfirmAlias(context.Background(), "sys-1", fleet.AliasHardware, "QQQ-54321"); err != nil {
		t.Fatalf("ConfirmAlias repeat: %v", err)
	}
	if repo.saves != saves {
		t.Fatalf("duplicate alias must be a no-op, saves %d -> %d", saves, repo.saves)
	}
}

func TestConfirmAliasErrors(t *testing.T) {
	service, err := NewService(newStubSystemRepo(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := service.ConfirmAlias(context.Background(), "missing", fleet.AliasHardware, "ABC-12345"); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	repo := newStubSystemRepo()
	repo.systems["sys-1"] = &fleet.System{ID: "sys-1", TenantID: "tenant-1", Name: "Alpha"}
	service, _ = NewService(repo, testLogger())
	if _, err := service.ConfirmAlias(context.Background(), "sys-1", fleet.AliasHardware, "n/a"); err == nil {
		t.Fatalf("placeholder alias must be rejected")
	}
}

func TestMatcherSystemsProjection(t *testing.T) {
	repo := newStubSystemRepo()
	voltage := 48.0
	repo.systems["sys-1"] = &fleet.System{
		ID:                    "sys-1",
		TenantID:              "tenant-1",
		Name:                  "Alpha",
		AssociatedHardwareIDs: []string{"ABC-12345"},
		Voltage:               &voltage,
	}
	service, err := NewService(repo, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	view, err := service.MatcherSystems(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("MatcherSystems: %v", err)
	}
	if len(view) != 1 || view[0].ID != "sys-1" || view[0].Voltage == nil || *view[0].Voltage != 48 {
		t.Fatalf("projection = %+v", view)
	}
}
