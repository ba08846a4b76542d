package application

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	associator "bms-cloud/internal/associator/domain"
	"bms-cloud/internal/records/application/events"
	records "bms-cloud/internal/records/domain"
)

type stubSnapshotRepo struct {
	inserted []records.Snapshot
	outcomes map[string]records.Outcome
	pending  []records.Snapshot
}

func newStubSnapshotRepo() *stubSnapshotRepo {
	return &stubSnapshotRepo{outcomes: make(map[string]records.Outcome)}
}

func (r *stubSnapshotRepo) Insert(_ context.Context, snapshot *records.Snapshot) error {
	r.inserted = append(r.inserted, *snapshot)
	return nil
}

func (r *stubSnapshotRepo) Get(_ context.Context, id string) (*records.Snapshot, error) {
	for i := range r.inserted {
		if r.inserted[i].ID == id {
			copied := r.inserted[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *stubSnapshotRepo) ListUnassociated(_ context.Context, _ string, _ int) ([]records.Snapshot, error) {
	return append([]records.Snapshot(nil), r.pending...), nil
}

func (r *stubSnapshotRepo) ListWindow(_ context.Context, _ string, _, _ time.Time) ([]records.Snapshot, error) {
	return nil, nil
}

func (r *stubSnapshotRepo) UpdateOutcome(_ context.Context, id string, outcome records.Outcome) error {
	r.outcomes[id] = outcome
	return nil
}

type stubFleet struct {
	systems []associator.System
}

func (f *stubFleet) MatcherSystems(_ context.Context, _ string) ([]associator.System, error) {
	return f.systems, nil
}

type stubHistory struct {
	stats map[string]associator.SystemStats
}

func (h *stubHistory) StatsBySystem(_ context.Context, _ string) (map[string]associator.SystemStats, error) {
	return h.stats, nil
}

type captureBus struct {
	published []any
}

func (b *captureBus) Publish(_ context.Context, event any) error {
	b.published = append(b.published, event)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestService(t *testing.T, repo *stubSnapshotRepo, bus *captureBus) *AssociationService {
	t.Helper()
	voltage := 48.0
	fleet := &stubFleet{systems: []associator.System{
		{ID: "sys-1", Name: "Alpha Rack", Voltage: &voltage, AssociatedHardwareIDs: []string{"ABC-12345"}},
	}}
	history := &stubHistory{stats: map[string]associator.SystemStats{}}
	service, err := NewAssociationService(repo, history, fleet, bus,
		log.New(os.Stderr, "test ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewAssociationService: %v", err)
	}
	return service
}

func TestIngestSnapshotResolvesAndPublishes(t *testing.T) {
	repo := newStubSnapshotRepo()
	bus := &captureBus{}
	service := newTestService(t, repo, bus)

	snapshot := &records.Snapshot{
		TenantID: "tenant-1",
		Source:   "upload",
		Extracted: associator.RecordInput{
			HardwareSystemID: "ABC-12345",
			OverallVoltage:   floatPtr(49),
			Timestamp:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
	}
	result, err := service.IngestSnapshot(context.Background(), snapshot)
	if err != nil {
		t.Fatalf("IngestSnapshot: %v", err)
	}
	if result.Status != associator.StatusMatchedStrict || result.SystemID != "sys-1" {
		t.Fatalf("result = %+v", result)
	}
	if snapshot.ID == "" {
		t.Fatalf("expected generated snapshot id")
	}
	outcome, ok := repo.outcomes[snapshot.ID]
	if !ok || outcome.Status != associator.StatusMatchedStrict {
		t.Fatalf("outcome not persisted: %+v", outcome)
	}

	var extracted, associated bool
	for _, event := range bus.published {
		switch event.(type) {
		case events.RecordExtracted:
			extracted = true
		case events.RecordAssociated:
			associated = true
		case events.NewSystemCandidate:
			t.Fatalf("accepted match must not raise a candidate event")
		}
	}
	if !extracted || !associated {
		t.Fatalf("events published = %T", bus.published)
	}
}

func TestIngestSnapshotNewCandidateRaisesEvent(t *testing.T) {
	repo := newStubSnapshotRepo()
	bus := &captureBus{}
	service := newTestService(t, repo, bus)

	_, err := service.IngestSnapshot(context.Background(), &records.Snapshot{
		TenantID: "tenant-1",
		Extracted: associator.RecordInput{
			HardwareSystemID: "QQQ-54321",
			Timestamp:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("IngestSnapshot: %v", err)
	}

	var candidate *events.NewSystemCandidate
	for _, event := range bus.published {
		if c, ok := event.(events.NewSystemCandidate); ok {
			candidate = &c
		}
	}
	if candidate == nil {
		t.Fatalf("expected NewSystemCandidate event")
	}
	if candidate.Status != associator.StatusNewCandidate {
		t.Fatalf("candidate status = %s", candidate.Status)
	}
	if len(candidate.CandidateIDs) != 1 || candidate.CandidateIDs[0] != "QQQ-54321" {
		t.Fatalf("candidate ids = %v", candidate.CandidateIDs)
	}
}

func TestAssociateBatch(t *testing.T) {
	repo := newStubSnapshotRepo()
	bus := &captureBus{}
	service := newTestService(t, repo, bus)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo.pending = []records.Snapshot{
		{
			ID: "snap-1", TenantID: "tenant-1", CapturedAt: base,
			Extracted: associator.RecordInput{HardwareSystemID: "ABC-12345", OverallVoltage: floatPtr(49), Timestamp: base},
		},
		{
			ID: "snap-2", TenantID: "tenant-1", CapturedAt: base,
			Extracted: associator.RecordInput{HardwareSystemID: "QQQ-54321", Timestamp: base},
		},
		{
			ID: "snap-3", TenantID: "tenant-1", CapturedAt: base,
			Extracted: associator.RecordInput{Timestamp: base},
		},
	}

	summary, err := service.AssociateBatch(context.Background(), "tenant-1", 0)
	if err != nil {
		t.Fatalf("AssociateBatch: %v", err)
	}
	if summary.Total != 3 || summary.Accepted != 1 || summary.Review != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ByStatus[associator.StatusMatchedStrict] != 1 ||
		summary.ByStatus[associator.StatusNewCandidate] != 1 ||
		summary.ByStatus[associator.StatusNoID] != 1 {
		t.Fatalf("by status = %v", summary.ByStatus)
	}
	if len(repo.outcomes) != 3 {
		t.Fatalf("outcomes persisted = %d", len(repo.outcomes))
	}
}
