package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	review "bms-cloud/internal/review/domain"
)

func queueFixture() []review.Item {
	return []review.Item{
		{
			ID:           "review-1",
			TenantID:     "tenant-1",
			SnapshotID:   "snap-1",
			Status:       review.StatusOpen,
			Kind:         "ambiguous",
			Reason:       "fuzzy distance tie",
			CandidateIDs: []string{"sys-1", "sys-2"},
			CreatedAt:    time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			ID:         "review-2",
			TenantID:   "tenant-1",
			SnapshotID: "snap-2",
			Status:     review.StatusOpen,
			Kind:       "new_candidate",
			Reason:     "valid new hardware id",
			MatchedID:  "QQQ-54321",
			CreatedAt:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestBuildQueueXLSX(t *testing.T) {
	payload, err := BuildQueueXLSX(queueFixture(), time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildQueueXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("queue", "A2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if got != "review-1" {
		t.Fatalf("A2 = %q", got)
	}
	got, err = f.GetCellValue("queue", "D3")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if got != "new_candidate" {
		t.Fatalf("D3 = %q", got)
	}
}

func TestBuildQueuePDF(t *testing.T) {
	payload, err := BuildQueuePDF(queueFixture(), time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildQueuePDF: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("not a pdf: % x", payload[:8])
	}
}
