package records

import (
	"context"
	"errors"
	"time"

	associator "bms-cloud/internal/associator/domain"
)

// ErrNotFound reports a missing snapshot.
var ErrNotFound = errors.New("records: snapshot not found")

// Snapshot is one extracted screenshot record together with its association
// outcome. Extracted carries the raw field union exactly as the vision
// extractor produced it; the outcome is written once resolution runs.
type Snapshot struct {
	ID         string
	TenantID   string
	Source     string
	CapturedAt time.Time
	Extracted  associator.RecordInput
	Outcome    *Outcome
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks snapshot invariants.
func (s Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot: empty id")
	}
	if s.TenantID == "" {
		return errors.New("snapshot: empty tenant id")
	}
	if s.CapturedAt.IsZero() {
		return errors.New("snapshot: zero captured_at")
	}
	return nil
}

// Associated reports whether an outcome has been recorded.
func (s Snapshot) Associated() bool {
	return s.Outcome != nil && s.Outcome.Status != ""
}

// Outcome is the persisted form of one match result.
type Outcome struct {
	SystemID       string
	SystemName     string
	Status         string
	Reason         string
	Confidence     string
	IsNewCandidate bool
	MatchedID      string
	FuzzyOriginal  string
	CandidateIDs   []string
	AssociatedAt   time.Time
}

// OutcomeFromMatch converts a match result into its persisted form.
func OutcomeFromMatch(result associator.MatchResult, at time.Time) Outcome {
	return Outcome{
		SystemID:       result.SystemID,
		SystemName:     result.SystemName,
		Status:         result.Status,
		Reason:         result.Reason,
		Confidence:     result.Confidence,
		IsNewCandidate: result.IsNewCandidate,
		MatchedID:      result.MatchedID,
		FuzzyOriginal:  result.FuzzyOriginal,
		CandidateIDs:   result.CandidateIDs,
		AssociatedAt:   at.UTC(),
	}
}

// SnapshotRepository persists snapshots and their outcomes. Get returns
// (nil, nil) for a missing id.
type SnapshotRepository interface {
	Insert(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	ListUnassociated(ctx context.Context, tenantID string, limit int) ([]Snapshot, error)
	ListWindow(ctx context.Context, tenantID string, from, to time.Time) ([]Snapshot, error)
	UpdateOutcome(ctx context.Context, id string, outcome Outcome) error
}

// HistoryQuery derives the per-system rolling stats the validator and the
// physics tier consume from previously accepted snapshots.
type HistoryQuery interface {
	StatsBySystem(ctx context.Context, tenantID string) (map[string]associator.SystemStats, error)
}
