package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	associator "bms-cloud/internal/associator/domain"
	"bms-cloud/internal/observability/metrics"
	"bms-cloud/internal/records/application/events"
	records "bms-cloud/internal/records/domain"
)

const defaultBatchLimit = 500

// SystemProvider supplies the registry view the matcher consumes.
type SystemProvider interface {
	MatcherSystems(ctx context.Context, tenantID string) ([]associator.System, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// AssociationService stores snapshots and resolves them against the current
// registry. One matcher is built per batch so every record in the batch sees
// the same registry state.
type AssociationService struct {
	snapshots  records.SnapshotRepository
	history    records.HistoryQuery
	fleet      SystemProvider
	bus        EventPublisher
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
	thresholds associator.Thresholds
}

// Option configures the service.
type Option func(*AssociationService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AssociationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithThresholds overrides the matcher thresholds.
func WithThresholds(t associator.Thresholds) Option {
	return func(s *AssociationService) {
		s.thresholds = t
	}
}

// NewAssociationService constructs the service.
func NewAssociationService(
	snapshots records.SnapshotRepository,
	history records.HistoryQuery,
	fleet SystemProvider,
	bus EventPublisher,
	logger *log.Logger,
	opts ...Option,
) (*AssociationService, error) {
	if snapshots == nil {
		return nil, errors.New("association service: nil snapshot repository")
	}
	if history == nil {
		return nil, errors.New("association service: nil history query")
	}
	if fleet == nil {
		return nil, errors.New("association service: nil system provider")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &AssociationService{
		snapshots:  snapshots,
		history:    history,
		fleet:      fleet,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		thresholds: associator.DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Matcher builds a matcher over the current registry and history for a
// tenant. The backfill job uses this to re-run old snapshots.
func (s *AssociationService) Matcher(ctx context.Context, tenantID string) (*associator.Associator, error) {
	systems, err := s.fleet.MatcherSystems(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats, err := s.history.StatsBySystem(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return associator.NewAssociator(systems, stats, associator.WithThresholds(s.thresholds))
}

// IngestSnapshot stores a freshly extracted snapshot and resolves it
// immediately.
func (s *AssociationService) IngestSnapshot(ctx context.Context, snapshot *records.Snapshot) (associator.MatchResult, error) {
	if s == nil || snapshot == nil {
		return associator.MatchResult{}, errors.New("association service: nil snapshot")
	}
	if snapshot.ID == "" {
		snapshot.ID = s.newID()
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = snapshot.Extracted.Timestamp
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = s.now().UTC()
	}
	if err := snapshot.Validate(); err != nil {
		return associator.MatchResult{}, err
	}
	if err := s.snapshots.Insert(ctx, snapshot); err != nil {
		return associator.MatchResult{}, err
	}
	s.publish(ctx, events.RecordExtracted{
		EventID:    s.newID(),
		TenantID:   snapshot.TenantID,
		SnapshotID: snapshot.ID,
		Source:     snapshot.Source,
		OccurredAt: s.now().UTC(),
	})

	matcher, err := s.Matcher(ctx, snapshot.TenantID)
	if err != nil {
		return associator.MatchResult{}, err
	}
	return s.resolve(ctx, matcher, snapshot)
}

// BatchSummary reports one association batch run.
type BatchSummary struct {
	Total    int            `json:"total"`
	Accepted int            `json:"accepted"`
	Review   int            `json:"review"`
	ByStatus map[string]int `json:"by_status"`
}

// AssociateBatch resolves stored snapshots that have no outcome yet.
func (s *AssociationService) AssociateBatch(ctx context.Context, tenantID string, limit int) (BatchSummary, error) {
	summary := BatchSummary{ByStatus: make(map[string]int)}
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	matcher, err := s.Matcher(ctx, tenantID)
	if err != nil {
		metrics.IncAssociationBatch(metrics.ResultError)
		return summary, err
	}
	pending, err := s.snapshots.ListUnassociated(ctx, tenantID, limit)
	if err != nil {
		metrics.IncAssociationBatch(metrics.ResultError)
		return summary, err
	}

	for i := range pending {
		snapshot := pending[i]
		result, err := s.resolve(ctx, matcher, &snapshot)
		if err != nil {
			metrics.IncAssociationBatch(metrics.ResultError)
			return summary, err
		}
		summary.Total++
		summary.ByStatus[result.Status]++
		if result.Accepted() {
			summary.Accepted++
		}
		if result.NeedsReview() {
			summary.Review++
		}
	}

	metrics.IncAssociationBatch(metrics.ResultSuccess)
	s.logger.Printf("records: associated batch tenant=%s total=%d accepted=%d review=%d",
		tenantID, summary.Total, summary.Accepted, summary.Review)
	return summary, nil
}

// resolve runs one snapshot through the matcher and persists the outcome.
func (s *AssociationService) resolve(ctx context.Context, matcher *associator.Associator, snapshot *records.Snapshot) (associator.MatchResult, error) {
	started := s.now()
	result := matcher.FindMatch(snapshot.Extracted)

	outcome := records.OutcomeFromMatch(result, s.now())
	if err := s.snapshots.UpdateOutcome(ctx, snapshot.ID, outcome); err != nil {
		metrics.ObserveAssociation(metrics.ResultError, s.now().Sub(started))
		return result, err
	}
	snapshot.Outcome = &outcome

	metrics.IncAssociationOutcome(result.Status, result.Confidence)
	metrics.ObserveAssociation(metrics.ResultSuccess, s.now().Sub(started))

	s.publish(ctx, events.RecordAssociated{
		EventID:    s.newID(),
		TenantID:   snapshot.TenantID,
		SnapshotID: snapshot.ID,
		SystemID:   result.SystemID,
		Status:     result.Status,
		Reason:     result.Reason,
		Confidence: result.Confidence,
		OccurredAt: outcome.AssociatedAt,
	})
	if result.NeedsReview() {
		s.publish(ctx, events.NewSystemCandidate{
			EventID:      s.newID(),
			TenantID:     snapshot.TenantID,
			SnapshotID:   snapshot.ID,
			Status:       result.Status,
			Reason:       result.Reason,
			CandidateIDs: result.CandidateIDs,
			MatchedID:    result.MatchedID,
			OccurredAt:   outcome.AssociatedAt,
		})
	}
	return result, nil
}

func (s *AssociationService) publish(ctx context.Context, event any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Printf("records: publish event: %v", err)
	}
}
