package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"bms-cloud/internal/auth"
	fleet "bms-cloud/internal/fleet/domain"
	"bms-cloud/internal/observability/metrics"
	recordevents "bms-cloud/internal/records/application/events"
	review "bms-cloud/internal/review/domain"
)

// ReviewNotifier receives review queue lifecycle events.
type ReviewNotifier interface {
	Notify(ctx context.Context, event ReviewEvent)
}

// ReviewEvent represents a lifecycle update.
type ReviewEvent struct {
	Type string      `json:"type"`
	Item review.Item `json:"item"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// AliasConfirmer registers a reviewed identifier on a fleet system. The
// fleet application service satisfies it.
type AliasConfirmer interface {
	ConfirmAlias(ctx context.Context, systemID string, kind fleet.AliasKind, rawAlias string) (*fleet.System, error)
}

// Service manages the review queue: it opens items for outcomes that need
// an operator and applies the operator's decision.
type Service struct {
	items    review.ItemRepository
	fleet    AliasConfirmer
	checker  auth.SystemTenantChecker
	notifier ReviewNotifier
	clock    Clock
	logger   *log.Logger
	tenantID string
}

// ServiceOption customizes the review service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier ReviewNotifier) ServiceOption {
	return func(s *Service) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSystemChecker enables tenant ownership checks on the confirm target.
func WithSystemChecker(checker auth.SystemTenantChecker) ServiceOption {
	return func(s *Service) {
		if checker != nil {
			s.checker = checker
		}
	}
}

// WithDefaultTenant sets the tenant used when the context carries none.
func WithDefaultTenant(tenantID string) ServiceOption {
	return func(s *Service) {
		s.tenantID = tenantID
	}
}

// NewService constructs a review service.
func NewService(items review.ItemRepository, fleet AliasConfirmer, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if items == nil {
		return nil, errors.New("review service: nil item repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		items:  items,
		fleet:  fleet,
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfirmInput carries the operator decision for Confirm.
type ConfirmInput struct {
	SystemID  string
	AliasKind fleet.AliasKind
	Alias     string
}

// HandleCandidate opens a review item for a resolution outcome that needs
// an operator. A snapshot with an open item is not queued twice.
func (s *Service) HandleCandidate(ctx context.Context, event recordevents.NewSystemCandidate) error {
	if s == nil || s.items == nil {
		return errors.New("review service: not initialized")
	}
	if event.SnapshotID == "" {
		return errors.New("review service: empty snapshot id")
	}
	tenantID := event.TenantID
	if tenantID == "" {
		tenantID = s.tenantID
	}

	existing, err := s.items.FindOpenBySnapshot(ctx, tenantID, event.SnapshotID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := s.clock.Now().UTC()
	item := &review.Item{
		ID:           buildItemID(tenantID, event.SnapshotID, now),
		TenantID:     tenantID,
		SnapshotID:   event.SnapshotID,
		Status:       review.StatusOpen,
		Kind:         event.Status,
		Reason:       event.Reason,
		CandidateIDs: append([]string(nil), event.CandidateIDs...),
		MatchedID:    event.MatchedID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return err
	}
	s.logger.Printf("review: opened item %s for snapshot %s (%s)", item.ID, item.SnapshotID, item.Kind)
	s.notify(ctx, "opened", *item)
	return nil
}

// Confirm applies the operator's identity decision: the reviewed alias is
// registered on the chosen fleet system and the item is closed.
func (s *Service) Confirm(ctx context.Context, id string, input ConfirmInput) (*review.Item, error) {
	item, err := s.getOwned(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Open() {
		return nil, errors.New("review service: item already resolved")
	}
	if input.SystemID == "" {
		return nil, errors.New("review service: empty system id")
	}
	if s.checker != nil {
		if err := s.checker.EnsureSystemTenant(ctx, item.TenantID, input.SystemID); err != nil {
			return nil, err
		}
	}

	if s.fleet != nil && input.Alias != "" {
		kind := input.AliasKind
		if kind == "" {
			kind = fleet.AliasHardware
		}
		if _, err := s.fleet.ConfirmAlias(ctx, input.SystemID, kind, input.Alias); err != nil {
			return nil, err
		}
	}

	resolvedAt := s.clock.Now().UTC()
	if err := s.items.MarkConfirmed(ctx, item.ID, input.SystemID, resolvedAt); err != nil {
		return nil, err
	}
	item.Status = review.StatusConfirmed
	item.SystemID = input.SystemID
	item.ResolvedAt = resolvedAt
	item.UpdatedAt = resolvedAt
	s.notify(ctx, "confirmed", *item)
	return item, nil
}

// Dismiss closes the item without touching the fleet registry.
func (s *Service) Dismiss(ctx context.Context, id string) (*review.Item, error) {
	item, err := s.getOwned(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Open() {
		return nil, errors.New("review service: item already resolved")
	}

	resolvedAt := s.clock.Now().UTC()
	if err := s.items.MarkDismissed(ctx, item.ID, resolvedAt); err != nil {
		return nil, err
	}
	item.Status = review.StatusDismissed
	item.ResolvedAt = resolvedAt
	item.UpdatedAt = resolvedAt
	s.notify(ctx, "dismissed", *item)
	return item, nil
}

// GetItem returns one item, enforcing tenant ownership.
func (s *Service) GetItem(ctx context.Context, id string) (*review.Item, error) {
	return s.getOwned(ctx, id)
}

// ListItems lists items for the caller's tenant, optionally filtered by
// status. limit <= 0 applies the repository default.
func (s *Service) ListItems(ctx context.Context, status string, limit int) ([]review.Item, error) {
	if s == nil || s.items == nil {
		return nil, errors.New("review service: not initialized")
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return s.items.ListByStatus(ctx, tenantID, status, limit)
}

func (s *Service) getOwned(ctx context.Context, id string) (*review.Item, error) {
	if s == nil || s.items == nil {
		return nil, errors.New("review service: not initialized")
	}
	if id == "" {
		return nil, errors.New("review service: empty item id")
	}
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, review.ErrNotFound
	}
	tenantID := auth.TenantIDFromContext(ctx)
	if tenantID != "" && item.TenantID != "" && item.TenantID != tenantID {
		return nil, auth.ErrTenantMismatch
	}
	return item, nil
}

func (s *Service) notify(ctx context.Context, eventType string, item review.Item) {
	metrics.IncReviewItem(eventType)
	if s == nil || s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, ReviewEvent{Type: eventType, Item: item})
}

func buildItemID(tenantID, snapshotID string, createdAt time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + snapshotID + "|" + createdAt.Format(time.RFC3339Nano)))
	return "review-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
