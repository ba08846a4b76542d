package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	associator "bms-cloud/internal/associator/domain"
	fleet "bms-cloud/internal/fleet/domain"
)

// Service provides fleet administration commands: registering systems and
// confirming identifier aliases promoted out of the review queue.
type Service struct {
	repo   fleet.SystemRepository
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the system id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs a fleet service.
func NewService(repo fleet.SystemRepository, logger *log.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("fleet service: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput carries the fields of a system registration request.
type RegisterInput struct {
	ID          string
	TenantID    string
	Name        string
	HardwareIDs []string
	DLNumbers   []string
	Voltage     *float64
	Notes       string
}

// RegisterSystem creates or updates a system. Raw identifiers are normalized
// before they are stored so registry claims always compare in canonical form;
// placeholder identifiers are dropped.
func (s *Service) RegisterSystem(ctx context.Context, input RegisterInput) (*fleet.System, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("fleet service: not initialized")
	}

	system := &fleet.System{
		ID:       input.ID,
		TenantID: input.TenantID,
		Name:     input.Name,
		Voltage:  input.Voltage,
		Notes:    input.Notes,
	}
	if system.ID == "" {
		system.ID = s.newID()
	}
	for _, raw := range input.HardwareIDs {
		if id := associator.NormalizeHardwareID(raw); id != associator.UnknownID {
			_, _ = system.AddAlias(fleet.AliasHardware, id)
		}
	}
	for _, raw := range input.DLNumbers {
		if id := associator.NormalizeHardwareID(raw); id != associator.UnknownID {
			_, _ = system.AddAlias(fleet.AliasDL, id)
		}
	}
	if err := system.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, system); err != nil {
		return nil, err
	}
	s.logger.Printf("fleet: registered system %s (%s)", system.ID, system.Name)
	return system, nil
}

// ConfirmAlias binds a normalized identifier to an existing system. This is
// the operator action that accepts a new-candidate review item.
func (s *Service) ConfirmAlias(ctx context.Context, systemID string, kind fleet.AliasKind, rawAlias string) (*fleet.System, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("fleet service: not initialized")
	}
	if systemID == "" {
		return nil, errors.New("fleet service: empty system id")
	}

	alias := associator.NormalizeHardwareID(rawAlias)
	if alias == associator.UnknownID {
		return nil, errors.New("fleet service: alias normalizes to unknown")
	}

	system, err := s.repo.Get(ctx, systemID)
	if err != nil {
		return nil, err
	}
	if system == nil {
		return nil, fleet.ErrNotFound
	}

	added, err := system.AddAlias(kind, alias)
	if err != nil {
		return nil, err
	}
	if !added {
		return system, nil
	}
	if err := s.repo.Save(ctx, system); err != nil {
		return nil, err
	}
	s.logger.Printf("fleet: confirmed %s alias %s on system %s", kind, alias, system.ID)
	return system, nil
}

// GetSystem loads one system.
func (s *Service) GetSystem(ctx context.Context, id string) (*fleet.System, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("fleet service: not initialized")
	}
	system, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if system == nil {
		return nil, fleet.ErrNotFound
	}
	return system, nil
}

// ListSystems lists systems, scoped to a tenant when tenantID is non-empty.
func (s *Service) ListSystems(ctx context.Context, tenantID string) ([]fleet.System, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("fleet service: not initialized")
	}
	return s.repo.List(ctx, tenantID)
}

// MatcherSystems projects the registry into the view the matcher consumes.
func (s *Service) MatcherSystems(ctx context.Context, tenantID string) ([]associator.System, error) {
	systems, err := s.ListSystems(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	view := make([]associator.System, 0, len(systems))
	for _, system := range systems {
		view = append(view, associator.System{
			ID:                    system.ID,
			Name:                  system.Name,
			AssociatedHardwareIDs: system.AssociatedHardwareIDs,
			AssociatedDLs:         system.AssociatedDLs,
			Voltage:               system.Voltage,
		})
	}
	return view, nil
}
