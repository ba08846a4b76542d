package fleet

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing system.
var ErrNotFound = errors.New("fleet: system not found")

// AliasKind distinguishes the two identifier families a system can claim.
type AliasKind string

const (
	AliasHardware AliasKind = "hardware"
	AliasDL       AliasKind = "dl"
)

// System represents one registered battery installation. The alias lists
// carry identifiers in normalized form; the registry index treats every
// alias of either kind as a claim on that identifier.
type System struct {
	ID                    string
	TenantID              string
	Name                  string
	AssociatedHardwareIDs []string
	AssociatedDLs         []string
	// Voltage is the nominal voltage class in volts when known.
	Voltage   *float64
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks system invariants.
func (s System) Validate() error {
	if s.ID == "" {
		return errors.New("system: empty id")
	}
	if s.TenantID == "" {
		return errors.New("system: empty tenant id")
	}
	if s.Name == "" {
		return errors.New("system: empty name")
	}
	if s.Voltage != nil && *s.Voltage <= 0 {
		return errors.New("system: voltage must be positive")
	}
	return nil
}

// AddAlias appends a normalized identifier to the list for kind, skipping
// duplicates. Reports whether the alias was new.
func (s *System) AddAlias(kind AliasKind, alias string) (bool, error) {
	if alias == "" {
		return false, errors.New("system: empty alias")
	}
	switch kind {
	case AliasHardware:
		if containsAlias(s.AssociatedHardwareIDs, alias) {
			return false, nil
		}
		s.AssociatedHardwareIDs = append(s.AssociatedHardwareIDs, alias)
		return true, nil
	case AliasDL:
		if containsAlias(s.AssociatedDLs, alias) {
			return false, nil
		}
		s.AssociatedDLs = append(s.AssociatedDLs, alias)
		return true, nil
	default:
		return false, errors.New("system: unknown alias kind")
	}
}

func containsAlias(list []string, alias string) bool {
	for _, existing := range list {
		if existing == alias {
			return true
		}
	}
	return false
}

// SystemRepository manages system persistence. Get returns (nil, nil) for a
// missing id.
type SystemRepository interface {
	Get(ctx context.Context, id string) (*System, error)
	List(ctx context.Context, tenantID string) ([]System, error)
	Save(ctx context.Context, system *System) error
}
