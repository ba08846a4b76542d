package auth

import (
	"context"
	"database/sql"
	"errors"

	fleetrepo "bms-cloud/internal/fleet/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// SystemTenantChecker validates system tenant ownership.
type SystemTenantChecker interface {
	EnsureSystemTenant(ctx context.Context, tenantID, systemID string) error
}

// SystemChecker checks system ownership using the fleet registry.
type SystemChecker struct {
	repo *fleetrepo.SystemRepository
}

// NewSystemChecker constructs a SystemChecker.
func NewSystemChecker(db *sql.DB) *SystemChecker {
	if db == nil {
		return nil
	}
	return &SystemChecker{repo: fleetrepo.NewSystemRepository(db)}
}

// EnsureSystemTenant verifies the system belongs to the tenant.
func (c *SystemChecker) EnsureSystemTenant(ctx context.Context, tenantID, systemID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || systemID == "" {
		return nil
	}
	system, err := c.repo.Get(ctx, systemID)
	if err != nil {
		return err
	}
	if system == nil {
		return ErrNotFound
	}
	if system.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
