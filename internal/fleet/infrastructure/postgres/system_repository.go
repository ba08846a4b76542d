package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fleet "bms-cloud/internal/fleet/domain"
)

const defaultSystemsTable = "systems"

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SystemRepository is a Postgres implementation for systems. Alias lists are
// stored as JSONB arrays.
type SystemRepository struct {
	db    DBTX
	table string
}

// NewSystemRepository constructs a repository.
func NewSystemRepository(db DBTX, opts ...SystemOption) *SystemRepository {
	repo := &SystemRepository{db: db, table: defaultSystemsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// SystemOption configures the repository.
type SystemOption func(*SystemRepository)

// WithSystemTable overrides the default table name.
func WithSystemTable(table string) SystemOption {
	return func(repo *SystemRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a system by id.
func (r *SystemRepository) Get(ctx context.Context, id string) (*fleet.System, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("system repo: nil db")
	}
	if id == "" {
		return nil, errors.New("system repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, hardware_ids, dl_numbers, voltage, notes, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	system, err := scanSystem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return system, nil
}

// List loads systems, filtered to a tenant when tenantID is non-empty.
func (r *SystemRepository) List(ctx context.Context, tenantID string) ([]fleet.System, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("system repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, hardware_ids, dl_numbers, voltage, notes, created_at, updated_at
FROM %s
WHERE ($1 = '' OR tenant_id = $1)
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fleet.System
	for rows.Next() {
		system, err := scanSystem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *system)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a system.
func (r *SystemRepository) Save(ctx context.Context, system *fleet.System) error {
	if r == nil || r.db == nil {
		return errors.New("system repo: nil db")
	}
	if system == nil {
		return errors.New("system repo: nil system")
	}
	if err := system.Validate(); err != nil {
		return err
	}

	hardwareIDs, err := json.Marshal(emptyIfNil(system.AssociatedHardwareIDs))
	if err != nil {
		return err
	}
	dlNumbers, err := json.Marshal(emptyIfNil(system.AssociatedDLs))
	if err != nil {
		return err
	}

	var voltage sql.NullFloat64
	if system.Voltage != nil {
		voltage = sql.NullFloat64{Float64: *system.Voltage, Valid: true}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	hardware_ids,
	dl_numbers,
	voltage,
	notes
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	hardware_ids = EXCLUDED.hardware_ids,
	dl_numbers = EXCLUDED.dl_numbers,
	voltage = EXCLUDED.voltage,
	notes = EXCLUDED.notes,
	updated_at = NOW()`, r.table)

	if _, err := r.db.ExecContext(
		ctx,
		query,
		system.ID,
		system.TenantID,
		system.Name,
		hardwareIDs,
		dlNumbers,
		voltage,
		system.Notes,
	); err != nil {
		return err
	}
	now := time.Now().UTC()
	if system.CreatedAt.IsZero() {
		system.CreatedAt = now
	}
	system.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystem(row rowScanner) (*fleet.System, error) {
	var (
		system      fleet.System
		hardwareIDs []byte
		dlNumbers   []byte
		voltage     sql.NullFloat64
	)
	if err := row.Scan(
		&system.ID,
		&system.TenantID,
		&system.Name,
		&hardwareIDs,
		&dlNumbers,
		&voltage,
		&system.Notes,
		&system.CreatedAt,
		&system.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(hardwareIDs) > 0 {
		if err := json.Unmarshal(hardwareIDs, &system.AssociatedHardwareIDs); err != nil {
			return nil, err
		}
	}
	if len(dlNumbers) > 0 {
		if err := json.Unmarshal(dlNumbers, &system.AssociatedDLs); err != nil {
			return nil, err
		}
	}
	if voltage.Valid {
		v := voltage.Float64
		system.Voltage = &v
	}
	system.CreatedAt = system.CreatedAt.UTC()
	system.UpdatedAt = system.UpdatedAt.UTC()
	return &system, nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
