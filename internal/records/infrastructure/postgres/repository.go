package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	associator "bms-cloud/internal/associator/domain"
	records "bms-cloud/internal/records/domain"
)

const defaultSnapshotsTable = "snapshots"

// SnapshotRepository is a Postgres implementation for snapshots. The raw
// extracted field union is stored as JSONB next to the flattened outcome
// columns the queries filter on.
type SnapshotRepository struct {
	db    *sql.DB
	table string
}

// NewSnapshotRepository constructs a repository.
func NewSnapshotRepository(db *sql.DB, opts ...RepositoryOption) *SnapshotRepository {
	repo := &SnapshotRepository{db: db, table: defaultSnapshotsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*SnapshotRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *SnapshotRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert writes a new snapshot with an empty outcome.
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *records.Snapshot) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	if snapshot == nil {
		return errors.New("snapshot repo: nil snapshot")
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	extracted, err := json.Marshal(snapshot.Extracted)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	source,
	captured_at,
	extracted,
	status
) VALUES (
	$1, $2, $3, $4, $5, ''
)
ON CONFLICT (id)
DO NOTHING`, r.table)

	if _, err := r.db.ExecContext(
		ctx,
		query,
		snapshot.ID,
		snapshot.TenantID,
		snapshot.Source,
		snapshot.CapturedAt.UTC(),
		extracted,
	); err != nil {
		return err
	}
	now := time.Now().UTC()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now
	return nil
}

const snapshotColumns = `id, tenant_id, source, captured_at, extracted,
	system_id, system_name, status, reason, confidence, is_new_candidate,
	matched_id, fuzzy_original, candidate_ids, associated_at,
	created_at, updated_at`

// Get loads one snapshot by id.
func (r *SnapshotRepository) Get(ctx context.Context, id string) (*records.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	if id == "" {
		return nil, errors.New("snapshot repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, snapshotColumns, r.table)

	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return snapshot, nil
}

// ListUnassociated returns snapshots without an outcome, oldest first.
func (r *SnapshotRepository) ListUnassociated(ctx context.Context, tenantID string, limit int) ([]records.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE status = ''
	AND ($1 = '' OR tenant_id = $1)
ORDER BY captured_at ASC
LIMIT $2`, snapshotColumns, r.table)

	return r.list(ctx, query, tenantID, limit)
}

// ListWindow returns snapshots captured within [from, to), oldest first.
func (r *SnapshotRepository) ListWindow(ctx context.Context, tenantID string, from, to time.Time) ([]records.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, errors.New("snapshot repo: invalid window")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE ($1 = '' OR tenant_id = $1)
	AND captured_at >= $2
	AND captured_at < $3
ORDER BY captured_at ASC`, snapshotColumns, r.table)

	return r.list(ctx, query, tenantID, from.UTC(), to.UTC())
}

// UpdateOutcome writes the association outcome for one snapshot.
func (r *SnapshotRepository) UpdateOutcome(ctx context.Context, id string, outcome records.Outcome) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	if id == "" {
		return errors.New("snapshot repo: empty id")
	}
	if outcome.Status == "" {
		return errors.New("snapshot repo: empty outcome status")
	}

	candidateIDs, err := json.Marshal(outcome.CandidateIDs)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
UPDATE %s
SET
	system_id = $2,
	system_name = $3,
	status = $4,
	reason = $5,
	confidence = $6,
	is_new_candidate = $7,
	matched_id = $8,
	fuzzy_original = $9,
	candidate_ids = $10,
	associated_at = $11,
	updated_at = NOW()
WHERE id = $1`, r.table)

	result, err := r.db.ExecContext(
		ctx,
		query,
		id,
		outcome.SystemID,
		outcome.SystemName,
		outcome.Status,
		outcome.Reason,
		outcome.Confidence,
		outcome.IsNewCandidate,
		outcome.MatchedID,
		outcome.FuzzyOriginal,
		candidateIDs,
		outcome.AssociatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return records.ErrNotFound
	}
	return nil
}

func (r *SnapshotRepository) list(ctx context.Context, query string, args ...any) ([]records.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []records.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*records.Snapshot, error) {
	var (
		snapshot     records.Snapshot
		extracted    []byte
		systemID     sql.NullString
		systemName   sql.NullString
		status       sql.NullString
		reason       sql.NullString
		confidence   sql.NullString
		newCandidate sql.NullBool
		matchedID    sql.NullString
		fuzzy        sql.NullString
		candidateIDs []byte
		associatedAt sql.NullTime
	)
	if err := row.Scan(
		&snapshot.ID,
		&snapshot.TenantID,
		&snapshot.Source,
		&snapshot.CapturedAt,
		&extracted,
		&systemID,
		&systemName,
		&status,
		&reason,
		&confidence,
		&newCandidate,
		&matchedID,
		&fuzzy,
		&candidateIDs,
		&associatedAt,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(extracted) > 0 {
		var input associator.RecordInput
		if err := json.Unmarshal(extracted, &input); err != nil {
			return nil, err
		}
		snapshot.Extracted = input
	}

	if status.Valid && status.String != "" {
		outcome := records.Outcome{
			SystemID:       systemID.String,
			SystemName:     systemName.String,
			Status:         status.String,
			Reason:         reason.String,
			Confidence:     confidence.String,
			IsNewCandidate: newCandidate.Bool,
			MatchedID:      matchedID.String,
			FuzzyOriginal:  fuzzy.String,
		}
		if len(candidateIDs) > 0 {
			if err := json.Unmarshal(candidateIDs, &outcome.CandidateIDs); err != nil {
				return nil, err
			}
		}
		if associatedAt.Valid {
			outcome.AssociatedAt = associatedAt.Time.UTC()
		}
		snapshot.Outcome = &outcome
	}

	snapshot.CapturedAt = snapshot.CapturedAt.UTC()
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	snapshot.UpdatedAt = snapshot.UpdatedAt.UTC()
	return &snapshot, nil
}
