package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	review "bms-cloud/internal/review/domain"
)

const defaultItemsTable = "review_items"

const defaultListLimit = 200

// ItemRepository is a Postgres repository for review items.
type ItemRepository struct {
	db    *sql.DB
	table string
}

// NewItemRepository constructs a repository.
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db, table: defaultItemsTable}
}

// Create inserts a new item.
func (r *ItemRepository) Create(ctx context.Context, item *review.Item) error {
	if r == nil || r.db == nil {
		return errors.New("review repo: nil db")
	}
	if item == nil {
		return errors.New("review repo: nil item")
	}
	if item.ID == "" || item.SnapshotID == "" {
		return errors.New("review repo: missing fields")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	candidates, err := json.Marshal(item.CandidateIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO review_items (
	id, tenant_id, snapshot_id, system_id, status, kind, reason,
	candidate_ids, matched_id, created_at, updated_at, resolved_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12
)`,
		item.ID,
		item.TenantID,
		item.SnapshotID,
		item.SystemID,
		item.Status,
		item.Kind,
		item.Reason,
		candidates,
		item.MatchedID,
		item.CreatedAt,
		item.UpdatedAt,
		nullableTime(item.ResolvedAt),
	)
	return err
}

// Get fetches an item by id. Missing items return (nil, nil).
func (r *ItemRepository) Get(ctx context.Context, id string) (*review.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("review repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, snapshot_id, system_id, status, kind, reason,
	candidate_ids, matched_id, created_at, updated_at, resolved_at
FROM review_items
WHERE id = $1`, id)
	return scanItem(row)
}

// FindOpenBySnapshot returns the open item for a snapshot, if any.
func (r *ItemRepository) FindOpenBySnapshot(ctx context.Context, tenantID, snapshotID string) (*review.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("review repo: nil db")
	}
	if snapshotID == "" {
		return nil, errors.New("review repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, snapshot_id, system_id, status, kind, reason,
	candidate_ids, matched_id, created_at, updated_at, resolved_at
FROM review_items
WHERE tenant_id = $1 AND snapshot_id = $2 AND status = 'open'
ORDER BY created_at DESC
LIMIT 1`, tenantID, snapshotID)
	return scanItem(row)
}

// MarkConfirmed closes an item with the chosen system.
func (r *ItemRepository) MarkConfirmed(ctx context.Context, id, systemID string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("review repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE review_items
SET status = $1, system_id = $2, resolved_at = $3, updated_at = $4
WHERE id = $5`, review.StatusConfirmed, systemID, resolvedAt, resolvedAt, id)
	if err != nil {
		return err
	}
	return ensureUpdated(res)
}

// MarkDismissed closes an item without a system.
func (r *ItemRepository) MarkDismissed(ctx context.Context, id string, resolvedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("review repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE review_items
SET status = $1, resolved_at = $2, updated_at = $3
WHERE id = $4`, review.StatusDismissed, resolvedAt, resolvedAt, id)
	if err != nil {
		return err
	}
	return ensureUpdated(res)
}

// ListByStatus lists items for a tenant, newest first. Empty status lists
// all statuses; empty tenantID lists all tenants.
func (r *ItemRepository) ListByStatus(ctx context.Context, tenantID, status string, limit int) ([]review.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("review repo: nil db")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
SELECT id, tenant_id, snapshot_id, system_id, status, kind, reason,
	candidate_ids, matched_id, created_at, updated_at, resolved_at
FROM review_items
WHERE 1 = 1`
	args := []any{}
	if tenantID != "" {
		args = append(args, tenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []review.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func ensureUpdated(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return review.ErrNotFound
	}
	return nil
}

type itemScanner interface {
	Scan(dest ...any) error
}

func scanItem(row itemScanner) (*review.Item, error) {
	var item review.Item
	var systemID sql.NullString
	var matchedID sql.NullString
	var candidates []byte
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.SnapshotID,
		&systemID,
		&item.Status,
		&item.Kind,
		&item.Reason,
		&candidates,
		&matchedID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&resolvedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if systemID.Valid {
		item.SystemID = systemID.String
	}
	if matchedID.Valid {
		item.MatchedID = matchedID.String
	}
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &item.CandidateIDs); err != nil {
			return nil, err
		}
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	if resolvedAt.Valid {
		item.ResolvedAt = resolvedAt.Time.UTC()
	}
	return &item, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
