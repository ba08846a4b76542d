package domain

import (
	"context"
	"time"
)

// ItemRepository persists review items. Get returns (nil, nil) when the
// item does not exist.
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	FindOpenBySnapshot(ctx context.Context, tenantID, snapshotID string) (*Item, error)
	MarkConfirmed(ctx context.Context, id, systemID string, resolvedAt time.Time) error
	MarkDismissed(ctx context.Context, id string, resolvedAt time.Time) error
	ListByStatus(ctx context.Context, tenantID, status string, limit int) ([]Item, error)
}
