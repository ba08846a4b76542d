package domain

import (
	"errors"
	"time"
)

// ErrNotFound indicates the review item does not exist.
var ErrNotFound = errors.New("review: item not found")

// Item statuses.
const (
	StatusOpen      = "open"
	StatusConfirmed = "confirmed"
	StatusDismissed = "dismissed"
)

// Item is a queued association outcome waiting for an operator decision.
// Kind carries the resolution status that raised it (ambiguous,
// rejected_semantic, new_candidate).
type Item struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	SnapshotID   string    `json:"snapshot_id"`
	SystemID     string    `json:"system_id,omitempty"`
	Status       string    `json:"status"`
	Kind         string    `json:"kind"`
	Reason       string    `json:"reason"`
	CandidateIDs []string  `json:"candidate_ids,omitempty"`
	MatchedID    string    `json:"matched_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ResolvedAt   time.Time `json:"resolved_at,omitempty"`
}

// Open reports whether the item still waits for a decision.
func (i *Item) Open() bool {
	return i != nil && i.Status == StatusOpen
}
