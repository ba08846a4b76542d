package events

import "time"

// RecordExtracted is raised after a snapshot is stored, before resolution.
type RecordExtracted struct {
	EventID    string    `json:"event_id"`
	TenantID   string    `json:"tenant_id"`
	SnapshotID string    `json:"snapshot_id"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RecordAssociated is raised for every resolved snapshot, whatever the
// outcome status.
type RecordAssociated struct {
	EventID    string    `json:"event_id"`
	TenantID   string    `json:"tenant_id"`
	SnapshotID string    `json:"snapshot_id"`
	SystemID   string    `json:"system_id,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Confidence string    `json:"confidence,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSystemCandidate is raised when resolution surfaces an identifier that
// needs operator review.
type NewSystemCandidate struct {
	EventID      string    `json:"event_id"`
	TenantID     string    `json:"tenant_id"`
	SnapshotID   string    `json:"snapshot_id"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	CandidateIDs []string  `json:"candidate_ids,omitempty"`
	MatchedID    string    `json:"matched_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
