package associator

// Match statuses, in tier order.
const (
	StatusNoID             = "no_id"
	StatusMatchedStrict    = "matched_strict"
	StatusMatchedStripped  = "matched_stripped"
	StatusMatchedFuzzy     = "matched_fuzzy"
	StatusMatchedPhysics   = "matched_physics"
	StatusRejectedSemantic = "rejected_semantic"
	StatusAmbiguous        = "ambiguous"
	StatusNewCandidate     = "new_candidate"
	StatusNone             = "none"
)

// Confidence levels attached to accepted matches.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// MatchedIDInferred marks a physics-tier match that carries no identifier
// agreement at all.
const MatchedIDInferred = "INFERRED"

// MatchResult is the single outcome of resolving one record against the
// registry. Persistence of the outcome is the caller's responsibility.
type MatchResult struct {
	SystemID       string   `json:"system_id,omitempty"`
	SystemName     string   `json:"system_name,omitempty"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason"`
	Confidence     string   `json:"confidence,omitempty"`
	IsNewCandidate bool     `json:"is_new_candidate"`
	MatchedID      string   `json:"matched_id,omitempty"`
	FuzzyOriginal  string   `json:"fuzzy_original,omitempty"`
	CandidateIDs   []string `json:"candidate_ids,omitempty"`
}

// Accepted reports whether the result resolved to a concrete system.
func (r MatchResult) Accepted() bool {
	switch r.Status {
	case StatusMatchedStrict, StatusMatchedStripped, StatusMatchedFuzzy, StatusMatchedPhysics:
		return true
	default:
		return false
	}
}

// NeedsReview reports whether the result should be routed to the
// human-review queue.
func (r MatchResult) NeedsReview() bool {
	switch r.Status {
	case StatusAmbiguous, StatusRejectedSemantic, StatusNewCandidate:
		return true
	default:
		return false
	}
}
