package associator

import (
	"fmt"
	"sort"
	"strings"
)

// tier identifies one matching strategy in the fixed precedence order. The
// resolution of a record is a walk through these states, terminal on the
// first tier that produces an outcome.
type tier int

const (
	tierCandidates tier = iota
	tierStrict
	tierStripped
	tierFuzzy
	tierPhysics
	tierNewCandidate
)

// Associator resolves extracted telemetry records against a registry of
// known systems. It is a pure, synchronous computation over in-memory data:
// the index is built once at construction and read-only afterwards, so one
// Associator may serve concurrent FindMatch calls across a batch.
type Associator struct {
	index      *RegistryIndex
	systems    []*System
	stats      map[string]SystemStats
	thresholds Thresholds
	// strippedKeys maps dash-stripped forms of unambiguous keys back to
	// their canonical key. Stripped forms shared by several keys are
	// dropped: a collision is as unusable as an ambiguous id.
	strippedKeys map[string]string
}

// Option customizes an Associator.
type Option func(*Associator)

// WithThresholds overrides the default matching thresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Associator) {
		a.thresholds = t
	}
}

// NewAssociator constructs the matcher from the full system list and the
// per-system history stats. A nil system list or a system without an id is a
// construction error; a merely empty registry is not.
func NewAssociator(systems []System, stats map[string]SystemStats, opts ...Option) (*Associator, error) {
	index, err := BuildRegistryIndex(systems)
	if err != nil {
		return nil, err
	}

	a := &Associator{
		index:      index,
		stats:      stats,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(a)
	}

	for i := range systems {
		a.systems = append(a.systems, &systems[i])
	}
	// Stable system order keeps the physics tier deterministic.
	sort.Slice(a.systems, func(i, j int) bool { return a.systems[i].ID < a.systems[j].ID })

	a.strippedKeys = make(map[string]string, index.Len())
	collided := make(map[string]struct{})
	for _, key := range index.UnambiguousKeys() {
		stripped := StripDashes(key)
		if _, dup := collided[stripped]; dup {
			continue
		}
		if existing, ok := a.strippedKeys[stripped]; ok && existing != key {
			delete(a.strippedKeys, stripped)
			collided[stripped] = struct{}{}
			continue
		}
		a.strippedKeys[stripped] = key
	}
	return a, nil
}

// Index exposes the read-only registry index.
func (a *Associator) Index() *RegistryIndex {
	if a == nil {
		return nil
	}
	return a.index
}

// FindMatch resolves one record through the tiers in strict precedence
// order, returning the first terminal outcome. It never returns an error:
// missing or malformed optional fields only cause tiers to defer.
func (a *Associator) FindMatch(input RecordInput) MatchResult {
	record := input.Canonical()

	for state := tierCandidates; ; {
		switch state {
		case tierCandidates:
			if len(record.CandidateIDs) == 0 {
				if a.physicsApplicable(record) {
					state = tierPhysics
					continue
				}
				return MatchResult{Status: StatusNoID, Reason: "no parsable identifier on record"}
			}
			state = tierStrict
		case tierStrict:
			if result, terminal := a.strictTier(record); terminal {
				return result
			}
			state = tierStripped
		case tierStripped:
			if result, terminal := a.strippedTier(record); terminal {
				return result
			}
			state = tierFuzzy
		case tierFuzzy:
			if result, terminal := a.fuzzyTier(record); terminal {
				return result
			}
			state = tierPhysics
		case tierPhysics:
			if result, terminal := a.physicsTier(record); terminal {
				return result
			}
			state = tierNewCandidate
		case tierNewCandidate:
			return a.newCandidateTier(record)
		}
	}
}

// strictTier looks every candidate up in the registry index. A strict id hit
// that fails plausibility is reported, not silently retried as fuzzy.
func (a *Associator) strictTier(record Record) (MatchResult, bool) {
	for _, candidate := range record.CandidateIDs {
		owners := a.index.Lookup(candidate)
		switch len(owners) {
		case 0:
			continue
		case 1:
			system := owners[0]
			validation := a.validate(system, record)
			if !validation.Valid {
				return MatchResult{
					Status:         StatusRejectedSemantic,
					Reason:         fmt.Sprintf("id %s matched %s but %s", candidate, system.ID, validation.Reason),
					IsNewCandidate: true,
					MatchedID:      candidate,
					CandidateIDs:   record.CandidateIDs,
				}, true
			}
			return MatchResult{
				SystemID:   system.ID,
				SystemName: system.Name,
				Status:     StatusMatchedStrict,
				Reason:     fmt.Sprintf("exact id match on %s (%s)", candidate, validation.Reason),
				Confidence: ConfidenceHigh,
				MatchedID:  candidate,
			}, true
		default:
			return MatchResult{
				Status:       StatusAmbiguous,
				Reason:       fmt.Sprintf("id %s is claimed by %d systems", candidate, len(owners)),
				MatchedID:    candidate,
				CandidateIDs: ownerIDs(owners),
			}, true
		}
	}
	return MatchResult{}, false
}

// strippedTier absorbs dash-placement drift. A stripped match that fails
// plausibility falls through: it carries less confidence than a strict hit.
func (a *Associator) strippedTier(record Record) (MatchResult, bool) {
	for _, candidate := range record.CandidateIDs {
		key, ok := a.strippedKeys[StripDashes(candidate)]
		if !ok {
			continue
		}
		system, ok := a.index.OwnerOf(key)
		if !ok {
			continue
		}
		validation := a.validate(system, record)
		if !validation.Valid {
			continue
		}
		return MatchResult{
			SystemID:   system.ID,
			SystemName: system.Name,
			Status:     StatusMatchedStripped,
			Reason:     fmt.Sprintf("dash-normalized match of %s on %s (%s)", candidate, key, validation.Reason),
			Confidence: ConfidenceHigh,
			MatchedID:  key,
		}, true
	}
	return MatchResult{}, false
}

// fuzzyTier accepts the globally minimal edit distance under the
// length-dependent threshold. Ties resolve to the lexicographically smallest
// key because unambiguous keys are iterated in sorted order.
func (a *Associator) fuzzyTier(record Record) (MatchResult, bool) {
	t := a.thresholds
	bestDistance := -1
	var bestKey, bestCandidate string

	for _, key := range a.index.UnambiguousKeys() {
		limit := t.FuzzyLongMaxDistance
		if len(key) <= t.FuzzyShortKeyLen {
			limit = t.FuzzyShortMaxDistance
		}
		for _, candidate := range record.CandidateIDs {
			lengthGap := len(key) - len(candidate)
			if lengthGap < 0 {
				lengthGap = -lengthGap
			}
			if lengthGap > t.FuzzyLengthPrune {
				continue
			}
			d := Distance(key, candidate)
			if d == 0 || d > limit {
				// Zero distance would have matched strictly.
				continue
			}
			if bestDistance == -1 || d < bestDistance {
				bestDistance = d
				bestKey = key
				bestCandidate = candidate
			}
		}
	}

	if bestDistance == -1 {
		return MatchResult{}, false
	}

	system, ok := a.index.OwnerOf(bestKey)
	if !ok {
		return MatchResult{}, false
	}
	validation := a.validate(system, record)
	if !validation.Valid {
		return MatchResult{
			Status:         StatusRejectedSemantic,
			Reason:         fmt.Sprintf("fuzzy hit %s->%s (distance %d) but %s", bestCandidate, bestKey, bestDistance, validation.Reason),
			IsNewCandidate: true,
			MatchedID:      bestKey,
			FuzzyOriginal:  bestCandidate,
			CandidateIDs:   record.CandidateIDs,
		}, true
	}
	return MatchResult{
		SystemID:      system.ID,
		SystemName:    system.Name,
		Status:        StatusMatchedFuzzy,
		Reason:        fmt.Sprintf("fuzzy match %s->%s at distance %d (%s)", bestCandidate, bestKey, bestDistance, validation.Reason),
		Confidence:    ConfidenceMedium,
		MatchedID:     bestKey,
		FuzzyOriginal: bestCandidate,
	}, true
}

// physicsApplicable reports whether the record carries the data Tier 3
// needs: a state of charge and a timestamp.
func (a *Associator) physicsApplicable(record Record) bool {
	return record.StateOfCharge != nil && !record.Timestamp.IsZero()
}

// physicsTier matches on physical continuity alone: SOC within a widening
// tolerance of a system's last known value, with a strict voltage veto since
// no identifier corroborates the fit.
func (a *Associator) physicsTier(record Record) (MatchResult, bool) {
	if !a.physicsApplicable(record) {
		return MatchResult{}, false
	}
	t := a.thresholds

	var best *System
	bestDelta := 0.0
	for _, system := range a.systems {
		stats, ok := a.stats[system.ID]
		if !ok || stats.LastSoc == nil || stats.LastTimestamp.IsZero() {
			continue
		}
		hours := absFloat(record.Timestamp.Sub(stats.LastTimestamp).Hours())
		if hours > t.PhysicsWindowHours {
			continue
		}
		delta := absFloat(*record.StateOfCharge - *stats.LastSoc)
		tolerance := t.PhysicsBaseTolerance + t.PhysicsTolerancePerHour*hours
		if delta > tolerance {
			continue
		}
		if record.OverallVoltage != nil {
			if known := knownVoltage(system, &stats); known > 0 {
				if absFloat(*record.OverallVoltage-known) > t.PhysicsVoltagePct*known {
					continue
				}
			}
		}
		if best == nil || delta < bestDelta {
			best = system
			bestDelta = delta
		}
	}

	if best == nil {
		return MatchResult{}, false
	}
	return MatchResult{
		SystemID:   best.ID,
		SystemName: best.Name,
		Status:     StatusMatchedPhysics,
		Reason:     fmt.Sprintf("soc continuity fit: delta %.1f%% against %s", bestDelta, best.ID),
		Confidence: ConfidenceLow,
		MatchedID:  MatchedIDInferred,
	}, true
}

// newCandidateTier promotes unmatched but well-formed identifiers for
// operator review.
func (a *Associator) newCandidateTier(record Record) MatchResult {
	if len(record.CandidateIDs) > 0 {
		for _, candidate := range record.CandidateIDs {
			if IsExpectedIDFormat(candidate) {
				return MatchResult{
					Status:         StatusNewCandidate,
					Reason:         fmt.Sprintf("unregistered id(s) in expected format: %s", strings.Join(record.CandidateIDs, ", ")),
					IsNewCandidate: true,
					CandidateIDs:   record.CandidateIDs,
				}
			}
		}
	}
	return MatchResult{
		Status: StatusNone,
		Reason: "no match and no well-formed candidate id",
	}
}

func (a *Associator) validate(system *System, record Record) Validation {
	var stats *SystemStats
	if s, ok := a.stats[system.ID]; ok {
		stats = &s
	}
	return a.thresholds.Validate(system, record, stats)
}

func ownerIDs(owners []*System) []string {
	ids := make([]string, 0, len(owners))
	for _, owner := range owners {
		ids = append(ids, owner.ID)
	}
	sort.Strings(ids)
	return ids
}
