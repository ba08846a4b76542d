package associator

import (
	"regexp"
	"strings"
)

// UnknownID is the sentinel for identifiers that cannot be normalized.
// It never participates in matching.
const UnknownID = "UNKNOWN"

var (
	separatorRun = regexp.MustCompile(`[\s_./\\]+`)
	dashRun      = regexp.MustCompile(`-{2,}`)
	prefixDigits = regexp.MustCompile(`^([A-Z]{2,4})-?([0-9]{5,20})$`)

	// CandidateIDPattern is the expected shape of a hardware identifier:
	// a short uppercase alpha prefix, a dash, and a digit run.
	CandidateIDPattern = regexp.MustCompile(`^[A-Z]{2,4}-[0-9]{5,20}$`)
)

// placeholder values extraction models emit for an unreadable identifier.
var placeholderIDs = map[string]struct{}{
	"":        {},
	"-":       {},
	"N/A":     {},
	"NA":      {},
	"NULL":    {},
	"NONE":    {},
	"UNKNOWN": {},
}

// NormalizeHardwareID canonicalizes a raw hardware or DL identifier for
// comparison: trims, upper-cases, collapses separator variation into single
// dashes, and fixes dash placement between the alpha prefix and digit run.
// Unparseable input maps to UnknownID. Normalization is pure and idempotent.
func NormalizeHardwareID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	id = separatorRun.ReplaceAllString(id, "-")
	id = dashRun.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")
	if _, ok := placeholderIDs[id]; ok {
		return UnknownID
	}
	if m := prefixDigits.FindStringSubmatch(id); m != nil {
		return m[1] + "-" + m[2]
	}
	return id
}

// StripDashes removes every dash from a normalized identifier. Used by the
// dash-normalized matching tier to absorb dash-placement drift.
func StripDashes(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// IsExpectedIDFormat reports whether a normalized identifier looks like a
// plausible hardware id for new-candidate promotion.
func IsExpectedIDFormat(id string) bool {
	return CandidateIDPattern.MatchString(id)
}
