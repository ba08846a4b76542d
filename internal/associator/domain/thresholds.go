package associator

// Thresholds bundles every tunable constant of the matching tiers so they can
// be adjusted and tested without touching control flow.
type Thresholds struct {
	// VoltageTolerancePct is the relative voltage-class tolerance applied
	// after an ID-based candidate is found (Tier 1/1.5/2).
	VoltageTolerancePct float64
	// SocWindowMinutes bounds how far back the SOC-continuity check looks.
	SocWindowMinutes float64
	// SocMaxDeltaPerMinute is the allowed SOC rate of change in percentage
	// points per minute of elapsed time.
	SocMaxDeltaPerMinute float64

	// FuzzyLengthPrune skips key/candidate pairs whose lengths differ by
	// more than this many characters.
	FuzzyLengthPrune int
	// FuzzyShortKeyLen splits keys into short and long for the distance
	// threshold below.
	FuzzyShortKeyLen int
	// FuzzyShortMaxDistance / FuzzyLongMaxDistance are the acceptance
	// thresholds for short and long keys respectively.
	FuzzyShortMaxDistance int
	FuzzyLongMaxDistance  int

	// PhysicsWindowHours bounds the time gap to a system's last known
	// record for physics inference.
	PhysicsWindowHours float64
	// PhysicsBaseTolerance and PhysicsTolerancePerHour define the SOC
	// tolerance window: base + perHour x elapsed hours.
	PhysicsBaseTolerance    float64
	PhysicsTolerancePerHour float64
	// PhysicsVoltagePct is the secondary voltage veto, stricter than the
	// ID-corroborated tolerance because no identifier agrees at all.
	PhysicsVoltagePct float64
}

// DefaultThresholds returns the calibrated production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VoltageTolerancePct:     0.30,
		SocWindowMinutes:        60,
		SocMaxDeltaPerMinute:    5,
		FuzzyLengthPrune:        2,
		FuzzyShortKeyLen:        8,
		FuzzyShortMaxDistance:   1,
		FuzzyLongMaxDistance:    2,
		PhysicsWindowHours:      4,
		PhysicsBaseTolerance:    5,
		PhysicsTolerancePerHour: 2,
		PhysicsVoltagePct:       0.20,
	}
}
