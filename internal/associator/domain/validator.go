package associator

import (
	"fmt"
	"strings"
)

// Validation is the outcome of a semantic plausibility check.
type Validation struct {
	Valid  bool
	Reason string
}

// Validate checks physical plausibility of a candidate system for a record:
// voltage-class compatibility and SOC continuity against the system's recent
// history. Each check is skipped silently when its data is missing; any
// failing check rejects the match. Pure function of its three inputs.
func (t Thresholds) Validate(system *System, record Record, stats *SystemStats) Validation {
	var ran []string

	if record.OverallVoltage != nil {
		if known := knownVoltage(system, stats); known > 0 {
			diff := absFloat(*record.OverallVoltage - known)
			if diff > t.VoltageTolerancePct*known {
				return Validation{
					Valid: false,
					Reason: fmt.Sprintf("voltage %.1fV deviates %.0f%% from system class %.1fV (limit %.0f%%)",
						*record.OverallVoltage, 100*diff/known, known, 100*t.VoltageTolerancePct),
				}
			}
			ran = append(ran, "voltage")
		}
	}

	if record.StateOfCharge != nil && stats != nil && stats.LastSoc != nil && !stats.LastTimestamp.IsZero() && !record.Timestamp.IsZero() {
		minutes := record.Timestamp.Sub(stats.LastTimestamp).Minutes()
		if minutes > 0 && minutes <= t.SocWindowMinutes {
			delta := absFloat(*record.StateOfCharge - *stats.LastSoc)
			maxAllowed := minutes * t.SocMaxDeltaPerMinute
			if delta > maxAllowed {
				return Validation{
					Valid: false,
					Reason: fmt.Sprintf("soc jump %.1f%% in %.1f min exceeds %.1f%% ceiling",
						delta, minutes, maxAllowed),
				}
			}
			ran = append(ran, "soc_continuity")
		}
	}

	if len(ran) == 0 {
		return Validation{Valid: true, Reason: "no checks applicable"}
	}
	return Validation{Valid: true, Reason: "passed " + strings.Join(ran, "+")}
}

// knownVoltage prefers the observed average from history over the registered
// nominal class.
func knownVoltage(system *System, stats *SystemStats) float64 {
	if stats != nil && stats.AvgVoltage != nil && *stats.AvgVoltage > 0 {
		return *stats.AvgVoltage
	}
	if system != nil && system.Voltage != nil && *system.Voltage > 0 {
		return *system.Voltage
	}
	return 0
}

func absFloat(value float64) float64 {
	if value < 0 {
		return -value
	}
	return value
}
