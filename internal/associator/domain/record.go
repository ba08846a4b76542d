package associator

import "time"

// System is the registry view of one physical battery installation as the
// matcher consumes it. The matcher only reads systems; fleet administration
// owns their lifecycle.
type System struct {
	ID                    string
	Name                  string
	AssociatedHardwareIDs []string
	AssociatedDLs         []string
	// Voltage is the nominal voltage class when known.
	Voltage *float64
}

// SystemStats is the per-system rolling context used only for plausibility
// validation, never for identity. Supplied by the caller from stored history
// and treated as a read-only snapshot for the duration of one batch.
type SystemStats struct {
	AvgVoltage    *float64
	LastSoc       *float64
	LastTimestamp time.Time
}

// AnalysisFields mirrors the nested `analysis` sub-object of the historical
// record shape.
type AnalysisFields struct {
	HardwareSystemID string   `json:"hardwareSystemId,omitempty"`
	DLNumber         string   `json:"dlNumber,omitempty"`
	OverallVoltage   *float64 `json:"overallVoltage,omitempty"`
	StateOfCharge    *float64 `json:"stateOfCharge,omitempty"`
}

// RecordInput is the boundary union of the two historical record shapes:
// identifiers and telemetry either flat or nested under analysis.
type RecordInput struct {
	HardwareSystemID string          `json:"hardwareSystemId,omitempty"`
	DLNumber         string          `json:"dlNumber,omitempty"`
	OverallVoltage   *float64        `json:"overallVoltage,omitempty"`
	StateOfCharge    *float64        `json:"stateOfCharge,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	Analysis         *AnalysisFields `json:"analysis,omitempty"`
}

// Record is the canonical internal record every tier operates on. Both
// historical shapes are projected here exactly once, before any tier runs.
type Record struct {
	// CandidateIDs holds the normalized, de-duplicated identifiers
	// collected from every raw ID field, with UnknownID dropped.
	CandidateIDs   []string
	OverallVoltage *float64
	StateOfCharge  *float64
	Timestamp      time.Time
}

// Canonical projects the input union into the canonical record. Flat fields
// win over nested ones for telemetry values; identifiers from both shapes are
// all kept as candidates.
func (in RecordInput) Canonical() Record {
	rawIDs := []string{in.HardwareSystemID, in.DLNumber}
	voltage := in.OverallVoltage
	soc := in.StateOfCharge
	if in.Analysis != nil {
		rawIDs = append(rawIDs, in.Analysis.HardwareSystemID, in.Analysis.DLNumber)
		if voltage == nil {
			voltage = in.Analysis.OverallVoltage
		}
		if soc == nil {
			soc = in.Analysis.StateOfCharge
		}
	}

	seen := make(map[string]struct{}, len(rawIDs))
	candidates := make([]string, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id := NormalizeHardwareID(raw)
		if id == UnknownID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}

	return Record{
		CandidateIDs:   candidates,
		OverallVoltage: voltage,
		StateOfCharge:  soc,
		Timestamp:      in.Timestamp,
	}
}
