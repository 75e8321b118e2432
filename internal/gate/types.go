package gate

// #region veto-type
// VetoType enumerates reasons a record is refused.
type VetoType string

const (
	VetoNonFinite    VetoType = "non_finite"
	VetoNameMismatch VetoType = "name_mismatch"
	VetoOutOfRange   VetoType = "out_of_range"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for record admission.
type GateConfig struct {
	MaxAbsValue float64 // reject |value| above this; 0 disables the check
}

// DefaultGateConfig admits any finite value.
func DefaultGateConfig() GateConfig {
	return GateConfig{MaxAbsValue: 0}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of a record evaluation.
type GateDecision struct {
	Action      string // "accept" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal
	Index       int // position in the batch, -1 for single records
}

// Accepted reports whether the record may be handed to the engine.
func (d GateDecision) Accepted() bool {
	return d.Action == "accept"
}

// #endregion gate-decision
