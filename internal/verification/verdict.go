package verification

// Verdict is the outcome of comparing an aggregated threat value against the
// configured threshold.
type Verdict int

const (
	// VerdictMonitor keeps watching without enforcement.
	VerdictMonitor Verdict = iota
	// VerdictBlock confirms the address as an active threat.
	VerdictBlock
)

func (v Verdict) String() string {
	if v == VerdictBlock {
		return "block"
	}
	return "monitor"
}

// Decide blocks only when the threat value strictly exceeds the threshold.
// A tie resolves to monitor so decisions cannot flap at the boundary.
func Decide(threat, threshold float64) Verdict {
	if threat > threshold {
		return VerdictBlock
	}
	return VerdictMonitor
}
