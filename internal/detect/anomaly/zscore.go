package anomaly

// Severity labels attached to persisted anomaly records. Classification
// itself is binary; severity only grades how far past the threshold a
// sample landed.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Kind labels describing how a sample diverged from its baseline. Spike and
// drop come from single-sample z-score checks; drift marks a CUSUM crossing.
const (
	KindSpike = "spike"
	KindDrop  = "drop"
	KindDrift = "drift"
)

// Grade maps an anomalous z-score to a severity label: scores within one
// unit of the threshold are warnings, anything at or beyond threshold+1 is
// critical.
func Grade(z, threshold float64) string {
	if z >= threshold+1 {
		return SeverityCritical
	}
	return SeverityWarning
}

// Kind reports whether an anomalous sample overshot or undershot the
// baseline it was measured against.
func Kind(value, baseline float64) string {
	if value < baseline {
		return KindDrop
	}
	return KindSpike
}
