package pipeline

// ClassifyThreat maps a survivor count to a threat level
func ClassifyThreat(survivors int) ThreatLevel {
	switch {
	case survivors >= 3:
		return ThreatHigh
	case survivors >= 1:
		return ThreatMedium
	default:
		return ThreatLow
	}
}
