package pipeline

// EmitAlert derives the radar state and alert signal from the survivor count
func EmitAlert(survivors int) (RadarState, bool) {
	if survivors > 0 {
		return RadarAlert, true
	}
	return RadarNormal, false
}
