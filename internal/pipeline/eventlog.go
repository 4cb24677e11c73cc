package pipeline

import "fmt"

// BuildEventLog returns one lock-on line per human detection, or the
// single area-clear line when there are none.
func BuildEventLog(humans []Detection) []string {
	if len(humans) == 0 {
		return []string{AreaClearLog}
	}
	lines := make([]string, 0, len(humans))
	for _, d := range humans {
		lines = append(lines, fmt.Sprintf(targetLockFmt, d.Confidence))
	}
	return lines
}
