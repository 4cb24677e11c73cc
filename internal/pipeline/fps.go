package pipeline

import "time"

// minElapsed bounds the frame-rate estimate at 1000 fps
const minElapsed = 0.001

// ComputeFPS estimates frames per second from one invocation's processing time
func ComputeFPS(elapsed time.Duration) float64 {
	s := elapsed.Seconds()
	if s < minElapsed {
		s = minElapsed
	}
	return 1 / s
}
