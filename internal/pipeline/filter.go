package pipeline

import (
	"fmt"
	"math"
	"strings"
)

// humanLabels are the class names counted as survivors
var humanLabels = map[string]bool{
	"person": true,
	"human":  true,
}

// IsHuman reports whether a class label is a human synonym (case-insensitive)
func IsHuman(class string) bool {
	return humanLabels[strings.ToLower(strings.TrimSpace(class))]
}

// FilterHumans keeps the human detections in their original order
func FilterHumans(detections []Detection) []Detection {
	humans := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if IsHuman(d.Class) {
			humans = append(humans, d)
		}
	}
	return humans
}

// Validate rejects detections that would produce garbage overlays
func Validate(detections []Detection) error {
	for i, d := range detections {
		c := float64(d.Confidence)
		switch {
		case math.IsNaN(c) || c < 0 || c > 1:
			return &DataIntegrityError{Index: i, Detection: d, Reason: fmt.Sprintf("confidence %v outside [0,1]", d.Confidence)}
		case d.BBox.X2 < d.BBox.X1:
			return &DataIntegrityError{Index: i, Detection: d, Reason: fmt.Sprintf("inverted box x1=%d x2=%d", d.BBox.X1, d.BBox.X2)}
		case d.BBox.Y2 < d.BBox.Y1:
			return &DataIntegrityError{Index: i, Detection: d, Reason: fmt.Sprintf("inverted box y1=%d y2=%d", d.BBox.Y1, d.BBox.Y2)}
		}
	}
	return nil
}
