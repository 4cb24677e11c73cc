package pipeline

import (
	"fmt"
	"time"
)

// DefaultConfThreshold is the fixed detector confidence threshold
const DefaultConfThreshold float32 = 0.3

// Options consolidates the plain and metrics/alert console variants
type Options struct {
	ConfThreshold            float32       `json:"conf_threshold" yaml:"conf_threshold"`
	IncludeMetrics           bool          `json:"include_metrics" yaml:"include_metrics"`
	IncludeAlert             bool          `json:"include_alert" yaml:"include_alert"`
	PulseWidthFromConfidence bool          `json:"pulse_width_from_confidence" yaml:"pulse_width_from_confidence"`
	ClampBoxes               bool          `json:"clamp_boxes" yaml:"clamp_boxes"`
	DetectorTimeout          time.Duration `json:"detector_timeout" yaml:"detector_timeout"`
}

// DefaultOptions returns the metrics/alert console configuration
func DefaultOptions() Options {
	return Options{
		ConfThreshold:            DefaultConfThreshold,
		IncludeMetrics:           true,
		IncludeAlert:             true,
		PulseWidthFromConfidence: true,
		ClampBoxes:               true,
		DetectorTimeout:          10 * time.Second,
	}
}

// PlainOptions reproduces the plain console: no fps, no alert, fixed outline width
func PlainOptions() Options {
	o := DefaultOptions()
	o.IncludeMetrics = false
	o.IncludeAlert = false
	o.PulseWidthFromConfidence = false
	return o
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.ConfThreshold < 0 || o.ConfThreshold > 1 {
		return fmt.Errorf("conf_threshold %v outside [0,1]", o.ConfThreshold)
	}
	if o.DetectorTimeout < 0 {
		return fmt.Errorf("detector_timeout must not be negative")
	}
	return nil
}

func (o Options) style() Style {
	return Style{Color: HUDColor, PulseWidth: o.PulseWidthFromConfidence, Clamp: o.ClampBoxes}
}
