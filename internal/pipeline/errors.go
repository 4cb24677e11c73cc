package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInferenceFailure = errors.New("inference failure")
	ErrDataIntegrity    = errors.New("data integrity error")

	errNoDetector = errors.New("no detector configured")
)

// InferenceFailure reports that the detector could not produce detections
type InferenceFailure struct {
	Detector string
	Cause    error
}

func (e *InferenceFailure) Error() string {
	return fmt.Sprintf("inference failure (%s): %v", e.Detector, e.Cause)
}

func (e *InferenceFailure) Unwrap() []error {
	return []error{ErrInferenceFailure, e.Cause}
}

// DataIntegrityError reports a malformed detection that must not be drawn
type DataIntegrityError struct {
	Index     int
	Detection Detection
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error: detection %d (%s): %s", e.Index, e.Detection.Class, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error {
	return ErrDataIntegrity
}
