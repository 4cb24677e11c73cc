package pipeline

import (
	"context"
	"image"
	"sync"
)

// Detector is the narrow interface every inference backend implements.
// The pipeline owns no model state; the detector is built once and injected.
type Detector interface {
	// Name returns the backend identifier (e.g., "http", "grpc", "onnx")
	Name() string

	// Predict runs detection on an RGB frame and returns detections whose
	// confidence is at least threshold. Labels are already resolved.
	Predict(ctx context.Context, frame image.Image, threshold float32) ([]Detection, error)

	// Healthy returns true if the backend is ready to serve predictions
	Healthy(ctx context.Context) bool
}

// ReportHandler receives published report events
type ReportHandler interface {
	OnReport(event *Event)
}

// ReportHandlerFunc adapts a function to ReportHandler
type ReportHandlerFunc func(event *Event)

func (f ReportHandlerFunc) OnReport(event *Event) { f(event) }

// serializedDetector guards a backend that is not safe for concurrent Predict calls
type serializedDetector struct {
	Detector
	mu sync.Mutex
}

// Serialized wraps a detector so that at most one Predict runs at a time
func Serialized(d Detector) Detector {
	if _, ok := d.(*serializedDetector); ok {
		return d
	}
	return &serializedDetector{Detector: d}
}

func (s *serializedDetector) Predict(ctx context.Context, frame image.Image, threshold float32) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Detector.Predict(ctx, frame, threshold)
}

// Unwrap returns the guarded detector
func (s *serializedDetector) Unwrap() Detector { return s.Detector }
