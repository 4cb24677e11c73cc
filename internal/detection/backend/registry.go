// Package backend builds the configured inference backend.
package backend

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"aeroguardian/internal/config"
	"aeroguardian/internal/detection"
	"aeroguardian/internal/detection/onnx"
	"aeroguardian/internal/pipeline"
)

// Factory constructs a detector from configuration
type Factory func(cfg config.DetectorConfig, labels detection.Labels) (pipeline.Detector, error)

// Registry maps backend names to factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with the http, grpc and onnx backends
func Default() *Registry {
	r := NewRegistry()
	r.mustRegister(config.BackendHTTP, newHTTP)
	r.mustRegister(config.BackendGRPC, newGRPC)
	r.mustRegister(config.BackendONNX, newONNX)
	return r
}

// Register adds a factory under name
func (r *Registry) Register(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) mustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered backend names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open loads labels and builds the backend named by cfg.Backend. With
// cfg.Serialize the detector is wrapped so at most one Predict is in flight.
func (r *Registry) Open(cfg config.DetectorConfig) (pipeline.Detector, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown detector backend %q (available: %v)", cfg.Backend, r.Names())
	}

	labels := detection.DefaultLabels()
	if cfg.LabelsPath != "" {
		var err error
		if labels, err = detection.LoadLabels(cfg.LabelsPath); err != nil {
			return nil, err
		}
	}

	d, err := f(cfg, labels)
	if err != nil {
		return nil, fmt.Errorf("open %s detector: %w", cfg.Backend, err)
	}
	if cfg.Serialize {
		d = pipeline.Serialized(d)
	}
	return d, nil
}

// Close releases the backend if it holds resources
func Close(d pipeline.Detector) error {
	if u, ok := d.(interface{ Unwrap() pipeline.Detector }); ok {
		d = u.Unwrap()
	}
	if c, ok := d.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func newHTTP(cfg config.DetectorConfig, labels detection.Labels) (pipeline.Detector, error) {
	return detection.NewHTTPDetector(detection.HTTPConfig{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Labels:   labels,
	}), nil
}

func newGRPC(cfg config.DetectorConfig, labels detection.Labels) (pipeline.Detector, error) {
	d, err := detection.NewGRPCDetector(detection.GRPCConfig{
		Endpoint: cfg.Endpoint,
		Labels:   labels,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newONNX(cfg config.DetectorConfig, labels detection.Labels) (pipeline.Detector, error) {
	// onnx.Detector serializes internally
	d, err := onnx.New(onnx.Config{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.LibraryPath,
		InputSize:   cfg.InputSize,
		Labels:      labels,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
