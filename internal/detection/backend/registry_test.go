package backend

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroguardian/internal/config"
	"aeroguardian/internal/detection"
	"aeroguardian/internal/pipeline"
)

type stubDetector struct {
	labels detection.Labels
	closed bool
}

func (s *stubDetector) Name() string                 { return "stub" }
func (s *stubDetector) Healthy(context.Context) bool { return true }
func (s *stubDetector) Close() error                 { s.closed = true; return nil }
func (s *stubDetector) Predict(context.Context, image.Image, float32) ([]pipeline.Detection, error) {
	return nil, nil
}

func TestDefaultRegistryNames(t *testing.T) {
	assert.Equal(t, []string{"grpc", "http", "onnx"}, Default().Names())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Default().Open(config.DetectorConfig{Backend: "tensorrt"})
	assert.ErrorContains(t, err, "unknown detector backend")
}

func TestOpenLoadsLabelsAndSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names: [survivor, debris]\n"), 0o600))

	stub := &stubDetector{}
	r := NewRegistry()
	require.NoError(t, r.Register("stub", func(_ config.DetectorConfig, labels detection.Labels) (pipeline.Detector, error) {
		stub.labels = labels
		return stub, nil
	}))

	d, err := r.Open(config.DetectorConfig{Backend: "stub", LabelsPath: path, Serialize: true})
	require.NoError(t, err)
	assert.Equal(t, "survivor", stub.labels.Name(0))
	assert.NotSame(t, stub, d)
	assert.Equal(t, "stub", d.Name())

	require.NoError(t, Close(d))
	assert.True(t, stub.closed)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := Default()
	err := r.Register(config.BackendHTTP, newHTTP)
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, r.Register("", newHTTP))
	assert.Error(t, r.Register("x", nil))
}

func TestOpenHTTP(t *testing.T) {
	d, err := Default().Open(config.DetectorConfig{Backend: config.BackendHTTP, Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, "http", d.Name())
	assert.NoError(t, Close(d))
}
