package onnx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroguardian/internal/detection"
	"aeroguardian/internal/detection/yolo"
)

func TestNewRejectsMissingWeights(t *testing.T) {
	_, err := New(Config{ModelPath: filepath.Join(t.TempDir(), "best.onnx")})
	require.ErrorIs(t, err, ErrMissingWeights)

	_, err = New(Config{})
	require.ErrorIs(t, err, ErrMissingWeights)
}

func TestToDetectionsResolvesLabels(t *testing.T) {
	labels := detection.Labels{0: "person", 2: "car"}
	dets := toDetections([]yolo.Candidate{
		{ClassID: 0, Score: 0.9, X1: 10.7, Y1: 20.2, X2: 50.9, Y2: 80.1},
		{ClassID: 5, Score: 0.4, X1: 1, Y1: 2, X2: 3, Y2: 4},
	}, labels)

	require.Len(t, dets, 2)
	assert.Equal(t, "person", dets[0].Class)
	assert.Equal(t, 10, dets[0].BBox.X1)
	assert.Equal(t, 50, dets[0].BBox.X2)
	assert.Equal(t, "class_5", dets[1].Class)
}
