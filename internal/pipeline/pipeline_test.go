package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, det Detector, opts Options) *Pipeline {
	t.Helper()
	p, err := New(det, opts)
	require.NoError(t, err)
	return p
}

// steppedClock advances by step on every call
func steppedClock(step time.Duration) func() time.Time {
	now := time.Unix(1700000000, 0)
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestScenarioSinglePerson(t *testing.T) {
	det := &fakeDetector{detections: []Detection{person(0.92, 10, 10, 50, 90)}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(128, 128))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Survivors)
	assert.Equal(t, ThreatMedium, report.Threat)
	assert.Equal(t, []string{"> TARGET LOCKED | CONF=0.92"}, report.Log)
	assert.Equal(t, "> TARGET LOCKED | CONF=0.92", report.LogText())
	assert.Equal(t, RadarAlert, report.Radar)
	assert.True(t, report.Alert)
	assert.False(t, report.NoSignal)
	require.NotNil(t, report.Annotated)
	assert.True(t, isHUD(report.Annotated.At(10, 50)))
	assert.Greater(t, report.FPS, 0.0)
	assert.EqualValues(t, 1, det.calls.Load())
}

func TestScenarioNonHumanOnly(t *testing.T) {
	det := &fakeDetector{detections: []Detection{{Class: "car", Confidence: 0.88, BBox: BBox{X1: 5, Y1: 5, X2: 40, Y2: 30}}}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(64, 64))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Survivors)
	assert.Equal(t, []string{"> AREA CLEAR"}, report.Log)
	assert.Equal(t, ThreatLow, report.Threat)
	assert.Equal(t, RadarNormal, report.Radar)
	assert.False(t, report.Alert)
	assert.False(t, isHUD(report.Annotated.At(5, 20)), "non-human boxes are not drawn")
}

func TestScenarioThreePeople(t *testing.T) {
	det := &fakeDetector{detections: []Detection{
		person(0.9, 1, 1, 10, 10),
		person(0.8, 20, 20, 30, 30),
		person(0.7, 40, 40, 50, 50),
	}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(64, 64))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Survivors)
	assert.Equal(t, ThreatHigh, report.Threat)
	assert.Len(t, report.Log, 3)
}

func TestScenarioAbsentFrame(t *testing.T) {
	det := &fakeDetector{detections: []Detection{person(0.9, 1, 1, 10, 10)}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), nil)
	require.NoError(t, err)

	assert.Nil(t, report.Annotated)
	assert.Equal(t, "NO SIGNAL", report.LogText())
	assert.Equal(t, 0, report.Survivors)
	assert.Equal(t, ThreatLow, report.Threat)
	assert.Equal(t, 0.0, report.FPS)
	assert.Equal(t, RadarNormal, report.Radar)
	assert.False(t, report.Alert)
	assert.True(t, report.NoSignal)
	assert.EqualValues(t, 0, det.calls.Load(), "detector must not be invoked without a frame")
}

func TestProcessPassesConfidenceThreshold(t *testing.T) {
	det := &fakeDetector{detections: []Detection{person(0.29, 1, 1, 10, 10), person(0.31, 20, 20, 30, 30)}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(40, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Survivors)
}

func TestProcessFPSFromElapsed(t *testing.T) {
	det := &fakeDetector{}
	p := newTestPipeline(t, det, DefaultOptions())

	p.now = steppedClock(40 * time.Millisecond)
	report, err := p.Process(context.Background(), grayFrame(8, 8))
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, report.Elapsed)
	assert.InDelta(t, 25.0, report.FPS, 1e-9)

	p.now = steppedClock(0)
	report, err = p.Process(context.Background(), grayFrame(8, 8))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, report.FPS)
}

func TestProcessPlainVariant(t *testing.T) {
	det := &fakeDetector{detections: []Detection{person(0.99, 10, 10, 50, 50)}}
	p := newTestPipeline(t, det, PlainOptions())

	report, err := p.Process(context.Background(), grayFrame(64, 64))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Survivors)
	assert.Equal(t, ThreatMedium, report.Threat)
	assert.Equal(t, 0.0, report.FPS)
	assert.Equal(t, RadarNormal, report.Radar)
	assert.False(t, report.Alert)
	assert.True(t, isHUD(report.Annotated.At(12, 30)))
	assert.False(t, isHUD(report.Annotated.At(13, 30)), "plain variant uses a fixed 3px outline")
}

func TestProcessDetectorFailure(t *testing.T) {
	cause := errors.New("weights unreadable")
	p := newTestPipeline(t, &fakeDetector{err: cause}, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(8, 8))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, cause)

	var failure *InferenceFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "fake", failure.Detector)
}

func TestProcessDetectorTimeout(t *testing.T) {
	det := &fakeDetector{block: func(ctx context.Context, _ int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	opts := DefaultOptions()
	opts.DetectorTimeout = 20 * time.Millisecond
	p := newTestPipeline(t, det, opts)

	report, err := p.Process(context.Background(), grayFrame(8, 8))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessDetectorIgnoringDeadline(t *testing.T) {
	det := &fakeDetector{
		detections: []Detection{person(0.9, 1, 1, 5, 5)},
		block: func(ctx context.Context, _ int32) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	}
	opts := DefaultOptions()
	opts.DetectorTimeout = 5 * time.Millisecond
	p := newTestPipeline(t, det, opts)

	_, err := p.Process(context.Background(), grayFrame(8, 8))
	assert.ErrorIs(t, err, ErrInferenceFailure)
}

func TestProcessRejectsMalformedHumanDetections(t *testing.T) {
	det := &fakeDetector{detections: []Detection{person(0.9, 50, 10, 20, 40)}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(64, 64))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestProcessIgnoresMalformedNonHumanDetections(t *testing.T) {
	det := &fakeDetector{detections: []Detection{{Class: "boat", Confidence: 0.9, BBox: BBox{X1: 50, Y1: 10, X2: 20, Y2: 40}}}}
	p := newTestPipeline(t, det, DefaultOptions())

	report, err := p.Process(context.Background(), grayFrame(64, 64))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Survivors)
}

func TestProcessDoesNotMutateFrame(t *testing.T) {
	frame := grayFrame(32, 32)
	before := append([]uint8(nil), frame.Pix...)
	p := newTestPipeline(t, &fakeDetector{detections: []Detection{person(0.9, 2, 2, 20, 20)}}, DefaultOptions())

	_, err := p.Process(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, before, frame.Pix)
}

func TestAlertIffSurvivors(t *testing.T) {
	for n := 0; n < 5; n++ {
		dets := make([]Detection, 0, n+1)
		dets = append(dets, Detection{Class: "tree", Confidence: 0.9, BBox: BBox{X2: 1, Y2: 1}})
		for i := 0; i < n; i++ {
			dets = append(dets, person(0.6, i, i, i+5, i+5))
		}
		p := newTestPipeline(t, &fakeDetector{detections: dets}, DefaultOptions())
		report, err := p.Process(context.Background(), grayFrame(32, 32))
		require.NoError(t, err)
		assert.Equal(t, n > 0, report.Alert, n)
		assert.Equal(t, n > 0, report.Radar == RadarAlert, n)
	}
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.ConfThreshold = 1.5
	_, err = New(&fakeDetector{}, opts)
	assert.Error(t, err)
}

func TestSetOptions(t *testing.T) {
	p := newTestPipeline(t, &fakeDetector{}, DefaultOptions())
	require.NoError(t, p.SetOptions(PlainOptions()))
	assert.Equal(t, PlainOptions(), p.Options())

	bad := DefaultOptions()
	bad.ConfThreshold = -1
	assert.Error(t, p.SetOptions(bad))
	assert.Equal(t, PlainOptions(), p.Options())
}

func TestSerializedDetectorRunsOneAtATime(t *testing.T) {
	var active, peak int32
	inner := &fakeDetector{block: func(ctx context.Context, _ int32) error {
		n := atomicAdd(&active, 1)
		if n > atomicLoad(&peak) {
			atomicStore(&peak, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomicAdd(&active, -1)
		return nil
	}}
	det := Serialized(inner)
	assert.Same(t, det, Serialized(det))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, _ = det.Predict(context.Background(), grayFrame(2, 2), 0.3)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.EqualValues(t, 1, atomicLoad(&peak))
	assert.EqualValues(t, 8, inner.calls.Load())
}
