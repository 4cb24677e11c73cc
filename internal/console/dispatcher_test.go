package console

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

type stubDetector struct {
	dets  []pipeline.Detection
	err   error
	calls atomic.Int32
	gate  chan struct{} // when set, Predict waits for it or ctx
}

func (s *stubDetector) Name() string                 { return "stub" }
func (s *stubDetector) Healthy(context.Context) bool { return true }
func (s *stubDetector) Predict(ctx context.Context, _ image.Image, _ float32) ([]pipeline.Detection, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.dets, s.err
}

func frame() image.Image {
	return imaging.New(120, 90, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
}

func newDispatcher(t *testing.T, det pipeline.Detector) (*Dispatcher, *pipeline.ReportBus) {
	t.Helper()
	p, err := pipeline.New(det, pipeline.DefaultOptions())
	require.NoError(t, err)
	bus := pipeline.NewReportBus()
	d := NewDispatcher(p, mode.NewController(), bus)
	t.Cleanup(d.Close)
	return d, bus
}

func TestScanPublishesUploadReport(t *testing.T) {
	det := &stubDetector{dets: []pipeline.Detection{
		{Class: "person", Confidence: 0.8, BBox: pipeline.BBox{X1: 10, Y1: 20, X2: 40, Y2: 80}},
		{Class: "dog", Confidence: 0.9, BBox: pipeline.BBox{X1: 50, Y1: 20, X2: 70, Y2: 40}},
	}}
	d, bus := newDispatcher(t, det)

	var got []*pipeline.Event
	bus.Subscribe(pipeline.ReportHandlerFunc(func(e *pipeline.Event) { got = append(got, e) }))

	ev, err := d.Scan(context.Background(), frame())
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, mode.Upload, ev.Source)
	assert.Equal(t, 1, ev.Report.Survivors)
	assert.Equal(t, []string{"> TARGET LOCKED | CONF=0.80"}, ev.Report.Log)
	require.Len(t, got, 1)
	assert.Same(t, ev, got[0])
}

func TestScanWithoutFrameIsNoSignal(t *testing.T) {
	det := &stubDetector{}
	d, _ := newDispatcher(t, det)

	ev, err := d.Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ev.Report.NoSignal)
	assert.Equal(t, []string{pipeline.NoSignalLog}, ev.Report.Log)
	assert.Zero(t, det.calls.Load())
}

func TestSourceInactive(t *testing.T) {
	d, _ := newDispatcher(t, &stubDetector{})

	_, err := d.SubmitLive(context.Background(), frame())
	assert.ErrorIs(t, err, ErrSourceInactive)

	vis, err := d.SelectMode(context.Background(), mode.Live)
	require.NoError(t, err)
	assert.Equal(t, mode.Visibility{LiveVisible: true}, vis)

	_, err = d.Scan(context.Background(), frame())
	assert.ErrorIs(t, err, ErrSourceInactive)
}

func TestSelectUnknownModeKeepsState(t *testing.T) {
	d, _ := newDispatcher(t, &stubDetector{})

	vis, err := d.SelectMode(context.Background(), mode.Mode("THERMAL"))
	assert.ErrorIs(t, err, mode.ErrUnknownMode)
	assert.Equal(t, mode.Visibility{UploadVisible: true}, vis)
	assert.Equal(t, mode.Upload, d.Mode())
}

func TestLiveFramePublishesLiveReport(t *testing.T) {
	det := &stubDetector{}
	d, bus := newDispatcher(t, det)
	events, unsubscribe := bus.SubscribeChannel(4)
	defer unsubscribe()

	_, err := d.SelectMode(context.Background(), mode.Live)
	require.NoError(t, err)

	seq, err := d.SubmitLive(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	select {
	case ev := <-events:
		assert.Equal(t, mode.Live, ev.Source)
		assert.Equal(t, []string{pipeline.AreaClearLog}, ev.Report.Log)
	case <-time.After(2 * time.Second):
		t.Fatal("no live report published")
	}
}

func TestLeavingLiveStopsScanner(t *testing.T) {
	det := &stubDetector{gate: make(chan struct{})}
	d, bus := newDispatcher(t, det)
	events, unsubscribe := bus.SubscribeChannel(4)
	defer unsubscribe()

	_, err := d.SelectMode(context.Background(), mode.Live)
	require.NoError(t, err)
	_, err = d.SubmitLive(context.Background(), frame())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return det.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err = d.SelectMode(context.Background(), mode.Upload)
	require.NoError(t, err)

	d.live.Wait()
	assert.Equal(t, uint64(1), d.LiveStats().Superseded)
	assert.Empty(t, events)
}

func TestFailureHooks(t *testing.T) {
	boom := errors.New("gpu on fire")
	d, _ := newDispatcher(t, &stubDetector{err: boom})

	var mu sync.Mutex
	var sources []mode.Mode
	d.OnFailure(func(source mode.Mode, err error) {
		mu.Lock()
		defer mu.Unlock()
		sources = append(sources, source)
		assert.ErrorIs(t, err, pipeline.ErrInferenceFailure)
	})

	_, err := d.Scan(context.Background(), frame())
	assert.ErrorIs(t, err, boom)

	_, err = d.SelectMode(context.Background(), mode.Live)
	require.NoError(t, err)
	_, err = d.SubmitLive(context.Background(), frame())
	require.NoError(t, err)
	d.live.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []mode.Mode{mode.Upload, mode.Live}, sources)
}

type ping struct{}

func (ping) CommandName() string { return "ping" }

func TestDispatchCustomAndUnknownCommands(t *testing.T) {
	d, _ := newDispatcher(t, &stubDetector{})

	_, err := d.Dispatch(context.Background(), ping{})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = d.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	d.Register("ping", func(context.Context, Command) (Result, error) {
		return Result{Seq: 42}, nil
	})
	res, err := d.Dispatch(context.Background(), ping{})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.Seq)
}
