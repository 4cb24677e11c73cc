package ws

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroguardian/internal/console"
	"aeroguardian/internal/frame"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

type personDetector struct{}

func (personDetector) Name() string                 { return "fixed" }
func (personDetector) Healthy(context.Context) bool { return true }
func (personDetector) Predict(context.Context, image.Image, float32) ([]pipeline.Detection, error) {
	return []pipeline.Detection{{Class: "person", Confidence: 0.88, BBox: pipeline.BBox{X1: 4, Y1: 4, X2: 30, Y2: 40}}}, nil
}

type envelope struct {
	Type      string   `json:"type"`
	Mode      string   `json:"mode"`
	Code      string   `json:"code"`
	Seq       uint64   `json:"seq"`
	Survivors int      `json:"survivors"`
	Source    string   `json:"source"`
	Log       []string `json:"log"`
	Frame     string   `json:"frame"`
	NoSignal  bool     `json:"no_signal"`
}

func setup(t *testing.T) (*websocket.Conn, *Hub) {
	t.Helper()
	p, err := pipeline.New(personDetector{}, pipeline.DefaultOptions())
	require.NoError(t, err)

	bus := pipeline.NewReportBus()
	modes := mode.NewController()
	d := console.NewDispatcher(p, modes, bus)
	t.Cleanup(d.Close)

	hub := NewHub()
	t.Cleanup(hub.Close)
	bus.Subscribe(hub)
	modes.OnChange(hub.OnModeChange)

	srv := httptest.NewServer(NewHandler(hub, d))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, hub
}

func next(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e envelope
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func jpegFrame(t *testing.T) []byte {
	t.Helper()
	data, err := frame.EncodeJPEG(imaging.New(64, 64, color.NRGBA{R: 30, G: 30, B: 30, A: 255}))
	require.NoError(t, err)
	return data
}

func TestLiveSocketFlow(t *testing.T) {
	conn, hub := setup(t)

	greeting := next(t, conn)
	assert.Equal(t, TypeMode, greeting.Type)
	assert.Equal(t, string(mode.Upload), greeting.Mode)
	assert.Equal(t, 1, hub.ClientCount())

	// live frames are rejected while UPLOAD is selected
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, jpegFrame(t)))
	rejected := next(t, conn)
	assert.Equal(t, TypeError, rejected.Type)
	assert.Equal(t, "source_inactive", rejected.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"select_mode","mode":"Go Live (Camera)"}`)))
	switched := next(t, conn)
	assert.Equal(t, TypeMode, switched.Type)
	assert.Equal(t, string(mode.Live), switched.Mode)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, jpegFrame(t)))
	var gotAck, gotReport bool
	for !(gotAck && gotReport) {
		e := next(t, conn)
		switch e.Type {
		case TypeAck:
			gotAck = true
			assert.Equal(t, uint64(1), e.Seq)
		case TypeReport:
			gotReport = true
			assert.Equal(t, string(mode.Live), e.Source)
			assert.Equal(t, 1, e.Survivors)
			assert.Equal(t, []string{"> TARGET LOCKED | CONF=0.88"}, e.Log)
			assert.NotEmpty(t, e.Frame)
		default:
			t.Fatalf("unexpected message %q", e.Type)
		}
	}
}

func TestLiveSocketBadInput(t *testing.T) {
	conn, _ := setup(t)
	_ = next(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"select_mode","mode":"THERMAL"}`)))
	assert.Equal(t, "unknown_mode", next(t, conn).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "bad_command", next(t, conn).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_mode"}`)))
	assert.Equal(t, string(mode.Upload), next(t, conn).Mode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"select_mode","mode":"live"}`)))
	_ = next(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	assert.Equal(t, "bad_frame", next(t, conn).Code)
}

func TestEmptyLiveFrameIsNoSignal(t *testing.T) {
	conn, _ := setup(t)
	_ = next(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"select_mode","mode":"LIVE"}`)))
	_ = next(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{}))
	for {
		e := next(t, conn)
		if e.Type == TypeReport {
			assert.True(t, e.NoSignal)
			assert.Equal(t, []string{pipeline.NoSignalLog}, e.Log)
			assert.Empty(t, e.Frame)
			return
		}
	}
}

func TestNewReportMessage(t *testing.T) {
	rep := &pipeline.Report{
		Annotated: imaging.New(10, 8, color.Black),
		Log:       []string{pipeline.AreaClearLog},
		Threat:    pipeline.ThreatLow,
		Radar:     pipeline.RadarNormal,
		Elapsed:   1500 * time.Microsecond,
	}
	msg, err := NewReportMessage(pipeline.NewEvent(mode.Upload, rep), false)
	require.NoError(t, err)
	assert.Equal(t, 10, msg.FrameWidth)
	assert.Equal(t, 8, msg.FrameHeight)
	assert.Empty(t, msg.Frame)
	assert.Equal(t, 1.5, msg.ElapsedMs)
	assert.Equal(t, "LOW", msg.ThreatLevel)
	assert.NotNil(t, msg.Objects)
}
