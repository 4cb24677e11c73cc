package ws

import (
	"time"

	"aeroguardian/internal/frame"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// Message types
const (
	TypeReport = "report"
	TypeMode   = "mode"
	TypeError  = "error"
	TypeAck    = "ack"
)

// ReportMessage is the JSON form of a published report
type ReportMessage struct {
	Type        string            `json:"type"` // "report"
	EventID     string            `json:"event_id"`
	Source      mode.Mode         `json:"source"`
	Timestamp   time.Time         `json:"timestamp"`
	FrameWidth  int               `json:"frame_width,omitempty"`
	FrameHeight int               `json:"frame_height,omitempty"`
	Log         []string          `json:"log"`
	LogText     string            `json:"log_text"`
	Survivors   int               `json:"survivors"`
	ThreatLevel string            `json:"threat_level"`
	FPS         float64           `json:"fps"`
	RadarState  string            `json:"radar_state"`
	Alert       bool              `json:"alert"`
	NoSignal    bool              `json:"no_signal"`
	ElapsedMs   float64           `json:"elapsed_ms"`
	Objects     []ObjectDetection `json:"objects"`
	Frame       string            `json:"frame,omitempty"` // Base64 encoded annotated JPEG
}

// ObjectDetection represents a single detected human
type ObjectDetection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	BBox       [4]int  `json:"bbox"` // [x1, y1, x2, y2] in pixels
}

// ModeMessage reports the current input mode and panel visibility
type ModeMessage struct {
	Type          string    `json:"type"` // "mode"
	Mode          mode.Mode `json:"mode"`
	Label         string    `json:"label"`
	UploadVisible bool      `json:"upload_visible"`
	LiveVisible   bool      `json:"live_visible"`
}

// ErrorMessage tells one client its last message was rejected
type ErrorMessage struct {
	Type  string `json:"type"` // "error"
	Code  string `json:"code"`
	Error string `json:"error"`
}

// AckMessage acknowledges a live frame with its sequence number
type AckMessage struct {
	Type string `json:"type"` // "ack"
	Seq  uint64 `json:"seq"`
}

// ClientCommand is a JSON text message sent by a client
type ClientCommand struct {
	Type string `json:"type"` // "select_mode" or "get_mode"
	Mode string `json:"mode,omitempty"`
}

// NewReportMessage converts an event, embedding the annotated frame when includeFrame is set
func NewReportMessage(event *pipeline.Event, includeFrame bool) (*ReportMessage, error) {
	rep := event.Report
	msg := &ReportMessage{
		Type:        TypeReport,
		EventID:     event.ID,
		Source:      event.Source,
		Timestamp:   event.At,
		Log:         rep.Log,
		LogText:     rep.LogText(),
		Survivors:   rep.Survivors,
		ThreatLevel: string(rep.Threat),
		FPS:         rep.FPS,
		RadarState:  string(rep.Radar),
		Alert:       rep.Alert,
		NoSignal:    rep.NoSignal,
		ElapsedMs:   float64(rep.Elapsed.Microseconds()) / 1000,
		Objects:     make([]ObjectDetection, 0, len(rep.Humans)),
	}
	for _, h := range rep.Humans {
		msg.Objects = append(msg.Objects, ObjectDetection{
			Class:      h.Class,
			Confidence: h.Confidence,
			BBox:       [4]int{h.BBox.X1, h.BBox.Y1, h.BBox.X2, h.BBox.Y2},
		})
	}

	if rep.Annotated != nil {
		b := rep.Annotated.Bounds()
		msg.FrameWidth, msg.FrameHeight = b.Dx(), b.Dy()
		if includeFrame {
			encoded, err := frame.EncodeJPEGBase64(rep.Annotated)
			if err != nil {
				return nil, err
			}
			msg.Frame = encoded
		}
	}
	return msg, nil
}

// NewModeMessage describes the current mode
func NewModeMessage(m mode.Mode) *ModeMessage {
	vis := mode.VisibilityOf(m)
	return &ModeMessage{
		Type:          TypeMode,
		Mode:          m,
		Label:         m.Label(),
		UploadVisible: vis.UploadVisible,
		LiveVisible:   vis.LiveVisible,
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, err error) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Code: code, Error: err.Error()}
}
