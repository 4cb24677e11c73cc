package pipeline

import (
	"image"
	"strings"
	"time"
)

// ThreatLevel is the ordinal threat classification derived from the survivor count
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MEDIUM"
	ThreatHigh   ThreatLevel = "HIGH"
)

// RadarState mirrors survivor presence for the console radar
type RadarState string

const (
	RadarNormal RadarState = "NORMAL"
	RadarAlert  RadarState = "ALERT"
)

// Log lines emitted by the pipeline
const (
	NoSignalLog   = "NO SIGNAL"
	AreaClearLog  = "> AREA CLEAR"
	targetLockFmt = "> TARGET LOCKED | CONF=%.2f"
	humanLabelFmt = "HUMAN %.2f"
)

// BBox is a bounding box in integer pixel coordinates
type BBox struct {
	X1 int `json:"x1"` // Left
	Y1 int `json:"y1"` // Top
	X2 int `json:"x2"` // Right
	Y2 int `json:"y2"` // Bottom
}

// Rect returns the box as an inclusive-exclusive image.Rectangle
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2+1, b.Y2+1)
}

// Detection is one raw detector output
type Detection struct {
	Class      string  `json:"class"`
	ClassID    int     `json:"class_id"`
	Confidence float32 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Report is the result of one pipeline invocation. It is built fresh per call
// and never merged with other reports.
type Report struct {
	Annotated image.Image   `json:"-"`
	Log       []string      `json:"log"`
	Survivors int           `json:"survivors"`
	Threat    ThreatLevel   `json:"threat_level"`
	FPS       float64       `json:"fps"`
	Radar     RadarState    `json:"radar_state"`
	Alert     bool          `json:"alert"`
	NoSignal  bool          `json:"no_signal"`
	Humans    []Detection   `json:"detections"`
	Elapsed   time.Duration `json:"-"`
}

// LogText joins the event log for display
func (r *Report) LogText() string {
	return strings.Join(r.Log, "\n")
}

// NoSignalReport is returned when no frame was acquired
func NoSignalReport() *Report {
	return &Report{
		Annotated: nil,
		Log:       []string{NoSignalLog},
		Survivors: 0,
		Threat:    ThreatLow,
		FPS:       0,
		Radar:     RadarNormal,
		Alert:     false,
		NoSignal:  true,
	}
}
