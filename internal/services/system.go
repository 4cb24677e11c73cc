package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	goahttp "goa.design/goa/v3/http"

	"aeroguardian/internal/camera"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// ClientCounter reports connected streaming clients
type ClientCounter interface {
	ClientCount() int
}

// DetectorStatus describes the injected backend
type DetectorStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// SystemStatus is the body of GET /api/system/status
type SystemStatus struct {
	StartedAt     time.Time          `json:"started_at"`
	Uptime        string             `json:"uptime"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Mode          mode.Mode          `json:"mode"`
	Detector      DetectorStatus     `json:"detector"`
	Pipeline      *PipelineConfig    `json:"pipeline"`
	Live          pipeline.LiveStats `json:"live"`
	WSClients     int                `json:"ws_clients"`
	FeedClients   int                `json:"feed_clients"`
	Notifications bool               `json:"notifications"`
	Camera        *camera.Stats      `json:"camera,omitempty"`
}

// CameraStats reports server-side capture counters
type CameraStats interface {
	Stats() camera.Stats
}

// SystemService reports overall service state
type SystemService struct {
	console       Console
	pipeline      *pipeline.Pipeline
	wsClients     ClientCounter
	feedClients   ClientCounter
	notifications bool
	camera        CameraStats
	startTime     time.Time
	now           func() time.Time
	Mounts        []MountPoint
}

// NewSystemService creates a system service. Either counter may be nil.
func NewSystemService(c Console, p *pipeline.Pipeline, wsClients, feedClients ClientCounter, notifications bool) *SystemService {
	return &SystemService{
		console:       c,
		pipeline:      p,
		wsClients:     wsClients,
		feedClients:   feedClients,
		notifications: notifications,
		startTime:     time.Now(),
		now:           time.Now,
	}
}

// SetCamera adds server-side capture counters to the status
func (s *SystemService) SetCamera(c CameraStats) {
	s.camera = c
}

// Status returns the overall system status
func (s *SystemService) Status(ctx context.Context) *SystemStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	det := s.pipeline.Detector()
	st := &SystemStatus{
		StartedAt:     s.startTime,
		Uptime:        strings.TrimSpace(humanize.RelTime(s.startTime, s.now(), "", "")),
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
		Mode:          s.console.Mode(),
		Detector:      DetectorStatus{Name: det.Name(), Healthy: det.Healthy(ctx)},
		Pipeline:      toPipelineConfig(s.pipeline.Options()),
		Live:          s.console.LiveStats(),
		Notifications: s.notifications,
	}
	if s.wsClients != nil {
		st.WSClients = s.wsClients.ClientCount()
	}
	if s.feedClients != nil {
		st.FeedClients = s.feedClients.ClientCount()
	}
	if s.camera != nil {
		cs := s.camera.Stats()
		st.Camera = &cs
	}
	return st
}

// Mount registers the status route
func (s *SystemService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "status", http.MethodGet, "/api/system/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(r.Context(), w, http.StatusOK, s.Status(r.Context()))
		}),
	)
}
