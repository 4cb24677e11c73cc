// Package stream serves the latest annotated frame as an MJPEG feed and as
// single snapshots.
package stream

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aeroguardian/internal/frame"
	"aeroguardian/internal/logging"
	"aeroguardian/internal/pipeline"
)

const boundary = "frame"

// Feed keeps the most recent annotated frame and pushes each new one to MJPEG clients
type Feed struct {
	frameMu  sync.RWMutex
	current  []byte
	seq      uint64
	updated  time.Time
	eventID  string
	survivor int

	clientsMu sync.RWMutex
	clients   map[chan []byte]bool

	log zerolog.Logger
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		clients: make(map[chan []byte]bool),
		log:     logging.Component("mjpeg"),
	}
}

// OnReport implements pipeline.ReportHandler. NO SIGNAL reports carry no
// image and leave the last frame in place.
func (f *Feed) OnReport(event *pipeline.Event) {
	if event == nil || event.Report == nil || event.Report.Annotated == nil {
		return
	}
	data, err := frame.EncodeJPEG(event.Report.Annotated)
	if err != nil {
		f.log.Error().Err(err).Str("event", event.ID).Msg("encode annotated frame")
		return
	}
	f.SetFrame(data, event.ID, event.Report.Survivors)
}

// SetFrame stores a JPEG and broadcasts it
func (f *Feed) SetFrame(jpegData []byte, eventID string, survivors int) {
	if len(jpegData) == 0 {
		return
	}

	f.frameMu.Lock()
	f.current = jpegData
	f.seq++
	f.updated = time.Now()
	f.eventID = eventID
	f.survivor = survivors
	f.frameMu.Unlock()

	f.clientsMu.RLock()
	for ch := range f.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip frame
		}
	}
	f.clientsMu.RUnlock()
}

// Current returns the latest JPEG and its sequence number (nil, 0 before the first frame)
func (f *Feed) Current() ([]byte, uint64) {
	f.frameMu.RLock()
	defer f.frameMu.RUnlock()
	return f.current, f.seq
}

// ClientCount returns the number of connected MJPEG clients
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

// ServeHTTP streams multipart/x-mixed-replace JPEG parts until the client leaves
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	f.clientsMu.Lock()
	f.clients[clientCh] = true
	f.clientsMu.Unlock()

	defer func() {
		f.clientsMu.Lock()
		delete(f.clients, clientCh)
		f.clientsMu.Unlock()
		f.log.Debug().Str("remote", r.RemoteAddr).Msg("feed client disconnected")
	}()

	f.log.Debug().Str("remote", r.RemoteAddr).Msg("feed client connected")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if current, _ := f.Current(); current != nil {
		if err := writePart(w, current); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-clientCh:
			if err := writePart(w, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// SnapshotHandler serves the latest annotated frame as a single JPEG
type SnapshotHandler struct {
	feed *Feed
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(feed *Feed) *SnapshotHandler {
	return &SnapshotHandler{feed: feed}
}

// ServeHTTP serves a single JPEG snapshot
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.feed.frameMu.RLock()
	data, seq, updated, eventID, survivors := h.feed.current, h.feed.seq, h.feed.updated, h.feed.eventID, h.feed.survivor
	h.feed.frameMu.RUnlock()

	if data == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	w.Header().Set("X-Event-Id", eventID)
	w.Header().Set("X-Survivors", strconv.Itoa(survivors))
	_, _ = w.Write(data)
}

// Ensure Feed implements pipeline.ReportHandler
var _ pipeline.ReportHandler = (*Feed)(nil)
