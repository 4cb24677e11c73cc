// Package camera captures live frames on the server side, from a V4L2
// device, an RTSP/HTTP stream through ffmpeg, or by polling a JPEG snapshot
// URL, and hands each decoded frame to a sink.
package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"aeroguardian/internal/frame"
	"aeroguardian/internal/logging"
)

const (
	maxFrameBytes = 8 << 20
	restartDelay  = 2 * time.Second
)

// Config describes the capture device
type Config struct {
	Device string
	FPS    int
	Width  int
	Height int
	FFmpeg string
}

// Sink receives decoded frames. It must not block.
type Sink func(ctx context.Context, img image.Image) error

// Stats counts capture outcomes
type Stats struct {
	Running      bool      `json:"running"`
	Captured     uint64    `json:"captured"`
	DecodeErrors uint64    `json:"decode_errors"`
	Rejected     uint64    `json:"rejected"`
	Restarts     uint64    `json:"restarts"`
	LastFrame    time.Time `json:"last_frame"`
}

// Source runs one capture loop at a time
type Source struct {
	cfg    Config
	sink   Sink
	client *http.Client
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	captured     atomic.Uint64
	decodeErrors atomic.Uint64
	rejected     atomic.Uint64
	restarts     atomic.Uint64
	lastFrame    atomic.Int64
}

// New validates cfg and creates a stopped source
func New(cfg Config, sink Sink) (*Source, error) {
	if cfg.Device == "" {
		return nil, errors.New("camera device is required")
	}
	if sink == nil {
		return nil, errors.New("camera sink is required")
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 5
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	return &Source{
		cfg:    cfg,
		sink:   sink,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logging.Component("camera").With().Str("device", cfg.Device).Logger(),
	}, nil
}

// Start begins capturing. Starting a running source is a no-op.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.log.Info().Int("fps", s.cfg.FPS).Msg("capture started")
}

// Stop ends capturing and waits for the loop to exit
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("capture stopped")
}

// Running reports whether a capture loop is active
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stats returns a snapshot of the counters
func (s *Source) Stats() Stats {
	st := Stats{
		Running:      s.Running(),
		Captured:     s.captured.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Rejected:     s.rejected.Load(),
		Restarts:     s.restarts.Load(),
	}
	if ns := s.lastFrame.Load(); ns > 0 {
		st.LastFrame = time.Unix(0, ns)
	}
	return st
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		var err error
		if IsSnapshotURL(s.cfg.Device) {
			err = s.pollSnapshots(ctx)
		} else {
			err = s.streamFFmpeg(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Dur("retry_in", restartDelay).Msg("capture ended, restarting")
		s.restarts.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// pollSnapshots fetches a still from an HTTP endpoint at the configured rate
func (s *Source) pollSnapshots(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.FPS)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		data, err := s.fetch(ctx)
		if err != nil {
			failures++
			if failures >= 10 {
				return fmt.Errorf("snapshot endpoint unreachable: %w", err)
			}
			continue
		}
		failures = 0
		s.emit(ctx, data)
	}
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Device, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
}

// streamFFmpeg runs ffmpeg with an MJPEG image pipe on stdout
func (s *Source) streamFFmpeg(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.FFmpeg, FFmpegArgs(s.cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: 4096}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	if err := s.readFrames(ctx, stdout); err != nil {
		s.log.Debug().Err(err).Msg("frame reader stopped")
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ffmpeg: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return errors.New("ffmpeg exited")
}

// readFrames splits a concatenated JPEG stream and emits every frame
func (s *Source) readFrames(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	scanner.Split(SplitJPEG)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())
		s.emit(ctx, data)
	}
	return scanner.Err()
}

func (s *Source) emit(ctx context.Context, data []byte) {
	img, err := frame.DecodeBytes(data)
	if err != nil {
		s.decodeErrors.Add(1)
		return
	}

	seq := s.captured.Add(1)
	s.lastFrame.Store(time.Now().UnixNano())
	if err := s.sink(ctx, img); err != nil {
		s.rejected.Add(1)
		s.log.Debug().Err(err).Msg("frame rejected")
	}
	if seq%100 == 0 {
		s.log.Debug().Uint64("frames", seq).Msg("capture progress")
	}
}

// IsSnapshotURL reports whether device is an HTTP endpoint serving single
// JPEG images rather than a stream
func IsSnapshotURL(device string) bool {
	if !strings.HasPrefix(device, "http://") && !strings.HasPrefix(device, "https://") {
		return false
	}
	return strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") ||
		strings.Contains(device, "snapshot") || strings.Contains(device, "image")
}

// FFmpegArgs builds the ffmpeg command line writing MJPEG frames to stdout
func FFmpegArgs(cfg Config) []string {
	fps := fmt.Sprintf("%d", cfg.FPS)
	pipe := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}

	args := []string{"-loglevel", "error"}
	switch {
	case strings.HasPrefix(cfg.Device, "rtsp://"):
		args = append(args, "-rtsp_transport", "tcp", "-i", cfg.Device, "-r", fps)
	case strings.HasPrefix(cfg.Device, "http://"), strings.HasPrefix(cfg.Device, "https://"):
		args = append(args, "-i", cfg.Device, "-r", fps)
	default:
		args = append(args, "-f", "v4l2")
		if cfg.Width > 0 && cfg.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		}
		args = append(args, "-framerate", fps, "-i", cfg.Device)
	}
	return append(args, pipe...)
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// SplitJPEG is a bufio.SplitFunc yielding complete SOI..EOI JPEG images.
// Bytes before the first start marker are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF that may begin a marker
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + 2 + len(jpegEOI)
	return end, data[start:end], nil
}

// limitedBuffer keeps the first max bytes of ffmpeg's stderr
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
