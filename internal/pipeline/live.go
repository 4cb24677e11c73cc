package pipeline

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/mode"
)

// LiveStats counts live-scan outcomes
type LiveStats struct {
	Submitted  uint64 `json:"submitted"`
	Completed  uint64 `json:"completed"`
	Superseded uint64 `json:"superseded"`
	Failed     uint64 `json:"failed"`
}

// LiveScanner runs the pipeline on live-camera frames. A new frame supersedes
// the scan in flight: its context is cancelled and its result dropped, so at
// most one scan runs and frames never queue.
type LiveScanner struct {
	pipeline *Pipeline
	bus      *ReportBus
	onError  func(error)

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	// pubMu is taken before mu
	pubMu         sync.Mutex
	lastPublished uint64

	submitted  atomic.Uint64
	completed  atomic.Uint64
	superseded atomic.Uint64
	failed     atomic.Uint64

	log zerolog.Logger
}

// NewLiveScanner creates a scanner publishing accepted reports to bus.
// onError, if set, receives failures of scans that were not superseded.
func NewLiveScanner(p *Pipeline, bus *ReportBus, onError func(error)) *LiveScanner {
	return &LiveScanner{
		pipeline: p,
		bus:      bus,
		onError:  onError,
		log:      logging.Component("live"),
	}
}

// Submit starts scanning frame and returns its sequence number (0 once closed)
func (s *LiveScanner) Submit(frame image.Image) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.submitted.Add(1)
	go s.run(ctx, cancel, seq, frame)
	return seq
}

func (s *LiveScanner) run(ctx context.Context, cancel context.CancelFunc, seq uint64, frame image.Image) {
	defer s.wg.Done()
	defer cancel()

	report, err := s.pipeline.Process(ctx, frame)

	if !s.isCurrent(seq) {
		s.superseded.Add(1)
		s.log.Debug().Uint64("seq", seq).Msg("dropping superseded live scan")
		return
	}
	if err != nil {
		s.failed.Add(1)
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if !s.isCurrent(seq) || seq <= s.lastPublished {
		s.superseded.Add(1)
		return
	}
	s.lastPublished = seq
	s.completed.Add(1)
	if s.bus != nil {
		s.bus.Publish(NewEvent(mode.Live, report))
	}
}

func (s *LiveScanner) isCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && seq == s.seq
}

// Stop cancels the scan in flight and drops its result. A report already being
// published is delivered before Stop returns; none is published after. The
// scanner stays usable.
func (s *LiveScanner) Stop() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}

// Wait blocks until every started scan has returned
func (s *LiveScanner) Wait() {
	s.wg.Wait()
}

// Close stops the scanner and waits for in-flight work
func (s *LiveScanner) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Stats returns a snapshot of live-scan counters
func (s *LiveScanner) Stats() LiveStats {
	return LiveStats{
		Submitted:  s.submitted.Load(),
		Completed:  s.completed.Load(),
		Superseded: s.superseded.Load(),
		Failed:     s.failed.Load(),
	}
}
