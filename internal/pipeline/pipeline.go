package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"aeroguardian/internal/logging"
)

// Pipeline turns one frame into one Report. It holds no per-frame state;
// the detector is shared read-only across calls.
type Pipeline struct {
	detector Detector
	opts     Options
	mu       sync.RWMutex
	now      func() time.Time
	log      zerolog.Logger
}

// New creates a pipeline around an injected detector
func New(detector Detector, opts Options) (*Pipeline, error) {
	if detector == nil {
		return nil, errNoDetector
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		detector: detector,
		opts:     opts,
		now:      time.Now,
		log:      logging.Component("pipeline"),
	}, nil
}

// Options returns the active options
func (p *Pipeline) Options() Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts
}

// SetOptions swaps the options used by subsequent invocations
func (p *Pipeline) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
	p.log.Info().
		Bool("include_metrics", opts.IncludeMetrics).
		Bool("include_alert", opts.IncludeAlert).
		Bool("pulse_width", opts.PulseWidthFromConfidence).
		Msg("pipeline options updated")
	return nil
}

// Detector returns the injected detector
func (p *Pipeline) Detector() Detector {
	return p.detector
}

// Process runs the full detection-to-report pipeline on one frame.
// A nil frame yields the NO SIGNAL report without touching the detector.
// On any error no report is returned.
func (p *Pipeline) Process(ctx context.Context, frame image.Image) (*Report, error) {
	if frame == nil {
		return NoSignalReport(), nil
	}

	opts := p.Options()
	start := p.now()

	rgb := imaging.Clone(frame)

	detectCtx := ctx
	if opts.DetectorTimeout > 0 {
		var cancel context.CancelFunc
		detectCtx, cancel = context.WithTimeout(ctx, opts.DetectorTimeout)
		defer cancel()
	}

	raw, err := p.detector.Predict(detectCtx, rgb, opts.ConfThreshold)
	if err == nil {
		// a backend that ignores its context must not outlive the deadline
		err = detectCtx.Err()
	}
	if err != nil {
		p.log.Warn().Err(err).Str("detector", p.detector.Name()).Msg("detector failed")
		return nil, &InferenceFailure{Detector: p.detector.Name(), Cause: err}
	}

	humans := FilterHumans(raw)
	if err := Validate(humans); err != nil {
		return nil, err
	}

	annotated := Annotate(rgb, humans, opts.style())
	report := &Report{
		Annotated: annotated,
		Log:       BuildEventLog(humans),
		Survivors: len(humans),
		Threat:    ClassifyThreat(len(humans)),
		Radar:     RadarNormal,
		Humans:    humans,
	}

	report.Elapsed = p.now().Sub(start)
	if opts.IncludeMetrics {
		report.FPS = ComputeFPS(report.Elapsed)
	}
	if opts.IncludeAlert {
		report.Radar, report.Alert = EmitAlert(report.Survivors)
	}

	p.log.Debug().
		Int("raw", len(raw)).
		Int("survivors", report.Survivors).
		Str("threat", string(report.Threat)).
		Dur("elapsed", report.Elapsed).
		Msg("frame processed")
	return report, nil
}
