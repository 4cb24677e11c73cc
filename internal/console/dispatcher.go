// Package console routes operator commands (mode selection, upload scans and
// live frames) to the pipeline and publishes the resulting reports.
package console

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

// ErrSourceInactive is returned when a frame arrives from the source the
// current mode hides (an upload while LIVE, a live frame while UPLOAD)
var ErrSourceInactive = errors.New("frame source is not active in the current mode")

// ErrUnknownCommand is returned for commands without a registered handler
var ErrUnknownCommand = errors.New("unknown command")

// Command names
const (
	CmdSelectMode = "select_mode"
	CmdScan       = "scan"
	CmdLiveFrame  = "live_frame"
)

// Command is an operator action
type Command interface {
	CommandName() string
}

// SelectMode switches the input mode
type SelectMode struct {
	Mode mode.Mode
}

// Scan runs the pipeline synchronously on an uploaded frame. A nil Frame
// yields the NO SIGNAL report.
type Scan struct {
	Frame image.Image
}

// LiveFrame hands a camera frame to the live scanner
type LiveFrame struct {
	Frame image.Image
}

func (SelectMode) CommandName() string { return CmdSelectMode }
func (Scan) CommandName() string       { return CmdScan }
func (LiveFrame) CommandName() string  { return CmdLiveFrame }

// Result carries whatever a handler produced
type Result struct {
	Visibility mode.Visibility
	Event      *pipeline.Event // set by Scan
	Seq        uint64          // set by LiveFrame
}

// Handler executes one command type
type Handler func(ctx context.Context, cmd Command) (Result, error)

// FailureHook observes pipeline failures from either source
type FailureHook func(source mode.Mode, err error)

// Dispatcher owns the mode controller, the live scanner and the command handlers
type Dispatcher struct {
	pipeline *pipeline.Pipeline
	modes    *mode.Controller
	bus      *pipeline.ReportBus
	live     *pipeline.LiveScanner

	mu       sync.RWMutex
	handlers map[string]Handler
	hooks    []FailureHook

	log zerolog.Logger
}

// NewDispatcher wires the default handlers. Leaving LIVE stops the live scanner.
func NewDispatcher(p *pipeline.Pipeline, modes *mode.Controller, bus *pipeline.ReportBus) *Dispatcher {
	d := &Dispatcher{
		pipeline: p,
		modes:    modes,
		bus:      bus,
		handlers: make(map[string]Handler),
		log:      logging.Component("console"),
	}
	d.live = pipeline.NewLiveScanner(p, bus, func(err error) {
		d.fail(mode.Live, err)
	})

	d.handlers[CmdSelectMode] = d.handleSelectMode
	d.handlers[CmdScan] = d.handleScan
	d.handlers[CmdLiveFrame] = d.handleLiveFrame

	modes.OnChange(func(from, to mode.Mode) {
		d.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("input mode changed")
		if from == mode.Live {
			d.live.Stop()
		}
	})
	return d
}

// Register installs or replaces the handler for name
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// OnFailure registers a hook for pipeline failures
func (d *Dispatcher) OnFailure(h FailureHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch routes cmd to its handler
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	if cmd == nil {
		return Result{}, fmt.Errorf("%w: nil", ErrUnknownCommand)
	}
	d.mu.RLock()
	h, ok := d.handlers[cmd.CommandName()]
	d.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.CommandName())
	}
	return h(ctx, cmd)
}

// SelectMode is shorthand for dispatching SelectMode
func (d *Dispatcher) SelectMode(ctx context.Context, m mode.Mode) (mode.Visibility, error) {
	res, err := d.Dispatch(ctx, SelectMode{Mode: m})
	return res.Visibility, err
}

// Scan is shorthand for dispatching Scan
func (d *Dispatcher) Scan(ctx context.Context, frame image.Image) (*pipeline.Event, error) {
	res, err := d.Dispatch(ctx, Scan{Frame: frame})
	return res.Event, err
}

// SubmitLive is shorthand for dispatching LiveFrame
func (d *Dispatcher) SubmitLive(ctx context.Context, frame image.Image) (uint64, error) {
	res, err := d.Dispatch(ctx, LiveFrame{Frame: frame})
	return res.Seq, err
}

// Mode returns the current input mode
func (d *Dispatcher) Mode() mode.Mode {
	return d.modes.Mode()
}

// Visibility returns the current panel visibility
func (d *Dispatcher) Visibility() mode.Visibility {
	return d.modes.Visibility()
}

// Pipeline returns the report aggregator
func (d *Dispatcher) Pipeline() *pipeline.Pipeline {
	return d.pipeline
}

// LiveStats returns live scanner counters
func (d *Dispatcher) LiveStats() pipeline.LiveStats {
	return d.live.Stats()
}

// Close stops the live scanner and waits for it
func (d *Dispatcher) Close() {
	d.live.Close()
}

func (d *Dispatcher) handleSelectMode(_ context.Context, cmd Command) (Result, error) {
	c, ok := cmd.(SelectMode)
	if !ok {
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	vis, err := d.modes.Select(c.Mode)
	return Result{Visibility: vis}, err
}

func (d *Dispatcher) handleScan(ctx context.Context, cmd Command) (Result, error) {
	c, ok := cmd.(Scan)
	if !ok {
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	if d.modes.Mode() != mode.Upload {
		return Result{Visibility: d.modes.Visibility()}, ErrSourceInactive
	}

	report, err := d.pipeline.Process(ctx, c.Frame)
	if err != nil {
		d.fail(mode.Upload, err)
		return Result{Visibility: d.modes.Visibility()}, err
	}

	event := pipeline.NewEvent(mode.Upload, report)
	if d.bus != nil {
		d.bus.Publish(event)
	}
	return Result{Visibility: d.modes.Visibility(), Event: event}, nil
}

func (d *Dispatcher) handleLiveFrame(_ context.Context, cmd Command) (Result, error) {
	c, ok := cmd.(LiveFrame)
	if !ok {
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	if d.modes.Mode() != mode.Live {
		return Result{Visibility: d.modes.Visibility()}, ErrSourceInactive
	}
	return Result{Visibility: d.modes.Visibility(), Seq: d.live.Submit(c.Frame)}, nil
}

func (d *Dispatcher) fail(source mode.Mode, err error) {
	d.log.Warn().Err(err).Str("source", string(source)).Msg("scan failed")

	d.mu.RLock()
	hooks := append([]FailureHook(nil), d.hooks...)
	d.mu.RUnlock()
	for _, h := range hooks {
		h(source, err)
	}
}
