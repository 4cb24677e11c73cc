// Package onnx runs YOLOv8 weights in-process through onnxruntime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"aeroguardian/internal/detection"
	"aeroguardian/internal/detection/yolo"
	"aeroguardian/internal/logging"
	"aeroguardian/internal/pipeline"
)

// DefaultInputSize is the square input edge of stock YOLOv8 exports
const DefaultInputSize = 640

// ErrMissingWeights is returned when the weights file does not exist
var ErrMissingWeights = errors.New("onnx weights file not found")

var (
	envOnce sync.Once
	envErr  error
)

// Config holds configuration for the ONNX detector
type Config struct {
	ModelPath   string
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	InputSize   int
	NumClasses  int // defaults to the highest label id + 1
	Labels      detection.Labels
	Threads     int
}

// Detector owns one onnxruntime session. The input and output tensors are
// bound to the session, so Predict calls are serialized.
type Detector struct {
	cfg     Config
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
	closed  bool
}

// New loads the weights at cfg.ModelPath and prepares the session
func New(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrMissingWeights)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingWeights, cfg.ModelPath)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.Labels == nil {
		cfg.Labels = detection.DefaultLabels()
	}
	if cfg.NumClasses <= 0 {
		for id := range cfg.Labels {
			cfg.NumClasses = max(cfg.NumClasses, id+1)
		}
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	d := &Detector{cfg: cfg}
	if err := d.initSession(); err != nil {
		return nil, err
	}

	l := logging.Component("onnx")
	l.Info().
		Str("model", cfg.ModelPath).
		Int("input", cfg.InputSize).
		Int("classes", cfg.NumClasses).
		Msg("ONNX detector loaded")
	return d, nil
}

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if libPath == "" {
			libPath = defaultLibraryPath()
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize onnxruntime from %s: %w", libPath, err)
		}
	})
	return envErr
}

func defaultLibraryPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func (d *Detector) initSession() error {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(d.cfg.Threads); err != nil {
		return fmt.Errorf("error setting threads: %w", err)
	}

	size := int64(d.cfg.InputSize)
	inputShape := ort.NewShape(1, 3, size, size)
	outputShape := ort.NewShape(1, int64(4+d.cfg.NumClasses), int64(yolo.Anchors(d.cfg.InputSize)))

	d.input, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fmt.Errorf("error creating input tensor: %w", err)
	}

	d.output, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		d.input.Destroy()
		return fmt.Errorf("error creating output tensor: %w", err)
	}

	d.session, err = ort.NewAdvancedSession(
		d.cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{d.input},
		[]ort.ArbitraryTensor{d.output},
		options,
	)
	if err != nil {
		d.input.Destroy()
		d.output.Destroy()
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

func (d *Detector) Name() string {
	return "onnx"
}

// Healthy reports whether the session is loaded
func (d *Detector) Healthy(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && d.session != nil
}

// Predict letterboxes the frame, runs the session and decodes the output
func (d *Detector) Predict(ctx context.Context, frame image.Image, threshold float32) ([]pipeline.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("onnx detector is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lb := yolo.Preprocess(frame, d.cfg.InputSize, d.input.GetData())
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	cands, err := yolo.Decode(d.output.GetData(), d.cfg.NumClasses, lb, threshold)
	if err != nil {
		return nil, err
	}
	cands = yolo.NMS(cands, yolo.DefaultIoUThreshold)
	return toDetections(cands, d.cfg.Labels), nil
}

// Close destroys the session and its tensors
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.session.Destroy()
	d.input.Destroy()
	d.output.Destroy()
	return nil
}

func toDetections(cands []yolo.Candidate, labels detection.Labels) []pipeline.Detection {
	out := make([]pipeline.Detection, 0, len(cands))
	for _, c := range cands {
		out = append(out, pipeline.Detection{
			Class:      labels.Name(c.ClassID),
			ClassID:    c.ClassID,
			Confidence: c.Score,
			BBox: pipeline.BBox{
				X1: int(c.X1),
				Y1: int(c.Y1),
				X2: int(c.X2),
				Y2: int(c.Y2),
			},
		})
	}
	return out
}

// Ensure Detector implements pipeline.Detector
var _ pipeline.Detector = (*Detector)(nil)
