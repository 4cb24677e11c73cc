package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/pipeline"
)

const (
	// DetectionServiceName is the gRPC service exposed by the inference server
	DetectionServiceName = "aeroguardian.detection.v1.DetectionService"
	// PredictMethod is the unary Predict method, carrying google.protobuf.Struct both ways
	PredictMethod = "/" + DetectionServiceName + "/Predict"
)

// GRPCDetector calls a remote inference server over gRPC
type GRPCDetector struct {
	endpoint   string
	conn       *grpc.ClientConn
	health     healthpb.HealthClient
	labels     Labels
	healthy    bool
	lastHealth time.Time
	healthMu   sync.RWMutex
}

// GRPCConfig holds configuration for the gRPC detector
type GRPCConfig struct {
	Endpoint string
	Labels   Labels
}

// NewGRPCDetector creates a client connection to the inference server.
// Extra dial options are appended after the defaults.
func NewGRPCDetector(cfg GRPCConfig, opts ...grpc.DialOption) (*GRPCDetector, error) {
	// Detect dead connections without waiting for a request to fail
	kacp := keepalive.ClientParameters{
		Time:                30 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.Endpoint, err)
	}

	labels := cfg.Labels
	if labels == nil {
		labels = DefaultLabels()
	}

	l := logging.Component("grpc-detector")
	l.Info().Str("endpoint", cfg.Endpoint).Msg("gRPC detector configured")

	return &GRPCDetector{
		endpoint: cfg.Endpoint,
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
		labels:   labels,
	}, nil
}

func (gd *GRPCDetector) Name() string {
	return "grpc"
}

// Healthy queries the standard gRPC health service, caching the answer for 30 seconds
func (gd *GRPCDetector) Healthy(ctx context.Context) bool {
	gd.healthMu.RLock()
	if time.Since(gd.lastHealth) < 30*time.Second {
		healthy := gd.healthy
		gd.healthMu.RUnlock()
		return healthy
	}
	gd.healthMu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := gd.health.Check(ctx, &healthpb.HealthCheckRequest{Service: DetectionServiceName})
	healthy := err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING

	gd.healthMu.Lock()
	gd.healthy = healthy
	gd.lastHealth = time.Now()
	gd.healthMu.Unlock()
	return healthy
}

// Predict sends the frame and threshold and decodes the detection list
func (gd *GRPCDetector) Predict(ctx context.Context, frame image.Image, threshold float32) ([]pipeline.Detection, error) {
	imageData, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}

	b := frame.Bounds()
	req, err := structpb.NewStruct(map[string]any{
		"image_jpeg":     base64.StdEncoding.EncodeToString(imageData),
		"conf_threshold": float64(threshold),
		"width":          b.Dx(),
		"height":         b.Dy(),
	})
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := gd.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict rpc: %w", err)
	}

	wire, err := decodeStructDetections(resp)
	if err != nil {
		return nil, err
	}
	return toPipeline(wire, gd.labels, threshold)
}

// Close releases the client connection
func (gd *GRPCDetector) Close() error {
	return gd.conn.Close()
}

func decodeStructDetections(resp *structpb.Struct) ([]wireDetection, error) {
	list := resp.GetFields()["detections"].GetListValue()
	if list == nil {
		return nil, nil
	}

	out := make([]wireDetection, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("detection %d: not an object", i)
		}
		d := wireDetection{
			Class:      fields["class"].GetStringValue(),
			ClassID:    int(fields["class_id"].GetNumberValue()),
			Confidence: float32(fields["confidence"].GetNumberValue()),
		}
		for _, c := range fields["bbox"].GetListValue().GetValues() {
			d.BBox = append(d.BBox, float32(c.GetNumberValue()))
		}
		out = append(out, d)
	}
	return out, nil
}

// Ensure GRPCDetector implements pipeline.Detector
var _ pipeline.Detector = (*GRPCDetector)(nil)
