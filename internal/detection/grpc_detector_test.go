package detection

import (
	"context"
	"encoding/base64"
	"net"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type predictFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// startInferenceServer serves a Predict handler and the health service over bufconn
func startInferenceServer(t *testing.T, predict predictFunc, serving bool) *GRPCDetector {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()

	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: DetectionServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Predict",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := &structpb.Struct{}
				if err := dec(req); err != nil {
					return nil, err
				}
				return predict(ctx, req)
			},
		}},
	}, struct{}{})

	hs := health.NewServer()
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(DetectionServiceName, st)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	d, err := NewGRPCDetector(GRPCConfig{Endpoint: "passthrough:///bufnet"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestGRPCDetectorPredict(t *testing.T) {
	d := startInferenceServer(t, func(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		f := req.GetFields()
		if f["conf_threshold"].GetNumberValue() < 0.29 || f["width"].GetNumberValue() != 64 {
			return nil, status.Error(codes.InvalidArgument, "unexpected request")
		}
		raw, err := base64.StdEncoding.DecodeString(f["image_jpeg"].GetStringValue())
		if err != nil || len(raw) == 0 {
			return nil, status.Error(codes.InvalidArgument, "missing image")
		}
		return structpb.NewStruct(map[string]any{
			"detections": []any{
				map[string]any{"class": "person", "class_id": 0, "confidence": 0.77, "bbox": []any{3, 4, 20, 30}},
				map[string]any{"class_id": 0, "confidence": 0.4, "bbox": []any{40, 10, 50, 40}},
			},
		})
	}, true)

	dets, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "person", dets[0].Class)
	assert.InDelta(t, 0.77, dets[0].Confidence, 1e-6)
	assert.Equal(t, 20, dets[0].BBox.X2)
	assert.Equal(t, "person", dets[1].Class, "class id resolved through labels")
}

func TestGRPCDetectorAppliesThreshold(t *testing.T) {
	d := startInferenceServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]any{
			"detections": []any{
				map[string]any{"class": "person", "confidence": 0.05, "bbox": []any{1, 2, 10, 20}},
				map[string]any{"class": "person", "confidence": 0.55, "bbox": []any{8, 8, 30, 40}},
			},
		})
	}, true)

	dets, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.55, dets[0].Confidence, 1e-6)
	assert.Equal(t, 8, dets[0].BBox.X1)
}

func TestGRPCDetectorPredictError(t *testing.T) {
	d := startInferenceServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return nil, status.Error(codes.Internal, "cuda out of memory")
	}, true)

	_, err := d.Predict(context.Background(), testFrame(), 0.3)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPCDetectorEmptyResponse(t *testing.T) {
	d := startInferenceServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return &structpb.Struct{}, nil
	}, true)

	dets, err := d.Predict(context.Background(), imaging.New(8, 8, testFrame().At(0, 0)), 0.3)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestGRPCDetectorHealthy(t *testing.T) {
	assert.True(t, startInferenceServer(t, nil, true).Healthy(context.Background()))
	assert.False(t, startInferenceServer(t, nil, false).Healthy(context.Background()))
}
