package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"aeroguardian/internal/pipeline"
)

// HTTPDetector calls a remote YOLO inference service over multipart HTTP
type HTTPDetector struct {
	endpoint    string
	client      *http.Client
	labels      Labels
	healthCheck time.Time
	mu          sync.RWMutex
}

// HTTPConfig holds configuration for the HTTP detector
type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	Labels   Labels
}

// httpPredictResponse is the /detect response body
type httpPredictResponse struct {
	Detections      []wireDetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float32         `json:"inference_time_ms"`
	Device          string          `json:"device"`
}

// httpHealthResponse is the /health response body
type httpHealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPDetector creates a detector for the inference service at cfg.Endpoint
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second // GPU inference can be slow on a cold model
	}
	labels := cfg.Labels
	if labels == nil {
		labels = DefaultLabels()
	}
	return &HTTPDetector{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		labels:   labels,
	}
}

func (d *HTTPDetector) Name() string {
	return "http"
}

// Healthy checks the service health endpoint, caching success for 30 seconds
func (d *HTTPDetector) Healthy(ctx context.Context) bool {
	d.mu.RLock()
	if time.Since(d.healthCheck) < 30*time.Second {
		d.mu.RUnlock()
		return true
	}
	d.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health httpHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || !health.ModelLoaded {
		return false
	}

	d.mu.Lock()
	d.healthCheck = time.Now()
	d.mu.Unlock()
	return true
}

// Predict posts the frame as JPEG and decodes the returned detections
func (d *HTTPDetector) Predict(ctx context.Context, frame image.Image, threshold float32) ([]pipeline.Detection, error) {
	imageData, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(imageData); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.3f", threshold)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		d.invalidateHealth()
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detect returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result httpPredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	return toPipeline(result.Detections, d.labels, threshold)
}

func (d *HTTPDetector) invalidateHealth() {
	d.mu.Lock()
	d.healthCheck = time.Time{}
	d.mu.Unlock()
}

// Ensure HTTPDetector implements pipeline.Detector
var _ pipeline.Detector = (*HTTPDetector)(nil)
