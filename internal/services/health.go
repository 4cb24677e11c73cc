package services

import (
	"context"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"aeroguardian/internal/pipeline"
)

// HealthService implements the liveness and readiness probes
type HealthService struct {
	detector pipeline.Detector
	timeout  time.Duration
	Mounts   []MountPoint
}

// NewHealthService creates a health service probing the given detector
func NewHealthService(detector pipeline.Detector) *HealthService {
	return &HealthService{detector: detector, timeout: 3 * time.Second}
}

// Healthz implements the liveness probe
func (s *HealthService) Healthz(context.Context) error {
	return nil
}

// Readyz reports ready once the detector backend can serve predictions
func (s *HealthService) Readyz(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if !s.detector.Healthy(ctx) {
		return goa.PermanentError(ErrNameUnavailable, "detector %q is not ready", s.detector.Name())
	}
	return nil
}

// Mount registers the probe routes
func (s *HealthService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "healthz", http.MethodGet, "/healthz", s.probe(s.Healthz)),
		mount(mux, "readyz", http.MethodGet, "/readyz", s.probe(s.Readyz)),
	)
}

func (s *HealthService) probe(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
