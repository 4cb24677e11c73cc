package services

import (
	"context"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"aeroguardian/internal/pipeline"
)

// OptionsStore persists pipeline options across restarts
type OptionsStore interface {
	SaveOptions(ctx context.Context, opts pipeline.Options) error
}

// PipelineConfig is the API view of pipeline.Options
type PipelineConfig struct {
	ConfThreshold            float32 `json:"conf_threshold"`
	IncludeMetrics           bool    `json:"include_metrics"`
	IncludeAlert             bool    `json:"include_alert"`
	PulseWidthFromConfidence bool    `json:"pulse_width_from_confidence"`
	ClampBoxes               bool    `json:"clamp_boxes"`
	DetectorTimeout          string  `json:"detector_timeout"`
}

// PipelineConfigPayload updates the fields that are set
type PipelineConfigPayload struct {
	ConfThreshold            *float32 `json:"conf_threshold,omitempty"`
	IncludeMetrics           *bool    `json:"include_metrics,omitempty"`
	IncludeAlert             *bool    `json:"include_alert,omitempty"`
	PulseWidthFromConfidence *bool    `json:"pulse_width_from_confidence,omitempty"`
	ClampBoxes               *bool    `json:"clamp_boxes,omitempty"`
	DetectorTimeout          *string  `json:"detector_timeout,omitempty"`
}

// ConfigService reads and updates the live pipeline options
type ConfigService struct {
	pipeline *pipeline.Pipeline
	store    OptionsStore
	Mounts   []MountPoint
}

// NewConfigService creates a config service. store may be nil, in which case
// updates only last until restart.
func NewConfigService(p *pipeline.Pipeline, store OptionsStore) *ConfigService {
	return &ConfigService{pipeline: p, store: store}
}

// Get returns the current options
func (s *ConfigService) Get(context.Context) *PipelineConfig {
	return toPipelineConfig(s.pipeline.Options())
}

// Update merges p into the current options, validates, applies and persists them
func (s *ConfigService) Update(ctx context.Context, p *PipelineConfigPayload) (*PipelineConfig, error) {
	opts := s.pipeline.Options()
	if p.ConfThreshold != nil {
		opts.ConfThreshold = *p.ConfThreshold
	}
	if p.IncludeMetrics != nil {
		opts.IncludeMetrics = *p.IncludeMetrics
	}
	if p.IncludeAlert != nil {
		opts.IncludeAlert = *p.IncludeAlert
	}
	if p.PulseWidthFromConfidence != nil {
		opts.PulseWidthFromConfidence = *p.PulseWidthFromConfidence
	}
	if p.ClampBoxes != nil {
		opts.ClampBoxes = *p.ClampBoxes
	}
	if p.DetectorTimeout != nil {
		d, err := time.ParseDuration(*p.DetectorTimeout)
		if err != nil {
			return nil, goa.PermanentError(ErrNameBadRequest, "detector_timeout: %s", err.Error())
		}
		opts.DetectorTimeout = d
	}

	if err := opts.Validate(); err != nil {
		return nil, goa.PermanentError(ErrNameBadRequest, "%s", err.Error())
	}
	if s.store != nil {
		if err := s.store.SaveOptions(ctx, opts); err != nil {
			return nil, err
		}
	}
	if err := s.pipeline.SetOptions(opts); err != nil {
		return nil, err
	}
	return toPipelineConfig(opts), nil
}

// Mount registers the config routes
func (s *ConfigService) Mount(mux goahttp.Muxer) {
	s.Mounts = append(s.Mounts,
		mount(mux, "get_config", http.MethodGet, "/api/config", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(r.Context(), w, http.StatusOK, s.Get(r.Context()))
		}),
		mount(mux, "update_config", http.MethodPut, "/api/config", func(w http.ResponseWriter, r *http.Request) {
			var p PipelineConfigPayload
			if err := decodeJSON(r, &p); err != nil {
				writeError(r.Context(), w, err)
				return
			}
			res, err := s.Update(r.Context(), &p)
			if err != nil {
				writeError(r.Context(), w, err)
				return
			}
			writeJSON(r.Context(), w, http.StatusOK, res)
		}),
	)
}

func toPipelineConfig(o pipeline.Options) *PipelineConfig {
	return &PipelineConfig{
		ConfThreshold:            o.ConfThreshold,
		IncludeMetrics:           o.IncludeMetrics,
		IncludeAlert:             o.IncludeAlert,
		PulseWidthFromConfidence: o.PulseWidthFromConfidence,
		ClampBoxes:               o.ClampBoxes,
		DetectorTimeout:          o.DetectorTimeout.String(),
	}
}
