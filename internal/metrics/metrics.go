// Package metrics exposes scan telemetry to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aeroguardian/internal/mode"
	"aeroguardian/internal/pipeline"
)

const namespace = "aeroguardian"

// Recorder turns published reports and failures into Prometheus series
type Recorder struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	noSignal     prometheus.Counter
	survivors    *prometheus.GaugeVec
	threat       *prometheus.GaugeVec
	fps          prometheus.Gauge
	alerts       prometheus.Counter
	scanDuration *prometheus.HistogramVec
	failures     *prometheus.CounterVec
}

// New creates a recorder with its own registry, including Go runtime and process collectors
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Reports produced, by frame source",
		}, []string{"source"}),
		noSignal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_signal_total",
			Help:      "Scans requested without a frame",
		}),
		survivors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "survivors",
			Help:      "Humans detected in the latest report, by frame source",
		}, []string{"source"}),
		threat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threat_level",
			Help:      "1 for the threat level of the latest report, 0 otherwise",
		}, []string{"level"}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Frame rate reported by the latest scan",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Reports that raised the radar alert",
		}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Pipeline time per frame, detector call included",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_failures_total",
			Help:      "Failed scans, by frame source and kind",
		}, []string{"source", "kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.scans, r.noSignal, r.survivors, r.threat, r.fps, r.alerts, r.scanDuration, r.failures,
	)
	for _, lvl := range []pipeline.ThreatLevel{pipeline.ThreatLow, pipeline.ThreatMedium, pipeline.ThreatHigh} {
		r.threat.WithLabelValues(string(lvl)).Set(0)
	}
	return r
}

// OnReport implements pipeline.ReportHandler
func (r *Recorder) OnReport(event *pipeline.Event) {
	if event == nil || event.Report == nil {
		return
	}
	source := sourceLabel(event.Source)
	rep := event.Report

	r.scans.WithLabelValues(source).Inc()
	if rep.NoSignal {
		r.noSignal.Inc()
		return
	}

	r.survivors.WithLabelValues(source).Set(float64(rep.Survivors))
	for _, lvl := range []pipeline.ThreatLevel{pipeline.ThreatLow, pipeline.ThreatMedium, pipeline.ThreatHigh} {
		v := 0.0
		if rep.Threat == lvl {
			v = 1
		}
		r.threat.WithLabelValues(string(lvl)).Set(v)
	}
	if rep.FPS > 0 {
		r.fps.Set(rep.FPS)
	}
	if rep.Alert {
		r.alerts.Inc()
	}
	r.scanDuration.WithLabelValues(source).Observe(rep.Elapsed.Seconds())
}

// OnFailure counts a failed scan; its signature matches console.FailureHook
func (r *Recorder) OnFailure(source mode.Mode, err error) {
	r.failures.WithLabelValues(sourceLabel(source), failureKind(err)).Inc()
}

// RegisterGaugeFunc exposes a value computed at scrape time
func (r *Recorder) RegisterGaugeFunc(name, help string, fn func() float64) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the Prometheus HTTP handler
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func sourceLabel(m mode.Mode) string {
	switch m {
	case mode.Upload:
		return "upload"
	case mode.Live:
		return "live"
	default:
		return "unknown"
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrDataIntegrity):
		return "integrity"
	case errors.Is(err, pipeline.ErrInferenceFailure):
		return "inference"
	default:
		return "other"
	}
}

// Ensure Recorder implements pipeline.ReportHandler
var _ pipeline.ReportHandler = (*Recorder)(nil)
