package scanner

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds scanner counters and their Prometheus collectors.
type Metrics struct {
	Cycles          atomic.Uint64
	Detections      atomic.Uint64
	InferenceErrors atomic.Uint64
	CaptureErrors   atomic.Uint64
	SkippedFrames   atomic.Uint64
	Disposals       atomic.Uint64
	Misses          atomic.Uint64
	RecordErrors    atomic.Uint64
	Tracked         atomic.Int64

	registry *prometheus.Registry
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Cycles          uint64 `json:"cycles"`
	Detections      uint64 `json:"detections"`
	InferenceErrors uint64 `json:"inferenceErrors"`
	CaptureErrors   uint64 `json:"captureErrors"`
	SkippedFrames   uint64 `json:"skippedFrames"`
	Disposals       uint64 `json:"disposals"`
	Misses          uint64 `json:"misses"`
	RecordErrors    uint64 `json:"recordErrors"`
	Tracked         int64  `json:"tracked"`
}

// NewMetrics creates Metrics backed by a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) register() {
	m.counter("co2tracker_scanner_cycles_total", "Polling cycles completed", &m.Cycles)
	m.counter("co2tracker_scanner_detections_total", "Detections accepted after filtering", &m.Detections)
	m.counter("co2tracker_scanner_inference_errors_total", "Detector calls that failed", &m.InferenceErrors)
	m.counter("co2tracker_scanner_capture_errors_total", "Sessions ended by a capture error", &m.CaptureErrors)
	m.counter("co2tracker_scanner_skipped_frames_total", "Cycles lost to a transient camera failure", &m.SkippedFrames)
	m.counter("co2tracker_scanner_disposals_total", "Disposals into the correct bin", &m.Disposals)
	m.counter("co2tracker_scanner_misses_total", "Confirmed items that left without a correct disposal", &m.Misses)
	m.counter("co2tracker_scanner_record_errors_total", "Disposals that could not be queued for storage", &m.RecordErrors)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "co2tracker_scanner_tracked_labels",
			Help: "Labels currently in the tracking table",
		},
		func() float64 { return float64(m.Tracked.Load()) },
	))
}

// Registry exposes the collectors so callers can add their own.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Cycles:          m.Cycles.Load(),
		Detections:      m.Detections.Load(),
		InferenceErrors: m.InferenceErrors.Load(),
		CaptureErrors:   m.CaptureErrors.Load(),
		SkippedFrames:   m.SkippedFrames.Load(),
		Disposals:       m.Disposals.Load(),
		Misses:          m.Misses.Load(),
		RecordErrors:    m.RecordErrors.Load(),
		Tracked:         m.Tracked.Load(),
	}
}
