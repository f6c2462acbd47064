// Package metrics exposes Prometheus instrumentation for the playback
// pipeline: request/decode counters per stream, fetch latency, buffer fill
// level, and quality switch counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the playback collectors. A nil *Metrics is valid and records
// nothing, so instrumentation points never need nil checks at call sites.
type Metrics struct {
	registry *prometheus.Registry

	framesRequested *prometheus.CounterVec
	framesDecoded   *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	qualitySwitches *prometheus.CounterVec
	bufferLevel     prometheus.Gauge
	fetchDuration   prometheus.Histogram
}

// New creates and registers the playback metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvol_frames_requested_total",
			Help: "Decode requests issued, by stream",
		}, []string{"stream"}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvol_frames_decoded_total",
			Help: "Decode requests completed successfully, by stream",
		}, []string{"stream"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvol_decode_failures_total",
			Help: "Decode requests that failed, by stream",
		}, []string{"stream"}),
		qualitySwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uvol_quality_switches_total",
			Help: "Adaptive quality target switches, by direction",
		}, []string{"direction"}),
		bufferLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uvol_buffer_level",
			Help: "Geometry buffer fill level as a fraction of the lookahead window",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uvol_fetch_duration_seconds",
			Help:    "Wall time to fetch and decode one scheduler batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	registry.MustRegister(
		m.framesRequested,
		m.framesDecoded,
		m.decodeFailures,
		m.qualitySwitches,
		m.bufferLevel,
		m.fetchDuration,
	)

	return m
}

// IncFramesRequested adds n to the request counter for a stream.
func (m *Metrics) IncFramesRequested(stream string, n int) {
	if m == nil {
		return
	}
	m.framesRequested.WithLabelValues(stream).Add(float64(n))
}

// IncFramesDecoded increments the decoded counter for a stream.
func (m *Metrics) IncFramesDecoded(stream string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(stream).Inc()
}

// IncDecodeFailures increments the failure counter for a stream.
func (m *Metrics) IncDecodeFailures(stream string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(stream).Inc()
}

// IncQualitySwitches increments the switch counter for "up" or "down".
func (m *Metrics) IncQualitySwitches(direction string) {
	if m == nil {
		return
	}
	m.qualitySwitches.WithLabelValues(direction).Inc()
}

// SetBufferLevel records the geometry buffer fill fraction.
func (m *Metrics) SetBufferLevel(fraction float64) {
	if m == nil {
		return
	}
	m.bufferLevel.Set(fraction)
}

// ObserveFetchDuration records one batch fetch duration in seconds.
func (m *Metrics) ObserveFetchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(seconds)
}

// Handler returns an http.Handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
