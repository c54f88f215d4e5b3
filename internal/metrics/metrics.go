// Package metrics exports encoder telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/hwenc/internal/encoder"
)

const namespace = "hwenc"

// Metrics holds the encoder collectors. It implements encoder.Recorder.
type Metrics struct {
	reg prometheus.Gatherer

	FramesSubmitted prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	SubmitLatency   prometheus.Histogram
	PacketsWritten  prometheus.Counter
	BytesWritten    prometheus.Counter
	PacketSize      prometheus.Histogram
	Keyframes       prometheus.Counter
	DrainRetries    prometheus.Counter
	FatalErrors     prometheus.Counter
	Extradata       prometheus.Counter
}

var _ encoder.Recorder = (*Metrics)(nil)

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		FramesSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_submitted_total",
			Help:      "Frames queued to the encoder",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames rejected before reaching the encoder",
		}, []string{"reason"}),
		SubmitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_duration_seconds",
			Help:      "Time to convert and queue one frame",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
		}),
		PacketsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_written_total",
			Help:      "Encoded packets handed to the multiplexer",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Encoded bytes handed to the multiplexer",
		}),
		PacketSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "packet_size_bytes",
			Help:      "Size of encoded packets",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
		}),
		Keyframes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyframes_total",
			Help:      "Keyframes written",
		}),
		DrainRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_retries_total",
			Help:      "Output polls that found nothing ready",
		}),
		FatalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_errors_total",
			Help:      "Device errors that aborted a session",
		}),
		Extradata: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extradata_captured_total",
			Help:      "Sessions whose codec configuration was captured",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameSubmitted(latency time.Duration) {
	m.FramesSubmitted.Inc()
	m.SubmitLatency.Observe(latency.Seconds())
}

func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) PacketWritten(size int, keyframe bool) {
	m.PacketsWritten.Inc()
	m.BytesWritten.Add(float64(size))
	m.PacketSize.Observe(float64(size))
	if keyframe {
		m.Keyframes.Inc()
	}
}

func (m *Metrics) DrainRetry()        { m.DrainRetries.Inc() }
func (m *Metrics) FatalError()        { m.FatalErrors.Inc() }
func (m *Metrics) ExtradataCaptured() { m.Extradata.Inc() }
