package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	JobsCreated   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsEvicted   prometheus.Counter
	Frames        *prometheus.CounterVec
	Detections    *prometheus.CounterVec
	FrameLatency  prometheus.Histogram

	// Runs currently executing
	ActiveRuns atomic.Int64
	// Started jobs waiting for a worker
	QueuedRuns atomic.Int64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.JobsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocounter_jobs_created_total",
		Help: "Uploaded videos by counting mode",
	}, []string{"mode"})
	m.JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocounter_jobs_completed_total",
		Help: "Runs that drained their source",
	}, []string{"mode"})
	m.JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocounter_jobs_failed_total",
		Help: "Runs that aborted",
	}, []string{"mode"})
	m.JobsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "videocounter_jobs_evicted_total",
		Help: "Terminal jobs removed after the retention window",
	})
	m.Frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocounter_frames_processed_total",
		Help: "Frames run through detection",
	}, []string{"mode"})
	m.Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "videocounter_detections_total",
		Help: "Counted detections by class label",
	}, []string{"label"})
	m.FrameLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "videocounter_frame_seconds",
		Help:    "Time to detect, annotate and write one frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	m.registry.MustRegister(
		m.JobsCreated,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsEvicted,
		m.Frames,
		m.Detections,
		m.FrameLatency,
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "videocounter_active_runs",
			Help: "Runs currently executing",
		},
		func() float64 { return float64(m.ActiveRuns.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "videocounter_queued_runs",
			Help: "Started jobs waiting for a worker",
		},
		func() float64 { return float64(m.QueuedRuns.Load()) },
	))
}

// ObserveFrame records one processed frame and its per-class counts.
func (m *Metrics) ObserveFrame(mode string, perClass map[string]int, elapsed time.Duration) {
	m.Frames.WithLabelValues(mode).Inc()
	for label, n := range perClass {
		if n > 0 {
			m.Detections.WithLabelValues(label).Add(float64(n))
		}
	}
	m.FrameLatency.Observe(elapsed.Seconds())
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
