package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photobooth"

// Processing modes recorded on ingested captures.
const (
	ModeServer = "server"
	ModeClient = "client"
	ModeNone   = "none"
)

type Metrics struct {
	registry           *prometheus.Registry
	capturesIngested   *prometheus.CounterVec
	processingFailures prometheus.Counter
	transformDuration  prometheus.Histogram
	uploadBytes        prometheus.Histogram
}

// New registers the capture metrics on a fresh registry, so that several
// instances can coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		capturesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_ingested_total",
			Help:      "Captures stored, by where face processing happened.",
		}, []string{"mode"}),
		processingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_processing_failures_total",
			Help:      "Face transforms that failed and fell back to the original upload.",
		}),
		transformDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_transform_duration_seconds",
			Help:      "Time spent cropping and masking a capture.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_upload_bytes",
			Help:      "Size of accepted uploads.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.capturesIngested,
		m.processingFailures,
		m.transformDuration,
		m.uploadBytes,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) CaptureIngested(mode string, size int64) {
	m.capturesIngested.WithLabelValues(mode).Inc()
	m.uploadBytes.Observe(float64(size))
}

func (m *Metrics) ProcessingFailed() {
	m.processingFailures.Inc()
}

func (m *Metrics) ObserveTransform(d time.Duration) {
	m.transformDuration.Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
