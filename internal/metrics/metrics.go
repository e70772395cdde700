// Package metrics holds the Prometheus collectors shared by the
// tracker and serving-peer HTTP servers, plus a handler middleware
// that instruments every request.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds p2psync's Prometheus collectors on an isolated
// registry, so they never collide with the global default registry
// and each test can use its own instance.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec

	PeersKnown      prometheus.Gauge
	DownloadedBytes prometheus.Counter
	DownloadErrors  *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2psync_http_requests_total",
				Help: "Total HTTP requests handled, by method/path/status.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "p2psync_http_request_duration_seconds",
				Help: "HTTP request latency in seconds, by method/path/status.",
			},
			[]string{"method", "path", "status"},
		),
		PeersKnown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "p2psync_tracker_peers_known",
				Help: "Number of peers currently tracked.",
			},
		),
		DownloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "p2psync_download_bytes_total",
				Help: "Total bytes downloaded across all files.",
			},
		),
		DownloadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "p2psync_download_errors_total",
				Help: "Total per-peer download failures, by reason.",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSeconds,
		m.PeersKnown,
		m.DownloadedBytes,
		m.DownloadErrors,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next, recording request count and latency. If m is
// nil the handler is returned unchanged.
func Instrument(m *Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rec.status)
		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDurationSeconds.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
	})
}
