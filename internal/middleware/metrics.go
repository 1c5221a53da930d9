package middleware

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts check-updates findings by status
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpt_checks_total",
			Help: "Packages checked against the index, by status",
		},
		[]string{"status"},
	)

	// PublishTotal counts update-index runs by result
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bpt_publish_total",
			Help: "Package publish attempts, by result",
		},
		[]string{"result"},
	)

	ArchiveBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bpt_archive_bytes",
			Help:    "Size of written package archives",
			Buckets: prometheus.ExponentialBuckets(1<<16, 4, 8),
		},
	)

	IndexPlatforms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bpt_index_platforms",
			Help: "Platforms in the index being served",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		p := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, p, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, p).Observe(duration)
		httpResponseSize.WithLabelValues(r.Method, p).Observe(float64(ww.BytesWritten()))
	})
}

var archiveSuffixes = []string{".tar.bz2", ".tar.gz", ".tar.xz", ".tar.zst", ".zip"}

// normalizePath folds file paths into a few labels so every archive in the
// served directory does not get its own series.
func normalizePath(p string) string {
	switch p {
	case "/", "/metrics", "/healthz", "/version":
		return p
	}
	lower := strings.ToLower(p)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return "/{archive}"
		}
	}
	switch path.Ext(lower) {
	case ".json":
		return "/{index}"
	case ".sig":
		return "/{signature}"
	default:
		return "/{file}"
	}
}
