package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Directory sync metrics.
var (
	syncPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_sync_passes_total",
			Help: "Completed reconciliation passes by outcome.",
		},
		[]string{"outcome"},
	)

	syncPassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "directory_sync_pass_duration_seconds",
		Help:    "Duration of reconciliation passes.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	syncMutationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_sync_mutations_total",
		Help: "Local mutations applied by reconciliation passes.",
	})

	syncDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_sync_degraded_total",
			Help: "Sub-collection fetches that degraded a pass.",
		},
		[]string{"collection"},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		syncPassesTotal, syncPassDuration, syncMutationsTotal, syncDegradedTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SyncPassFinished records one completed pass.
func SyncPassFinished(outcome string, d time.Duration) {
	syncPassesTotal.WithLabelValues(outcome).Inc()
	syncPassDuration.Observe(d.Seconds())
}

// SyncMutations adds the number of local changes a pass applied.
func SyncMutations(n int) {
	if n > 0 {
		syncMutationsTotal.Add(float64(n))
	}
}

// SyncDegraded records a degraded sub-collection fetch.
func SyncDegraded(collection string) {
	syncDegradedTotal.WithLabelValues(collection).Inc()
}

// CanonicalPath collapses per-entity path segments into :id placeholders so
// metric label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	for _, prefix := range []string{"/v1/employees/", "/v1/assets/", "/v1/handovers/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		switch {
		case rest == "":
			return path
		case !strings.Contains(rest, "/"):
			return prefix + ":id"
		case strings.HasSuffix(rest, "/photo") && strings.Count(rest, "/") == 1:
			return prefix + ":id/photo"
		case strings.HasSuffix(rest, "/complete") && strings.Count(rest, "/") == 1:
			return prefix + ":id/complete"
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
