package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "infogenie",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "infogenie",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	dispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Total number of provider call attempts.",
		},
		[]string{"provider", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "infogenie",
			Subsystem: "dispatch",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of provider invocations including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		},
		[]string{"provider"},
	)

	charges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "credits",
			Name:      "charges_total",
			Help:      "Total number of credit charge attempts.",
		},
		[]string{"feature", "outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "hotlist",
			Name:      "cache_lookups_total",
			Help:      "Total number of aggregation cache lookups.",
		},
		[]string{"feed", "result"},
	)

	mirrorFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "hotlist",
			Name:      "mirror_fetches_total",
			Help:      "Total number of mirror fetch attempts.",
		},
		[]string{"feed", "outcome"},
	)

	checkins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infogenie",
			Subsystem: "engagement",
			Name:      "checkins_total",
			Help:      "Total number of daily check-in attempts.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		dispatchAttempts,
		dispatchDuration,
		charges,
		cacheLookups,
		mirrorFetches,
		checkins,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordDispatchAttempt records one provider call attempt.
func RecordDispatchAttempt(provider, outcome string) {
	dispatchAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordDispatch records a completed invocation including its retries.
func RecordDispatch(provider string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	dispatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCharge records one credit charge attempt.
func RecordCharge(feature, outcome string) {
	charges.WithLabelValues(feature, outcome).Inc()
}

// RecordCacheLookup records a cache hit or miss for a feed.
func RecordCacheLookup(feed, result string) {
	cacheLookups.WithLabelValues(feed, result).Inc()
}

// RecordMirrorFetch records the outcome of one mirror fetch attempt.
func RecordMirrorFetch(feed, outcome string) {
	mirrorFetches.WithLabelValues(feed, outcome).Inc()
}

// RecordCheckin records a daily check-in attempt.
func RecordCheckin(outcome string) {
	checkins.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses per-feed aggregation paths so label cardinality
// stays bounded.
func canonicalPath(path string) string {
	if strings.HasPrefix(path, "/api/60s/") {
		return "/api/60s/:feed"
	}
	return path
}
