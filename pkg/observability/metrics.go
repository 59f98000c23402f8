// Package observability holds the Prometheus collectors shared across layers.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks inbound request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doorway_http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	// ResolutionsTotal counts entrance resolutions by outcome.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doorway_resolutions_total",
		Help: "Entrance resolutions by method and confidence.",
	}, []string{"method", "confidence"})

	// UpstreamRequestsTotal counts genuine network calls per dependency.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doorway_upstream_requests_total",
		Help: "Upstream calls by dependency and outcome.",
	}, []string{"dependency", "outcome"})

	// CacheEventsTotal counts cache hits, misses and stale serves per cache.
	CacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doorway_cache_events_total",
		Help: "Cache lookups by cache name and event.",
	}, []string{"cache", "event"})
)

// Cache event labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Upstream outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request duration for every route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		HTTPRequestDuration.WithLabelValues(
			r.URL.Path,
			r.Method,
			strconv.Itoa(rec.status),
		).Observe(time.Since(start).Seconds())
	})
}
