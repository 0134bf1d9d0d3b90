package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds the console's metrics.
type Registry struct {
	// Request pipeline
	ClientRequests *prometheus.CounterVec
	ClientLatency  *prometheus.HistogramVec
	SessionEvents  *prometheus.CounterVec

	// Query cache
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheShared        *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	CacheEntries       prometheus.Gauge

	// Mock API server
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// Get returns the global metrics registry, registered with the default
// prometheus registerer.
func Get() *Registry {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates a registry whose collectors are registered with reg.
// Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.ClientRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_client_requests_total",
		Help: "API requests issued by the console, by outcome",
	}, []string{"method", "resource", "outcome"})

	r.ClientLatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rampart_client_request_duration_seconds",
		Help:    "API request latency as seen by the console",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "resource"})

	r.SessionEvents = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_session_transitions_total",
		Help: "Session state transitions",
	}, []string{"state"})

	r.CacheHits = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_cache_hits_total",
		Help: "Queries served from fresh cache entries",
	}, []string{"resource"})

	r.CacheMisses = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_cache_misses_total",
		Help: "Queries that required a fetch",
	}, []string{"resource"})

	r.CacheShared = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_cache_shared_fetches_total",
		Help: "Queries that joined an in-flight fetch",
	}, []string{"resource"})

	r.CacheInvalidations = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_cache_invalidations_total",
		Help: "Resource-wide cache invalidations",
	}, []string{"resource"})

	r.CacheEntries = f.NewGauge(prometheus.GaugeOpts{
		Name: "rampart_cache_entries",
		Help: "Entries currently held by the query cache",
	})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rampart_devserver_requests_total",
		Help: "Requests handled by the development API server",
	}, []string{"method", "path", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rampart_devserver_request_duration_seconds",
		Help:    "Development API server latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// RecordClientRequest records one pipeline round trip.
func (r *Registry) RecordClientRequest(method, resource, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.ClientRequests.WithLabelValues(method, resource, outcome).Inc()
	r.ClientLatency.WithLabelValues(method, resource).Observe(d.Seconds())
}

// RecordSessionTransition counts entry into a session state.
func (r *Registry) RecordSessionTransition(state string) {
	if r == nil {
		return
	}
	r.SessionEvents.WithLabelValues(state).Inc()
}

// RecordAPIRequest records a request served by the development server.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	r.APIRequests.WithLabelValues(method, path, statusString(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

// statusString converts an HTTP status code to string.
func statusString(status int) string {
	return strconv.Itoa(status)
}

// Cache outcomes for RecordCache.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheShared  = "shared"
	CacheInvalid = "invalidation"
)

// RecordCache counts one cache outcome for resource.
func (r *Registry) RecordCache(outcome, resource string) {
	if r == nil {
		return
	}
	switch outcome {
	case CacheHit:
		r.CacheHits.WithLabelValues(resource).Inc()
	case CacheMiss:
		r.CacheMisses.WithLabelValues(resource).Inc()
	case CacheShared:
		r.CacheShared.WithLabelValues(resource).Inc()
	case CacheInvalid:
		r.CacheInvalidations.WithLabelValues(resource).Inc()
	}
}

// SetCacheEntries reports the current number of cache entries.
func (r *Registry) SetCacheEntries(n int) {
	if r == nil {
		return
	}
	r.CacheEntries.Set(float64(n))
}
