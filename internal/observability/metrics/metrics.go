package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timetrack_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetrack_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timetrack_entry_transitions_total",
		Help: "Count of time entry lifecycle transitions by operation and result",
	}, []string{"operation", "result"})

	activeTimers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timetrack_active_timers",
		Help: "Number of entries currently in running or paused state",
	})

	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timetrack_cache_operations_total",
		Help: "Cache layer hits, misses and invalidations",
	}, []string{"result"})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timetrack_broadcasts_total",
		Help: "Realtime events fanned out to sessions, by event type",
	}, []string{"event"})

	sessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timetrack_realtime_sessions",
		Help: "Number of connected realtime sessions",
	})

	integrityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timetrack_integrity_violations_total",
		Help: "Single-active-entry violations detected at the storage layer after the guard passed",
	})

	reaperStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timetrack_reaper_stops_total",
		Help: "Entries force-stopped by the reaper, by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveTransition records the outcome of a lifecycle operation.
func ObserveTransition(operation, result string) {
	transitionsTotal.WithLabelValues(operation, result).Inc()
}

// SetActiveTimers sets the active timer gauge to a specific count.
func SetActiveTimers(count int) {
	if count < 0 {
		count = 0
	}
	activeTimers.Set(float64(count))
}

// IncrementActiveTimers increments the active timer gauge.
func IncrementActiveTimers() {
	activeTimers.Inc()
}

// DecrementActiveTimers decrements the active timer gauge.
func DecrementActiveTimers() {
	activeTimers.Dec()
}

// ObserveCache increments the cache counter for hit, miss or invalidate.
func ObserveCache(result string) {
	cacheOperations.WithLabelValues(result).Inc()
}

// ObserveBroadcast counts one fan-out of the given event type.
func ObserveBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

// SessionConnected and SessionDisconnected track the realtime session gauge.
func SessionConnected()    { sessionsConnected.Inc() }
func SessionDisconnected() { sessionsConnected.Dec() }

// ObserveIntegrityViolation counts a post-guard invariant violation. These
// are logic bugs, not user errors, and always accompany a severity-high log.
func ObserveIntegrityViolation() {
	integrityViolations.Inc()
}

// ObserveReaperStop records a force-stop attempt by the reaper.
func ObserveReaperStop(result string) {
	reaperStops.WithLabelValues(result).Inc()
}
