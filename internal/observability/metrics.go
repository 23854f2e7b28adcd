package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Status server request rate.
	HTTPRequestsTotal *prometheus.CounterVec

	// Status server latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Status server requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls per provider (open-meteo, met-office, aad, geocoding, nominatim, ipinfo).
	// Watch for: error vs success ratio per provider.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 approaching the 30s weather timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts after a failed first attempt. High values = unstable network or upstream.
	UpstreamRetriesTotal prometheus.Counter

	// Cache hits and misses per artifact kind (location, geocode, weather).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Detached cache writes that failed. These are swallowed, so this is the only trace besides debug logs.
	CacheWriteErrorsTotal *prometheus.CounterVec

	// Background refresh iterations by trigger (start, periodic, manual).
	RefreshesTotal *prometheus.CounterVec

	// Results delivered to the consumer by outcome (success, error).
	RefreshResultsTotal *prometheus.CounterVec

	// Synthesized offline readings. Non-zero means the first fetch of a session failed.
	OfflineFallbacksTotal prometheus.Counter

	// Met Office memo lookups by result (hit, stale, contended).
	ProviderMemoTotal *prometheus.CounterVec

	// Circuit breaker state per component (0=closed, 1=open, 2=half_open).
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Manual refresh requests denied by the status server rate limiter.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of status server HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Status server HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of status server HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream HTTP calls",
		},
		[]string{"provider", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream HTTP latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses (absent, expired, mismatched or unreadable)",
		},
		[]string{"cacheType"},
	)
	CacheWriteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWriteErrorsTotal",
			Help: "Total number of failed background cache writes",
		},
		[]string{"cacheType"},
	)
	RefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshesTotal",
			Help: "Total number of background refresh iterations",
		},
		[]string{"trigger"},
	)
	RefreshResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshResultsTotal",
			Help: "Total number of refresh results delivered to the consumer",
		},
		[]string{"outcome"},
	)
	OfflineFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offlineFallbacksTotal",
			Help: "Total number of synthesized offline weather readings",
		},
	)
	ProviderMemoTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerMemoTotal",
			Help: "Rate-limited provider memo lookups by result",
		},
		[]string{"provider", "result"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CacheHitsTotal, CacheMissesTotal, CacheWriteErrorsTotal,
		RefreshesTotal, RefreshResultsTotal, OfflineFallbacksTotal,
		ProviderMemoTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
// state is the numeric value of the destination state.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
