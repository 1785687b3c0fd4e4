// Package metrics defines the Prometheus collectors used across the feed
// pipeline and serves them on a separate scrape listener.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ClassRefreshTotal    *prometheus.CounterVec
	ClassRefreshDuration *prometheus.HistogramVec
	CacheLookupsTotal    *prometheus.CounterVec
	AdapterErrorsTotal   *prometheus.CounterVec
	ClassifierCallsTotal *prometheus.CounterVec
	FeedItems            *prometheus.GaugeVec
	LastGoodServedTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ClassRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_class_refresh_total",
				Help: "Source-class refresh outcomes by how the result was served (fresh, cache, stale, empty, disabled).",
			},
			[]string{"class", "served", "reason"},
		),
		ClassRefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feed_class_refresh_duration_seconds",
				Help:    "Time spent producing one source-class result, cache hits included.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"class"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_cache_lookups_total",
				Help: "Cache lookups by class and result (hit, miss).",
			},
			[]string{"class", "result"},
		),
		AdapterErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_adapter_errors_total",
				Help: "Upstream adapter failures by adapter and error kind.",
			},
			[]string{"adapter", "kind"},
		),
		ClassifierCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_classifier_calls_total",
				Help: "Relevance classifier batch outcomes by result code.",
			},
			[]string{"purpose", "result"},
		),
		FeedItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feed_items",
				Help: "Items in the most recent assembled response per list.",
			},
			[]string{"list"},
		),
		LastGoodServedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_last_good_served_total",
				Help: "Responses answered from the last good response after assembly failed.",
			},
			[]string{"origin"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ClassRefreshTotal,
		m.ClassRefreshDuration,
		m.CacheLookupsTotal,
		m.AdapterErrorsTotal,
		m.ClassifierCallsTotal,
		m.FeedItems,
		m.LastGoodServedTotal,
		m.CircuitBreakerState,
	)

	return m
}
