// Package observability exposes the portal's Prometheus collectors.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "denuncias_admin"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	upstream        *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	dialogsPending  prometheus.Gauge
	sessionsActive  prometheus.Gauge
}

// New registers the portal collectors plus the Go runtime and process
// collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of portal HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of portal HTTP requests",
		}, []string{"method", "route", "status"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of complaints API calls by operation and outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		dialogsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dialogs_pending",
			Help:      "Dialog requests waiting for a staff answer across all sessions",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Staff sessions with a live workspace",
		}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.upstream, m.cacheLookups,
		m.dialogsPending, m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records one served request. route is the matched route
// template, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, route, code).Inc()
}

// ObserveUpstream records one complaints API call.
func (m *Metrics) ObserveUpstream(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(name string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(name, result).Inc()
}

// DialogDelta adjusts the pending dialog gauge. It matches the dialog
// observer signature.
func (m *Metrics) DialogDelta(delta int) {
	if m == nil {
		return
	}
	m.dialogsPending.Add(float64(delta))
}

// SessionDelta adjusts the active session gauge.
func (m *Metrics) SessionDelta(delta int) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(float64(delta))
}
