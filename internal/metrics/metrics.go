// Package metrics exposes Prometheus counters for generation, catalog and HTTP activity.
//
// Every method is safe to call on a nil [*Metrics], so components take metrics as an
// optional dependency.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodtape"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeAuthError = "auth_error"
	OutcomeInvalid   = "invalid"
)

// Metrics owns a private registry so tests and multiple servers never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	searches           *prometheus.CounterVec
	tokenExchanges     prometheus.Counter
	generationAttempts *prometheus.CounterVec
	resolvedTracks     prometheus.Histogram
	fallbackQueries    prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

// New builds and registers the collectors, including Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_searches_total",
			Help:      "Catalog search requests by outcome.",
		}, []string{"outcome"}),
		tokenExchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_token_exchanges_total",
			Help:      "Client-credentials token exchanges performed.",
		}),
		generationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Strategy generation attempts by outcome.",
		}, []string{"outcome"}),
		resolvedTracks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolved_tracks",
			Help:      "Tracks returned per resolved playlist.",
			Buckets:   []float64{0, 5, 10, 15, 20, 25, 30},
		}),
		fallbackQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_queries_total",
			Help:      "Fallback queries issued after primary queries came up short.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		m.searches,
		m.tokenExchanges,
		m.generationAttempts,
		m.resolvedTracks,
		m.fallbackQueries,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Search(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenExchange() {
	if m == nil {
		return
	}
	m.tokenExchanges.Inc()
}

func (m *Metrics) GenerationAttempt(outcome string) {
	if m == nil {
		return
	}
	m.generationAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ResolvedTracks(n int) {
	if m == nil {
		return
	}
	m.resolvedTracks.Observe(float64(n))
}

func (m *Metrics) FallbackQuery() {
	if m == nil {
		return
	}
	m.fallbackQueries.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Counter accessors used by tests and the CLI summary.

func (m *Metrics) Searches(outcome string) prometheus.Counter {
	return m.searches.WithLabelValues(outcome)
}

func (m *Metrics) TokenExchanges() prometheus.Counter { return m.tokenExchanges }

func (m *Metrics) GenerationAttempts(outcome string) prometheus.Counter {
	return m.generationAttempts.WithLabelValues(outcome)
}

func (m *Metrics) FallbackQueries() prometheus.Counter { return m.fallbackQueries }

func (m *Metrics) HTTPRequests(method, route string, code int) prometheus.Counter {
	return m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code))
}
