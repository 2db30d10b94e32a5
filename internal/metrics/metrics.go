// Package metrics exposes Prometheus metrics for the API and the chat
// pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glucoguide"

// Metrics holds every collector on its own registry, so several instances
// can coexist in tests. All recording methods are no-ops on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ChatResponsesTotal *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	FallbacksTotal     *prometheus.CounterVec
	ResourcesMatched   prometheus.Counter
	UsageLogFailures   prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ChatResponsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_responses_total",
				Help:      "Chat replies by path (greeting, completion, fallback)",
			},
			[]string{"path"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_duration_seconds",
				Help:      "Duration of completion service calls in seconds",
				Buckets:   []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"status"},
		),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_fallbacks_total",
				Help:      "Fallback replies by error kind",
			},
			[]string{"kind"},
		),
		ResourcesMatched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_matched_total",
				Help:      "Total number of curated resources attached to prompts",
			},
		),
		UsageLogFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_log_failures_total",
				Help:      "AI usage log rows that could not be written",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChatResponse(path string) {
	if m == nil {
		return
	}
	m.ChatResponsesTotal.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveCompletion(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CompletionDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFallback(kind string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddResourcesMatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ResourcesMatched.Add(float64(n))
}

func (m *Metrics) RecordUsageLogFailure() {
	if m == nil {
		return
	}
	m.UsageLogFailures.Inc()
}
