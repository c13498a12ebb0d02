package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry with the HTTP and analysis collectors.
// It satisfies the metrics ports of the analysis and ai services.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	inFlight  prometheus.Gauge
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	layers    *prometheus.CounterVec
	aiCalls   *prometheus.HistogramVec
	aiRetries *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maestro_runs_total",
			Help: "Finished analysis runs by outcome.",
		}, []string{"outcome"}),
		layers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maestro_layers_total",
			Help: "Layer results by layer and final status.",
		}, []string{"layer", "status"}),
		aiCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maestro_ai_call_duration_seconds",
			Help:    "Model call latency by flow and outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"flow", "outcome"}),
		aiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maestro_ai_retries_total",
			Help: "Model call retries by failure code.",
		}, []string{"code"}),
	}
	m.registry.MustRegister(
		m.requests, m.inFlight, m.duration,
		m.runs, m.layers, m.aiCalls, m.aiRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRun(outcome string) {
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLayer(layer, status string) {
	m.layers.WithLabelValues(layer, status).Inc()
}

func (m *Metrics) ObserveAICall(flow, outcome string, d time.Duration) {
	m.aiCalls.WithLabelValues(flow, outcome).Observe(d.Seconds())
}

func (m *Metrics) IncAIRetry(code string) {
	m.aiRetries.WithLabelValues(code).Inc()
}

// Middleware records request count, latency and in-flight requests.
// Routes are labelled by chi pattern so ids don't blow up cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
