package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/staffline/staffline/internal/jobs"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	reloadsTotal    *prometheus.CounterVec
	reloadDuration  prometheus.Histogram
	staffLoaded     prometheus.Gauge
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with the HTTP, authorization and job
// collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffline_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staffline_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffline_authz_decisions_total",
		Help: "Authorization decisions by permission, effect and deny reason.",
	}, []string{"permission", "effect", "reason"})
	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffline_directory_reloads_total",
		Help: "Directory snapshot reloads by result.",
	}, []string{"result"})
	reloadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "staffline_directory_reload_duration_seconds",
		Help:    "Time spent loading a directory snapshot.",
		Buckets: prometheus.DefBuckets,
	})
	staffLoaded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "staffline_directory_staff",
		Help: "Staff records in the active directory snapshot.",
	})
	registry.MustRegister(requests, duration, decisions, reloads, reloadDuration, staffLoaded)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisionsTotal:  decisions,
		reloadsTotal:    reloads,
		reloadDuration:  reloadDuration,
		staffLoaded:     staffLoaded,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision counts one authorization decision. reason is empty for
// allows.
func (m *Metrics) ObserveDecision(permission, effect, reason string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(permission, effect, reason).Inc()
}

// ObserveReload records the outcome of a directory reload.
func (m *Metrics) ObserveReload(duration time.Duration, staffCount int, err error) {
	if m == nil {
		return
	}
	m.reloadDuration.Observe(duration.Seconds())
	if err != nil {
		m.reloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	m.reloadsTotal.WithLabelValues("success").Inc()
	m.staffLoaded.Set(float64(staffCount))
}

// Jobs returns the job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
