package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	faults      *prometheus.GaugeVec
	matrixFails prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure counts,
// and returns the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetStructuralFaults records the number of org graph faults of one kind seen
// by the latest integrity scan. The gauge is reset on every scan so resolved
// faults disappear.
func (m *Metrics) SetStructuralFaults(kind string, count int) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(kind).Set(float64(count))
}

// SetMatrixFailures records the failed row count of the latest matrix run.
func (m *Metrics) SetMatrixFailures(count int) {
	if m == nil {
		return
	}
	m.matrixFails.Set(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffline_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staffline_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "staffline_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	faults := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staffline_orggraph_faults",
		Help: "Org graph faults found by the last integrity scan, by kind.",
	}, []string{"kind"})
	matrixFails := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "staffline_permission_matrix_failures",
		Help: "Failed rows in the last permission matrix run.",
	})
	registerer.MustRegister(runs, failures, duration, faults, matrixFails)
	return &Metrics{runs: runs, failures: failures, duration: duration, faults: faults, matrixFails: matrixFails}
}
