package perf

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/staffline/staffline/internal/jobs"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/jobs"
)

func TestIntegrityJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	records := append(largeDirectory(managers, perTeam),
		staff.Staff{ID: 90001, Name: "loop-a", RoleID: ref(5), ReportingTo: ref(90002), Active: true},
		staff.Staff{ID: 90002, Name: "loop-b", RoleID: ref(5), ReportingTo: ref(90001), Active: true},
	)
	job := jobs.NewIntegrityJob(loadStore(t, records), nil, metrics)

	for i := 0; i < 20; i++ {
		if err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskOrgGraphIntegrity, nil)); err != nil {
			t.Fatalf("integrity scan %d: %v", i, err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "staffline_jobs_total", map[string]string{"job": jobs.TaskOrgGraphIntegrity, "status": "success"})
	if success != 20 {
		t.Fatalf("expected 20 successful scans, got %f", success)
	}
	if cycles := metricValue(t, families, "staffline_orggraph_faults", map[string]string{"kind": jobs.FaultCycle}); cycles != 2 {
		t.Fatalf("expected 2 staff in cycles, got %f", cycles)
	}
	if dangling := metricValue(t, families, "staffline_orggraph_faults", map[string]string{"kind": jobs.FaultDanglingManager}); dangling != 0 {
		t.Fatalf("expected no dangling managers, got %f", dangling)
	}

	mean := histogramMean(t, families, "staffline_job_duration_seconds", map[string]string{"job": jobs.TaskOrgGraphIntegrity})
	if mean > 0.5 {
		t.Fatalf("integrity scan duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
