package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestHousekeepingMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHousekeepingMetrics(reg)
	job := "stale-files"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.AddRemoved(job, 3)
	metrics.AddRemoved(job, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "housekeeping_job_success", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "housekeeping_job_failure", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "housekeeping_items_removed", "job", job); err != nil {
		t.Fatalf("fetch removed: %v", err)
	} else if got != 3 {
		t.Fatalf("expected removed=3, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "housekeeping_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPublishMetricsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPublishMetrics(reg)
	metrics.JobQueued()
	metrics.ObserveOutcome("tileset", "vector", "completed", time.Second)
	metrics.IncFallback()
	metrics.JobDone()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "publish_outcomes_total", "format", "vector"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected outcomes=1, got %f", got)
	}
	mf := findMetricFamily(mfs, "publish_format_fallbacks_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one fallback")
	}
	gauge := findMetricFamily(mfs, "publish_jobs_in_flight")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 0 {
		t.Fatalf("expected in-flight gauge back at zero")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var h *HousekeepingMetrics
	h.IncSuccess("x")
	h.AddRemoved("x", 2)
	var p *PublishMetrics
	p.ObserveOutcome("tileset", "", "", time.Second)
	p.IncFallback()
	NewPublishMetrics(nil).JobQueued()
	var hm *HTTPMetrics
	hm.Observe("GET", "/x", 200, time.Millisecond)
}

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("GET", "/api/v1/files/{fileId}", 200, 10*time.Millisecond)
	m.Observe("GET", "/api/v1/files/{fileId}", 200, 20*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "/api/v1/files/{fileId}"); err != nil {
		t.Fatalf("fetch requests: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 requests, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/v1/files/{fileId}"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.029 || got > 0.031 {
		t.Fatalf("unexpected duration sum %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
