package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HousekeepingMetrics records outcomes of the startup sweep jobs.
type HousekeepingMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	removed  *prometheus.CounterVec
}

// NewHousekeepingMetrics registers the housekeeping metrics on the provided registerer.
func NewHousekeepingMetrics(reg prometheus.Registerer) *HousekeepingMetrics {
	if reg == nil {
		return &HousekeepingMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeping_job_duration_seconds",
		Help:    "Duration of housekeeping jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_job_success",
		Help: "Successful housekeeping job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_job_failure",
		Help: "Failed housekeeping job executions.",
	}, []string{"job"})
	removed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_items_removed",
		Help: "Files and records evicted by housekeeping jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, removed)
	return &HousekeepingMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		removed:  removed,
	}
}

// ObserveDuration records the duration for the named job.
func (h *HousekeepingMetrics) ObserveDuration(job string, duration time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (h *HousekeepingMetrics) IncSuccess(job string) {
	if h == nil || h.success == nil {
		return
	}
	h.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (h *HousekeepingMetrics) IncFailure(job string) {
	if h == nil || h.failure == nil {
		return
	}
	h.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddRemoved adds n evicted items for the named job.
func (h *HousekeepingMetrics) AddRemoved(job string, n int) {
	if h == nil || h.removed == nil || n <= 0 {
		return
	}
	h.removed.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
