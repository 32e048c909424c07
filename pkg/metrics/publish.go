package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PublishMetrics tracks background tileset and dataset publishing.
type PublishMetrics struct {
	duration  *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
	fallbacks prometheus.Counter
	queued    prometheus.Gauge
}

// NewPublishMetrics registers publishing metrics on the provided registerer.
func NewPublishMetrics(reg prometheus.Registerer) *PublishMetrics {
	if reg == nil {
		return &PublishMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publish_duration_seconds",
		Help:    "Duration of publishing jobs in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_outcomes_total",
		Help: "Terminal publishing outcomes by kind, format and status.",
	}, []string{"kind", "format", "status"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_format_fallbacks_total",
		Help: "Raster-array requests downgraded to vector.",
	})
	queued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "publish_jobs_in_flight",
		Help: "Publishing jobs queued or running.",
	})
	reg.MustRegister(duration, outcomes, fallbacks, queued)
	return &PublishMetrics{
		duration:  duration,
		outcomes:  outcomes,
		fallbacks: fallbacks,
		queued:    queued,
	}
}

// ObserveOutcome records one terminal publishing result.
func (p *PublishMetrics) ObserveOutcome(kind, format, status string, duration time.Duration) {
	if p == nil || p.outcomes == nil {
		return
	}
	kind = normalizeLabel(kind)
	p.outcomes.WithLabelValues(kind, normalizeLabel(format), normalizeLabel(status)).Inc()
	p.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncFallback counts a raster-array to vector downgrade.
func (p *PublishMetrics) IncFallback() {
	if p == nil || p.fallbacks == nil {
		return
	}
	p.fallbacks.Inc()
}

// JobQueued and JobDone bracket a job's lifetime on the pool.
func (p *PublishMetrics) JobQueued() {
	if p == nil || p.queued == nil {
		return
	}
	p.queued.Inc()
}

func (p *PublishMetrics) JobDone() {
	if p == nil || p.queued == nil {
		return
	}
	p.queued.Dec()
}
