package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the service's prometheus metric set. Registered once through
// promauto at construction.
type Metrics struct {
	SessionsStarted   *prometheus.CounterVec
	SessionsFinished  *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	SessionDuration   prometheus.Histogram
	PoolAcquisitions  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	Subscribers       prometheus.Gauge
	DroppedSubscriber prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics registers the metric set on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presentio",
			Subsystem: "enrollment",
			Name:      "sessions_started_total",
			Help:      "Enrollment sessions started, by origin (single or bulk).",
		}, []string{"origin"}),

		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presentio",
			Subsystem: "enrollment",
			Name:      "sessions_finished_total",
			Help:      "Enrollment sessions reaching a terminal state, by status and error code.",
		}, []string{"status", "error_code"}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "presentio",
			Subsystem: "enrollment",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each capture stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),

		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "presentio",
			Subsystem: "enrollment",
			Name:      "session_duration_seconds",
			Help:      "Total session duration from start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		PoolAcquisitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presentio",
			Subsystem: "device_pool",
			Name:      "acquisitions_total",
			Help:      "Device slot acquisition attempts, by outcome.",
		}, []string{"outcome"}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "presentio",
			Subsystem: "enrollment",
			Name:      "active_sessions",
			Help:      "Enrollment sessions currently in flight.",
		}),

		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "presentio",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Live progress stream subscribers across all tenants.",
		}),

		DroppedSubscriber: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "presentio",
			Subsystem: "broadcast",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers dropped for falling behind the event stream.",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presentio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "presentio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveStage records the time spent in a capture stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
