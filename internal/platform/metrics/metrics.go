package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestsCreated      prometheus.Counter
	Transitions          *prometheus.CounterVec
	TransitionLatency    prometheus.Histogram
	GateScans            *prometheus.CounterVec
	SweepExpired         prometheus.Counter
	EventsPublished      prometheus.Counter
	EventPublishFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_requests_created_total",
			Help: "Total number of pass requests created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_transitions_total",
			Help: "Lifecycle transitions by target status and outcome",
		}, []string{"to", "outcome"}),
		TransitionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_transition_duration_seconds",
			Help:    "Latency of guarded lifecycle transitions",
			Buckets: prometheus.DefBuckets,
		}),
		GateScans: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_gate_scans_total",
			Help: "Gate scans recorded by action",
		}, []string{"action"}),
		SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_sweep_expired_total",
			Help: "Requests force-expired by the scheduler",
		}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_events_published_total",
			Help: "Notification events handed to the broker",
		}),
		EventPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatepass_event_publish_failures_total",
			Help: "Notification events that failed to publish",
		}),
	}
}

// ObserveTransition records a guarded transition attempt.
func (m *Metrics) ObserveTransition(to, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to, outcome).Inc()
	m.TransitionLatency.Observe(elapsed.Seconds())
}

// ObserveGateScan records a gate scan by action.
func (m *Metrics) ObserveGateScan(action string) {
	if m == nil {
		return
	}
	m.GateScans.WithLabelValues(action).Inc()
}
