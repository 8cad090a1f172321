package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deskwidgets"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, which keeps domain tests free of registry plumbing.
type Metrics struct {
	// HTTP metrics (diagnostics API)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Registry metrics
	WidgetsRegistered prometheus.Gauge
	WidgetsRejected   *prometheus.CounterVec

	// Instance metrics
	Instances    *prometheus.GaugeVec
	Reactivation *prometheus.CounterVec

	// Permission metrics
	PermissionTransitions *prometheus.CounterVec
	PermissionFailClosed  prometheus.Counter

	// Gate metrics
	GatedOperations *prometheus.CounterVec
	GatedDuration   *prometheus.HistogramVec

	// Command channel metrics
	Commands *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates the collectors on reg. Pass a fresh prometheus.Registry
// per host; the global default registry is never used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of diagnostics HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Diagnostics HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	m.WidgetsRegistered = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "widgets_registered",
			Help:      "Number of widget types in the registry",
		},
	)
	m.WidgetsRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widgets_rejected_total",
			Help:      "Widget declarations rejected at registry build",
		},
		[]string{"reason"},
	)

	m.Instances = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Live widget instances by state",
		},
		[]string{"state"},
	)
	m.Reactivation = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactivations_total",
			Help:      "Pinned widget reactivation outcomes",
		},
		[]string{"outcome"},
	)

	m.PermissionTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_transitions_total",
			Help:      "Permission state transitions by target state",
		},
		[]string{"state"},
	)
	m.PermissionFailClosed = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_fail_closed_total",
			Help:      "Permission writes that failed and were forced to denied",
		},
	)

	m.GatedOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gated_operations_total",
			Help:      "Capability-gated operations by scope and result",
		},
		[]string{"scope", "result"},
	)
	m.GatedDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gated_operation_duration_seconds",
			Help:      "Capability-gated operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"scope"},
	)

	m.Commands = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands received over the single-instance channel",
		},
		[]string{"command"},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetWidgetsRegistered sets the number of registered widget types
func (m *Metrics) SetWidgetsRegistered(count int) {
	if m == nil {
		return
	}
	m.WidgetsRegistered.Set(float64(count))
}

// IncWidgetsRejected counts a rejected declaration
func (m *Metrics) IncWidgetsRejected(reason string) {
	if m == nil {
		return
	}
	m.WidgetsRejected.WithLabelValues(reason).Inc()
}

// SetInstances sets the live instance gauge for every state in counts.
func (m *Metrics) SetInstances(counts map[string]int) {
	if m == nil {
		return
	}
	m.Instances.Reset()
	for state, n := range counts {
		m.Instances.WithLabelValues(state).Set(float64(n))
	}
}

// RecordReactivation counts one reactivation outcome
func (m *Metrics) RecordReactivation(outcome string) {
	if m == nil {
		return
	}
	m.Reactivation.WithLabelValues(outcome).Inc()
}

// RecordPermissionTransition counts a transition to state
func (m *Metrics) RecordPermissionTransition(state string) {
	if m == nil {
		return
	}
	m.PermissionTransitions.WithLabelValues(state).Inc()
}

// IncPermissionFailClosed counts a fail-closed permission write
func (m *Metrics) IncPermissionFailClosed() {
	if m == nil {
		return
	}
	m.PermissionFailClosed.Inc()
}

// RecordGatedOperation records a gated operation
func (m *Metrics) RecordGatedOperation(scope, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatedOperations.WithLabelValues(scope, result).Inc()
	if duration > 0 {
		m.GatedDuration.WithLabelValues(scope).Observe(duration.Seconds())
	}
}

// IncCommand counts a received command
func (m *Metrics) IncCommand(command string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command).Inc()
}
