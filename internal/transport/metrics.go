package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "facesaas"
	metricsSubsystem = "client"
)

// MetricsObserver exports call events as Prometheus series.
type MetricsObserver struct {
	// RequestsTotal counts dispatched calls.
	// Labels: route, outcome (success, error), kind (empty on success)
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures call latency.
	// Labels: route, outcome
	RequestDuration *prometheus.HistogramVec

	// ResponsesByStatus counts HTTP responses by status code.
	// Labels: route, status
	ResponsesByStatus *prometheus.CounterVec

	// SimulatedTotal counts degraded-mode substitutions.
	// Labels: route
	SimulatedTotal *prometheus.CounterVec
}

// NewMetricsObserver registers the client metrics with reg.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	factory := promauto.With(reg)
	return &MetricsObserver{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Calls dispatched to the face service.",
		}, []string{"route", "outcome", "kind"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the face service.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route", "outcome"}),
		ResponsesByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "responses_total",
			Help:      "HTTP responses received, by status code.",
		}, []string{"route", "status"}),
		SimulatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "simulated_total",
			Help:      "Results served by the degraded-mode simulator.",
		}, []string{"route"}),
	}
}

// Observe records ev.
func (m *MetricsObserver) Observe(ev Event) {
	if ev.Outcome == OutcomeSimulated {
		m.SimulatedTotal.WithLabelValues(ev.Route).Inc()
		return
	}
	m.RequestsTotal.WithLabelValues(ev.Route, string(ev.Outcome), string(ev.Kind)).Inc()
	m.RequestDuration.WithLabelValues(ev.Route, string(ev.Outcome)).Observe(ev.Latency.Seconds())
	if ev.Status != 0 {
		m.ResponsesByStatus.WithLabelValues(ev.Route, strconv.Itoa(ev.Status)).Inc()
	}
}
