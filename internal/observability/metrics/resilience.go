package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics exports circuit breaker and retry activity of outbound
// dependencies. It satisfies resilience.Observer.
type ResilienceMetrics struct {
	service string

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
}

func newResilienceMetrics(service string, registry *prometheus.Registry) *ResilienceMetrics {
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "dependency", "operation"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker transitions by target state.",
		},
		[]string{"service", "dependency", "to"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total retries scheduled after a retryable failure.",
		},
		[]string{"service", "dependency", "operation"},
	)

	registry.MustRegister(breakerState, breakerTransitions, retriesTotal)

	return &ResilienceMetrics{
		service:            service,
		breakerState:       breakerState,
		breakerTransitions: breakerTransitions,
		retriesTotal:       retriesTotal,
	}
}

func (m *ResilienceMetrics) BreakerStateChanged(dependency, operation, _, to string) {
	m.breakerState.WithLabelValues(m.service, dependency, operation).Set(breakerStateValue(to))
	m.breakerTransitions.WithLabelValues(m.service, dependency, to).Inc()
}

func (m *ResilienceMetrics) RetryScheduled(dependency, operation string) {
	m.retriesTotal.WithLabelValues(m.service, dependency, operation).Inc()
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	}
	return 0
}
