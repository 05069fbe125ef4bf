// Package metrics holds the adapter's Prometheus collectors. All methods
// are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ndn_orion"

// Reconcile outcomes.
const (
	OutcomeUpdated = "updated"
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

type Metrics struct {
	interests            prometheus.Counter
	decodeErrors         prometheus.Counter
	reconciled           *prometheus.CounterVec
	dispatchDropped      prometheus.Counter
	sessions             prometheus.Counter
	stalls               prometheus.Counter
	registrationFailures prometheus.Counter
	liveness             prometheus.Gauge
	mirrorErrors         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		interests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interests_received_total",
			Help:      "Interests received under the measurement prefix.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Interests whose name could not be decoded into a measurement.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_total",
			Help:      "Measurements written to the broker, by outcome.",
		}, []string{"outcome"}),
		dispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Measurements dropped because the reconcile queue was full.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Forwarder sessions established.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalls_total",
			Help:      "Sessions torn down after the liveness timeout.",
		}),
		registrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_failures_total",
			Help:      "Prefix registrations rejected by the forwarder.",
		}),
		liveness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "liveness_ticks",
			Help:      "Event loop ticks since the last processed interest.",
		}),
		mirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Measurements the MQTT mirror failed to publish.",
		}),
	}
	reg.MustRegister(m.interests, m.decodeErrors, m.reconciled, m.dispatchDropped,
		m.sessions, m.stalls, m.registrationFailures, m.liveness, m.mirrorErrors)
	return m
}

func (m *Metrics) IncInterests() {
	if m != nil {
		m.interests.Inc()
	}
}

func (m *Metrics) IncDecodeErrors() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// IncReconciled counts one measurement with the given outcome.
func (m *Metrics) IncReconciled(outcome string) {
	if m != nil {
		m.reconciled.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncDispatchDropped() {
	if m != nil {
		m.dispatchDropped.Inc()
	}
}

func (m *Metrics) IncSessions() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) IncStalls() {
	if m != nil {
		m.stalls.Inc()
	}
}

func (m *Metrics) IncRegistrationFailures() {
	if m != nil {
		m.registrationFailures.Inc()
	}
}

func (m *Metrics) SetLiveness(ticks int64) {
	if m != nil {
		m.liveness.Set(float64(ticks))
	}
}

func (m *Metrics) IncMirrorErrors() {
	if m != nil {
		m.mirrorErrors.Inc()
	}
}
