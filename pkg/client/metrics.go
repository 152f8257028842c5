package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for one client process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsReceived     *prometheus.CounterVec // by event kind
	commandsDispatched *prometheus.CounterVec // by result
	loginAttempts      *prometheus.CounterVec // by result
	phaseFailures      *prometheus.CounterVec // by phase
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
}

// NewMetrics registers the client metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudclient_events_received_total",
				Help: "Total number of server events received, by kind",
			},
			[]string{"kind"},
		),
		commandsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudclient_commands_dispatched_total",
				Help: "Total number of server commands dispatched, by result",
			},
			[]string{"result"},
		),
		loginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudclient_login_attempts_total",
				Help: "Total number of login attempts sent to the server, by result",
			},
			[]string{"result"},
		),
		phaseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudclient_phase_failures_total",
				Help: "Total number of connectivity failures, by session phase",
			},
			[]string{"phase"},
		),
		bytesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mudclient_session_bytes_sent_total",
				Help: "Bytes written on session connections",
			},
		),
		bytesReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mudclient_session_bytes_received_total",
				Help: "Bytes read on session connections",
			},
		),
	}
}

// RecordEvent records one inbound event; kind is message, keepalive, error or malformed
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

// RecordCommand records a dispatch result: ok, unknown, error or empty
func (m *Metrics) RecordCommand(result string) {
	if m == nil {
		return
	}
	m.commandsDispatched.WithLabelValues(result).Inc()
}

// RecordLogin records a login attempt answered by the server
func (m *Metrics) RecordLogin(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

// RecordPhaseFailure records a connectivity failure in handshake, login or event_loop
func (m *Metrics) RecordPhaseFailure(phase string) {
	if m == nil {
		return
	}
	m.phaseFailures.WithLabelValues(phase).Inc()
}

// RecordTraffic adds the byte counts of a finished session connection
func (m *Metrics) RecordTraffic(sent, received uint64) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(sent))
	m.bytesReceived.Add(float64(received))
}
