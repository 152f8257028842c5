package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	activeSessions *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	eventsReceived *prometheus.CounterVec
}

// NewMetrics registers the server metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mudserver_active_sessions",
				Help: "Number of logged-in sessions, by transport",
			},
			[]string{"transport"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudserver_sessions_total",
				Help: "Total number of logged-in sessions, by transport",
			},
			[]string{"transport"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudserver_logins_total",
				Help: "Total number of login attempts, by result",
			},
			[]string{"result"},
		),
		eventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mudserver_events_received_total",
				Help: "Total number of client events received, by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) SessionStarted(transport string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(transport).Inc()
	m.sessionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionEnded(transport string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(transport).Dec()
}

// RecordLogin counts a login result: signin, signup, refused or malformed
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}
