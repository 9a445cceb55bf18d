// Package metrics exposes Prometheus collectors for the orchestrator.
//
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tcc"

// Metrics holds the orchestrator collectors.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Junctions       *prometheus.CounterVec
	Marks           *prometheus.CounterVec
	ProgramLookups  *prometheus.CounterVec
	ConnectAttempts *prometheus.CounterVec
	SessionState    *prometheus.GaugeVec
	SSEClients      prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands executed, by kind and outcome code",
			},
			[]string{"kind", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time to execute a command including the vehicle instruction",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"kind"},
		),
		Junctions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "junction_decisions_total",
				Help:      "Split decisions sent to the vehicle, by decision and source",
			},
			[]string{"decision", "source"},
		),
		Marks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marks_total",
				Help:      "Track marks decoded, by kind and side",
			},
			[]string{"kind", "side"},
		),
		ProgramLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_lookups_total",
				Help:      "Program trigger lookups, by result",
			},
			[]string{"result"},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Connect attempts, by outcome",
			},
			[]string{"outcome"},
		),
		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
		SSEClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "telemetry_clients",
				Help:      "Connected telemetry stream clients",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Commands,
			m.CommandDuration,
			m.Junctions,
			m.Marks,
			m.ProgramLookups,
			m.ConnectAttempts,
			m.SessionState,
			m.SSEClients,
		)
	}
	return m
}

// ObserveCommand records one executed command.
func (m *Metrics) ObserveCommand(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(kind, outcome).Inc()
	m.CommandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveJunction records a split decision.
func (m *Metrics) ObserveJunction(decision, source string) {
	if m == nil {
		return
	}
	m.Junctions.WithLabelValues(decision, source).Inc()
}

// ObserveMark records a decoded mark.
func (m *Metrics) ObserveMark(kind, side string) {
	if m == nil {
		return
	}
	m.Marks.WithLabelValues(kind, side).Inc()
}

// ObserveProgramLookup records a program lookup hit or miss.
func (m *Metrics) ObserveProgramLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ProgramLookups.WithLabelValues(result).Inc()
}

// ObserveConnect records a connect attempt outcome.
func (m *Metrics) ObserveConnect(outcome string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(outcome).Inc()
}

// SetSessionState marks state as current among states.
func (m *Metrics) SetSessionState(state string, states []string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// SetSSEClients records the number of telemetry clients.
func (m *Metrics) SetSSEClients(n int) {
	if m == nil {
		return
	}
	m.SSEClients.Set(float64(n))
}
