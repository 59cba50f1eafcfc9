// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trash2action"

type Metrics struct {
	Connections    prometheus.Gauge
	OnlineUsers    prometheus.Gauge
	EventsPushed   *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	InboundEvents  *prometheus.CounterVec
	StoreMutations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "online_users",
			Help:      "Users with at least one joined connection.",
		}),
		EventsPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_pushed_total",
			Help:      "Events handed to a connection send buffer.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the room was empty or a buffer was full.",
		}, []string{"event", "reason"}),
		InboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "inbound_events_total",
			Help:      "Client events received, by outcome.",
		}, []string{"event", "outcome"}),
		StoreMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Successful store mutations by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.Connections,
		m.OnlineUsers,
		m.EventsPushed,
		m.EventsDropped,
		m.InboundEvents,
		m.StoreMutations,
	)
	return m
}

// Nop returns collectors registered nowhere.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
