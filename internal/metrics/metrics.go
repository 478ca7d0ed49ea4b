// Package metrics exposes signaling counters on a private prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

type Metrics struct {
	registry *prometheus.Registry

	RoomsCurrent        prometheus.Gauge
	ParticipantsCurrent prometheus.Gauge
	ConnectionsCurrent  prometheus.Gauge
	SignalsRelayed      prometheus.Counter
	RelayMisses         prometheus.Counter
	Evictions           prometheus.Counter
	SlowConsumers       prometheus.Counter
	ChatMessages        prometheus.Counter
	AdminActions        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoomsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "rooms_current",
			Help: "Rooms with at least one participant.",
		}),
		ParticipantsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "participants_current",
			Help: "Participants across all rooms.",
		}),
		ConnectionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "signal", Name: "connections_current",
			Help: "Open signaling connections.",
		}),
		SignalsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "signals_relayed_total",
			Help: "Signal payloads forwarded to a peer.",
		}),
		RelayMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "relay_misses_total",
			Help: "Signal payloads dropped because the target was gone.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "evictions_total",
			Help: "Connections replaced by a newer connection of the same identity.",
		}),
		SlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "slow_consumers_total",
			Help: "Sends dropped on a full connection buffer.",
		}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "chat_messages_total",
			Help: "Chat messages broadcast.",
		}),
		AdminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "admin_actions_total",
			Help: "Admin actions executed.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RoomsCurrent,
		m.ParticipantsCurrent,
		m.ConnectionsCurrent,
		m.SignalsRelayed,
		m.RelayMisses,
		m.Evictions,
		m.SlowConsumers,
		m.ChatMessages,
		m.AdminActions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
