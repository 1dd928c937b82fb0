package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tictactoe"

// Metrics - counters of the game server, registered on the given registerer.
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	ConnectionsDropped prometheus.Counter
	Joins              *prometheus.CounterVec
	Moves              *prometheus.CounterVec
	Outcomes           *prometheus.CounterVec
	SessionsEvicted    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	that := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open websocket connections",
		}),
		ConnectionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_dropped_total",
			Help:      "Connections closed because their send queue was full",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join requests by result",
		}, []string{"result"}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Move requests by result",
		}, []string{"result"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_outcomes_total",
			Help:      "Finished games by outcome",
		}, []string{"kind"}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Idle sessions removed from the store",
		}),
	}

	reg.MustRegister(
		that.ConnectionsActive,
		that.ConnectionsDropped,
		that.Joins,
		that.Moves,
		that.Outcomes,
		that.SessionsEvicted,
	)

	return that
}
