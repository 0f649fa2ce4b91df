package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LobbiesOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "lobby_coordinator_lobbies_open",
	Help: "Number of currently open lobbies.",
})

var ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "lobby_coordinator_connections_active",
	Help: "Number of live websocket connections.",
})

var MessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lobby_coordinator_messages_routed_total",
	Help: "Lobby messages delivered, by routing target.",
}, []string{"target"})

var SendsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lobby_coordinator_sends_dropped_total",
	Help: "Events dropped because a member outbox was full.",
})
