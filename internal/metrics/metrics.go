// Package metrics declares the process's Prometheus series.
//
// Naming convention: namespace_subsystem_name.
//   - namespace: chat (application-level grouping)
//   - subsystem: session, room, coordinator, mailbox (feature-level grouping)
//   - name: specific metric (connections_active, events_total, ...)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the current number of connected sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active client connections.",
	})

	// ActiveRooms tracks the current number of rooms in the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms in the registry.",
	})

	// RoomSubscribers tracks subscriber count per room.
	RoomSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "subscribers_count",
		Help:      "Number of subscribers currently joined to each room.",
	}, []string{"room"})

	// CoordinatorEvents tracks coordinator-handled events by outcome.
	CoordinatorEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "coordinator",
		Name:      "events_total",
		Help:      "Total coordinator events processed, by event and status.",
	}, []string{"event", "status"})

	// MailboxDropped tracks dropped outbound messages by reason.
	MailboxDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "mailbox",
		Name:      "dropped_total",
		Help:      "Total outbound messages dropped from a session mailbox.",
	}, []string{"reason"})

	// RoomBroadcastDropped tracks messages dropped by a slow room subscriber.
	RoomBroadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "broadcast_dropped_total",
		Help:      "Total broadcast messages dropped because a subscriber fell behind.",
	}, []string{"room"})
)

// IncSession increments the active session gauge.
func IncSession() {
	ActiveSessions.Inc()
}

// DecSession decrements the active session gauge.
func DecSession() {
	ActiveSessions.Dec()
}
