// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Eviction and drop reasons used as metric labels.
const (
	ReasonDisconnect   = "disconnect"
	ReasonSendFailed   = "send_failed"
	ReasonShutdown     = "shutdown"
	ReasonGuestPost    = "guest_post"
	ReasonGuestTyping  = "guest_typing"
	ReasonEmptyMessage = "empty_message"
	ReasonRateLimited  = "rate_limited"
	ReasonNotInRoom    = "not_in_room"
	ReasonQueueFull    = "queue_full"
)

// Sessions is the gauge of admitted sessions per room.
// Use RegisterMetrics to register this with a Prometheus registry.
var Sessions = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "todochat_chat_sessions",
		Help: "Number of sessions currently admitted to a room",
	},
	[]string{"room"},
)

// MessagesTotal counts messages broadcast per room.
var MessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todochat_chat_messages_total",
		Help: "Total number of chat messages broadcast",
	},
	[]string{"room", "author_type"},
)

// EvictionsTotal counts sessions removed from a room.
var EvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todochat_chat_evictions_total",
		Help: "Total number of sessions removed from a room",
	},
	[]string{"room", "reason"},
)

// DroppedEventsTotal counts client events the hub ignored.
var DroppedEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todochat_chat_dropped_events_total",
		Help: "Total number of client events dropped by the hub",
	},
	[]string{"room", "reason"},
)

// PersistFailuresTotal counts messages that could not be persisted.
var PersistFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todochat_chat_persist_failures_total",
		Help: "Total number of chat messages that failed to persist",
	},
	[]string{"room"},
)

// PersistDuration is the histogram of message store append latency.
var PersistDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "todochat_chat_persist_duration_seconds",
		Help:    "Message persistence duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"room"},
)

// RegisterMetrics registers chat metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Sessions)
	reg.MustRegister(MessagesTotal)
	reg.MustRegister(EvictionsTotal)
	reg.MustRegister(DroppedEventsTotal)
	reg.MustRegister(PersistFailuresTotal)
	reg.MustRegister(PersistDuration)
}

func recordDropped(room RoomKind, reason string) {
	DroppedEventsTotal.WithLabelValues(string(room), reason).Inc()
}

func recordEviction(room RoomKind, reason string) {
	EvictionsTotal.WithLabelValues(string(room), reason).Inc()
}

func recordPersist(room RoomKind, d time.Duration, err error) {
	PersistDuration.WithLabelValues(string(room)).Observe(d.Seconds())
	if err != nil {
		PersistFailuresTotal.WithLabelValues(string(room)).Inc()
	}
}
