package waproto

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waproto",
		Subsystem: "session",
		Name:      "messages_received_total",
		Help:      "Inbound chat messages of every kind.",
	})
	uploadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waproto",
		Subsystem: "session",
		Name:      "uploads_completed_total",
		Help:      "Media uploads resolved, including duplicate short-circuits.",
	})
)
