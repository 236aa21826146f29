package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waproto",
		Subsystem: "socket",
		Name:      "frames_received_total",
		Help:      "Inbound frames consumed from the main stream.",
	})
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waproto",
		Subsystem: "socket",
		Name:      "frames_sent_total",
		Help:      "Outbound frames queued on the main stream.",
	})
	macFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "waproto",
		Subsystem: "socket",
		Name:      "mac_failures_total",
		Help:      "Frames that failed MAC verification.",
	})
)
