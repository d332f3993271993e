// ABOUTME: Prometheus collectors for message flow, delivery outcomes and presence
// ABOUTME: Registered on the default registry and served by the gateway at /metrics

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_messages_sent_total",
			Help: "Total direct messages persisted",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_deliveries_total",
			Help: "Message dispatch attempts by outcome",
		},
		[]string{"outcome"}, // "delivered" or "queued_only"
	)

	ReadNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_read_notifications_total",
			Help: "messagesRead notifications by outcome",
		},
		[]string{"outcome"},
	)

	LedgerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_ledger_failures_total",
			Help: "Conversation ledger updates that failed after the message was persisted",
		},
	)

	DuplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_duplicate_messages_total",
			Help: "Socket sends rejected because the clientMessageId was already seen",
		},
	)

	// Presence metrics
	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_connected_users",
			Help: "Users with a live real-time connection",
		},
	)

	SocketRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_socket_rejections_total",
			Help: "Real-time connections closed during authentication",
		},
		[]string{"reason"},
	)
)
