package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Messaging metrics
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_messages_persisted_total",
			Help: "Total direct messages persisted",
		},
		[]string{"source"}, // "ws" or "http"
	)

	LiveDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_live_deliveries_total",
			Help: "Messages pushed to an online recipient",
		},
	)

	DroppedPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_dropped_pushes_total",
			Help: "Outbound events dropped because the connection buffer was full",
		},
		[]string{"event"},
	)

	DroppedSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_dropped_sends_total",
			Help: "Inbound send-message events dropped without processing",
		},
		[]string{"reason"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_send_failures_total",
			Help: "Send-message events aborted by a resolve or persist error",
		},
	)

	ThreadsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_threads_created_total",
			Help: "Threads created by this instance",
		},
	)

	ThreadCreateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirechat_thread_create_conflicts_total",
			Help: "Thread creations that lost the pair-key race and re-read the winner",
		},
	)

	// Presence metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wirechat_online_users",
			Help: "Users with a live connection on this instance",
		},
	)
)
