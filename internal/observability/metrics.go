package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// EngagementEvents counts dispatched engagement events by kind and outcome.
	EngagementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_engagement_events_total",
		Help: "Engagement events by kind and result (applied, skipped, failed)",
	}, []string{"kind", "result"})

	// CounterRetries counts optimistic-lock retries on counter updates.
	CounterRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_counter_update_retries_total",
		Help: "Optimistic lock retries on counter updates by table",
	}, []string{"table"})

	// AlertMatches counts subscriptions matched by trigger.
	AlertMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_alert_matches_total",
		Help: "Search subscriptions matched by trigger (content, catalogue, engagement)",
	}, []string{"trigger"})

	// NotificationsDelivered counts delivery attempts by channel and result.
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_notifications_delivered_total",
		Help: "Notification delivery attempts by channel (store, realtime, push) and result",
	}, []string{"channel", "result"})

	// DeliveryQueueDepth is the number of fan-out jobs waiting for a worker.
	DeliveryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_delivery_queue_depth",
		Help: "Notification fan-out jobs waiting for a worker",
	})

	// LiveSessions is the gauge of registered realtime sessions.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_live_sessions",
		Help: "Number of live realtime sessions",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// PushBreakerState is the push transport breaker state (0 closed, 1 half-open, 2 open).
	PushBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_push_breaker_state",
		Help: "Web push circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	// SearchLatency records keyword search latency by mode.
	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_search_latency_seconds",
		Help:    "Keyword search latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)
