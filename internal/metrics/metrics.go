package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Context engine metrics
var (
	// Ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_events_total",
			Help: "Total number of resource events handled",
		},
		[]string{"kind", "type"},
	)

	ExtractionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_extraction_failures_total",
			Help: "Resource events dropped because the payload could not be extracted",
		},
		[]string{"kind"},
	)

	StoreResources = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubilitics_context_store_resources",
			Help: "Number of resources currently held in the store",
		},
		[]string{"kind"},
	)

	// Reconciliation metrics
	ReconcilePrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_reconcile_pruned_total",
			Help: "Resources removed by reconciliation after a watch restart",
		},
		[]string{"kind"},
	)

	// Anomaly metrics
	AnomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_anomalies_detected_total",
			Help: "Total number of anomalies reported as new",
		},
		[]string{"type", "severity"},
	)

	ActiveAnomalies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_context_active_anomalies",
			Help: "Number of currently active anomalies",
		},
	)

	// Summary cache metrics
	SummaryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_context_summary_cache_hits_total",
			Help: "Summary requests served from cache",
		},
	)

	SummaryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubilitics_context_summary_cache_misses_total",
			Help: "Summary requests that rebuilt the summary",
		},
	)

	// Context metrics
	ChatContextTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubilitics_context_chat_context_tokens",
			Help:    "Estimated tokens of generated chat context",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10), // 16 to 8192
		},
	)

	// Notification metrics
	DroppedNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_dropped_notifications_total",
			Help: "Notifications dropped because a subscriber buffer was full",
		},
		[]string{"channel"},
	)

	// Watch metrics
	WatchRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_watch_restarts_total",
			Help: "Number of times a resource watch was restarted",
		},
		[]string{"kind", "reason"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kubilitics_context_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubilitics_context_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
)
