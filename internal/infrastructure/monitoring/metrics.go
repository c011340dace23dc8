package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status_code"},
	)
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_created_total",
			Help: "Total number of checkout sessions created with stock reserved",
		},
	)

	CheckoutFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_failure_total",
			Help: "Total number of failed checkout session creations",
		},
		[]string{"reason"},
	)

	ReservationConflictTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_reservation_conflict_total",
			Help: "Total number of reservations rejected by the availability predicate",
		},
	)

	SessionsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_reaped_total",
			Help: "Total number of expired sessions whose reservations were released",
		},
	)
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook events by terminal status",
		},
		[]string{"status"},
	)

	WebhookDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_duplicates_total",
			Help: "Total number of duplicate webhook deliveries short-circuited",
		},
	)

	WebhookRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_retries_total",
			Help: "Total number of webhook retry attempts",
		},
	)

	WebhookRetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_retry_queue_depth",
			Help: "Current depth of the webhook retry queue",
		},
	)

	WebhookDeadLetterDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dead_letter_depth",
			Help: "Current number of dead-lettered webhook events",
		},
	)
)

var (
	OrdersConfirmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Total number of orders moved to CONFIRMED with stock deducted",
		},
	)

	OrderCommitFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_commit_failure_total",
			Help: "Total number of aborted order commits",
		},
		[]string{"reason"},
	)

	EmergencyOrdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emergency_orders_total",
			Help: "Total number of manual-review emergency orders created",
		},
	)

	ReconciliationRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_recovered_total",
			Help: "Total number of payments repaired by the reconciliation sweep",
		},
		[]string{"strategy"},
	)
)

var (
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of outbound payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	GatewayDeclinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_declines_total",
			Help: "Total number of provider declines by mapped code",
		},
		[]string{"code"},
	)
)

var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of database connections in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	RedisCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Duration of redis commands",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	RedisLockSuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_lock_success_total",
			Help: "Total number of distributed locks acquired",
		},
		[]string{"key"},
	)

	RedisLockFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_lock_failure_total",
			Help: "Total number of distributed lock failures",
		},
		[]string{"key", "reason"},
	)
)

func TimeDBQuery(queryType, table string) func() {
	start := time.Now()
	return func() {
		DBQueryDuration.WithLabelValues(queryType, table).Observe(time.Since(start).Seconds())
	}
}
