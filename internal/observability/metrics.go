package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for commerce-core
type Metrics struct {
	// Order operations
	OrdersCreatedTotal   *prometheus.CounterVec
	OrdersCanceledTotal  *prometheus.CounterVec
	OrdersCompletedTotal prometheus.Counter

	// Payments
	PaymentsTotal *prometheus.CounterVec

	// Likes
	LikesTotal *prometheus.CounterVec

	// Performance
	OrderPlacementDuration *prometheus.HistogramVec
	GatewayCallDuration    *prometheus.HistogramVec

	// Outbox relay
	OutboxEventsPublished *prometheus.CounterVec
	OutboxEventsFailed    *prometheus.CounterVec

	// Consumers
	ConsumerRecordsProcessed *prometheus.CounterVec
	ConsumerRecordsSkipped   *prometheus.CounterVec
	ConsumerRecordsFailed    *prometheus.CounterVec

	// Product cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Batch ranker
	BatchRowsWritten *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics with a custom registry (useful for testing)
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OrdersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_orders_created_total",
				Help: "Total number of orders created",
			},
			[]string{"status"}, // success, failure
		),
		OrdersCanceledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_orders_canceled_total",
				Help: "Total number of orders canceled",
			},
			[]string{"reason"}, // payment_failed, user_cancel
		),
		OrdersCompletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "commerce_orders_completed_total",
				Help: "Total number of orders completed",
			},
		),
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_payments_total",
				Help: "Total number of payments by terminal status",
			},
			[]string{"status"}, // SUCCESS, FAILED, PENDING
		),
		LikesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_likes_total",
				Help: "Total number of like operations",
			},
			[]string{"op"}, // add, remove
		),
		OrderPlacementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commerce_order_placement_duration_seconds",
				Help:    "Duration of order placement operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		GatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commerce_gateway_call_duration_seconds",
				Help:    "Duration of payment-gateway calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		OutboxEventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_outbox_events_published_total",
				Help: "Total number of outbox events successfully published",
			},
			[]string{"event_type"},
		),
		OutboxEventsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_outbox_events_failed_total",
				Help: "Total number of outbox events failed to publish",
			},
			[]string{"event_type"},
		),
		ConsumerRecordsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_consumer_records_processed_total",
				Help: "Total number of consumer records applied",
			},
			[]string{"topic", "group"},
		),
		ConsumerRecordsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_consumer_records_skipped_total",
				Help: "Total number of consumer records skipped (duplicate or malformed)",
			},
			[]string{"topic", "group", "reason"},
		),
		ConsumerRecordsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_consumer_records_failed_total",
				Help: "Total number of consumer records that failed processing",
			},
			[]string{"topic", "group"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_cache_hits_total",
				Help: "Total number of product cache hits",
			},
			[]string{"kind"}, // list, detail
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_cache_misses_total",
				Help: "Total number of product cache misses",
			},
			[]string{"kind"},
		),
		BatchRowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commerce_batch_rows_written_total",
				Help: "Total number of rows written by batch jobs",
			},
			[]string{"step"}, // aggregate, rank
		),
	}
}
