package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of committed checkouts",
	})

	CheckoutReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_replays_total",
		Help: "Total number of checkouts answered from an idempotency key",
	})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the cart to order transaction",
		Buckets: prometheus.DefBuckets,
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"operation", "result"})

	OrderStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_updates_total",
		Help: "Total number of admin order status updates",
	}, []string{"status"})

	CatalogCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_lookups_total",
		Help: "Product cache lookups by result",
	}, []string{"result"})

	EventPublishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_publish_failures_total",
		Help: "Total number of domain events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
