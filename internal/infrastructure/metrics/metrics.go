package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Queue metrics
	Allocations        *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
	OverflowBlocks     prometheus.Counter

	// Settlement metrics
	Settlements        *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	SettlementAmount   prometheus.Histogram
	EffectFailures     *prometheus.CounterVec
	ClampedDecrements  prometheus.Counter

	// Reconciler metrics
	ReconcileRuns    *prometheus.CounterVec
	ReconcilePending prometheus.Gauge

	// Payment metrics
	PurchaseIntents *prometheus.CounterVec
	Notifications   *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Queue metrics
		Allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_allocations_total",
				Help: "Seller allocations by outcome",
			},
			[]string{"outcome"},
		),
		AllocationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invitequeue_allocation_duration_seconds",
			Help:    "Duration of seller allocation",
			Buckets: prometheus.DefBuckets,
		}),
		OverflowBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "invitequeue_overflow_blocks_total",
			Help: "Overflow blocks inserted into an empty queue",
		}),

		// Settlement metrics
		Settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_settlements_total",
				Help: "Settlement calls by outcome",
			},
			[]string{"outcome"},
		),
		SettlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invitequeue_settlement_duration_seconds",
			Help:    "Duration of settlement calls",
			Buckets: prometheus.DefBuckets,
		}),
		SettlementAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invitequeue_settlement_amount",
			Help:    "Gross amounts of settled payments",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 10000},
		}),
		EffectFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_settlement_effect_failures_total",
				Help: "Post-commit effects that exhausted their retry budget",
			},
			[]string{"effect"},
		),
		ClampedDecrements: factory.NewCounter(prometheus.CounterOpts{
			Name: "invitequeue_clamped_decrements_total",
			Help: "Batch decrements that would have gone below zero",
		}),

		// Reconciler metrics
		ReconcileRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_reconcile_transactions_total",
				Help: "Transactions processed by the reconciler by result",
			},
			[]string{"result"},
		),
		ReconcilePending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "invitequeue_reconcile_pending",
			Help: "Transactions with pending effects seen by the last reconcile pass",
		}),

		// Payment metrics
		PurchaseIntents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_purchase_intents_total",
				Help: "Purchase intents by outcome",
			},
			[]string{"outcome"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_payment_notifications_total",
				Help: "Gateway notifications by outcome",
			},
			[]string{"outcome"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invitequeue_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Authentication metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_auth_failures_total",
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invitequeue_rate_limit_hits_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}
