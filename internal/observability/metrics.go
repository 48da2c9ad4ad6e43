package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	TicketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_issued_total",
			Help: "Tickets issued by purchase operations",
		},
		[]string{"event"},
	)

	TicketsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_redeemed_total",
			Help: "Tickets transitioned to used",
		},
	)

	TicketsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_refunded_total",
			Help: "Tickets transitioned to refunded",
		},
	)

	PurchaseRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_purchase_rejections_total",
			Help: "Purchases rejected by validation, by reason",
		},
		[]string{"reason"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketing_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox row",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
