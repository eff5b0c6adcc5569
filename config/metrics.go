package config

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReconciliationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconciliation_outcomes_total",
			Help: "Reconciliation results by status",
		},
		[]string{"status"},
	)

	ReconciliationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_reconciliation_conflicts_total",
			Help: "Re-evaluations that lost an optimistic version check",
		},
	)

	VerificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_verifications_total",
			Help: "Verification calls by target status and result",
		},
		[]string{"status", "result"},
	)

	FeedRowsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_feed_rows_total",
			Help: "Rows returned by list endpoints",
		},
		[]string{"feed", "mode"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(ReconciliationOutcomes)
	prometheus.MustRegister(ReconciliationConflicts)
	prometheus.MustRegister(VerificationTotal)
	prometheus.MustRegister(FeedRowsServed)
	prometheus.MustRegister(HTTPRequestDuration)
}
