package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_completed_total",
		Help: "Total number of sales committed",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of failed sale commits",
	}, []string{"reason"})

	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_conflicts_total",
		Help: "Total number of commits rejected because stock dropped after pricing",
	})

	PromotionsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promotions_applied_total",
		Help: "Total number of sales committed with a promotion discount",
	})

	PromotionsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promotions_dropped_total",
		Help: "Total number of commits where the promotion was exhausted and the discount dropped",
	})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Total number of ledger entries appended",
	}, []string{"kind"})

	SaleCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_commit_latency_seconds",
		Help:    "Latency of the sale commit sequence",
		Buckets: prometheus.DefBuckets,
	})

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
