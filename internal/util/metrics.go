package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Total number of sales created",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of failed sale creations",
	}, []string{"reason"})

	ReturnsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_processed_total",
		Help: "Total number of returns processed",
	})

	ReturnsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_failed_total",
		Help: "Total number of rejected or failed returns",
	}, []string{"reason"})

	ReturnsRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_recovered_total",
		Help: "Total number of returns completed by the recovery sweep",
	})

	RestockLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "restock_latency_seconds",
		Help:    "Latency of the restock step of return processing",
		Buckets: prometheus.DefBuckets,
	})

	StatsRecomputeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statistics_recompute_total",
		Help: "Total number of daily statistics recomputations",
	})

	StatsRecomputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "statistics_recompute_latency_seconds",
		Help:    "Latency of daily statistics recomputation",
		Buckets: prometheus.DefBuckets,
	})

	BarcodesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barcodes_issued_total",
		Help: "Total number of barcode identifiers issued",
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
