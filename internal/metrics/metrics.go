package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_ledger_operation_duration_seconds",
			Help:    "Ledger operation duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	IdentityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_identity_checks_total",
			Help: "Total number of identity verification checks by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func RecordOperation(operation, outcome string, started time.Time) {
	LedgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
	LedgerOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func RecordIdentityCheck(outcome string) {
	IdentityChecksTotal.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
