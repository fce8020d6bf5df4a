package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AccessRequests     prometheus.Counter
	AccessApprovals    prometheus.Counter
	AccessRevocations  prometheus.Counter
	ProvidersVerified  prometheus.Counter
	RecordsAppended    prometheus.Counter
	DecryptionFailures prometheus.Counter
	RetrievalDuration  prometheus.Histogram
	HTTPDuration       *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AccessRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_access_requests_total",
			Help: "Total number of access requests submitted to the ledger",
		}),
		AccessApprovals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_access_approvals_total",
			Help: "Total number of access approvals submitted to the ledger",
		}),
		AccessRevocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_access_revocations_total",
			Help: "Total number of access revocations submitted to the ledger",
		}),
		ProvidersVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_providers_verified_total",
			Help: "Total number of providers verified by the admin",
		}),
		RecordsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_records_appended_total",
			Help: "Total number of content references appended to the record index",
		}),
		DecryptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_decryption_failures_total",
			Help: "Total number of failed unwrap or content decryption attempts",
		}),
		RetrievalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medledger_retrieval_duration_seconds",
			Help:    "End-to-end duration of record retrieval flows",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
