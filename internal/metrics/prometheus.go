// Package metrics exports ledger measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements wallet.MetricsCollector.
type PrometheusCollector struct {
	operationDuration *prometheus.HistogramVec
	operationResults  *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	balanceDelta      prometheus.Histogram
	errors            *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	transactionVolume *prometheus.CounterVec
}

// NewPrometheusCollector registers the ledger metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wallet",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Name:      "operations_total",
				Help:      "Ledger operations by result.",
			},
			[]string{"operation", "result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Name:      "cache_lookups_total",
				Help:      "Balance cache lookups by outcome.",
			},
			[]string{"operation", "outcome"}, // outcome: hit, miss
		),
		balanceDelta: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wallet",
				Name:      "balance_change",
				Help:      "Absolute size of committed balance changes.",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
			},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Name:      "errors_total",
				Help:      "Ledger errors by kind.",
			},
			[]string{"operation", "kind"},
		),
		transactions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Name:      "transactions_total",
				Help:      "Ledger entries reaching a final or pending state.",
			},
			[]string{"type", "status"},
		),
		transactionVolume: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wallet",
				Name:      "transaction_volume",
				Help:      "Absolute amount moved by completed entries.",
			},
			[]string{"type"},
		),
	}
}

func (p *PrometheusCollector) RecordOperationDuration(operation string, d time.Duration) {
	p.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordOperationResult(operation, result string) {
	p.operationResults.WithLabelValues(operation, result).Inc()
}

func (p *PrometheusCollector) RecordCacheHit(operation string) {
	p.cacheLookups.WithLabelValues(operation, "hit").Inc()
}

func (p *PrometheusCollector) RecordCacheMiss(operation string) {
	p.cacheLookups.WithLabelValues(operation, "miss").Inc()
}

// RecordBalanceChange drops the user id; it would explode label cardinality.
func (p *PrometheusCollector) RecordBalanceChange(_ uint, oldBalance, newBalance float64) {
	delta := newBalance - oldBalance
	if delta < 0 {
		delta = -delta
	}
	p.balanceDelta.Observe(delta)
}

func (p *PrometheusCollector) RecordError(operation, errType string) {
	p.errors.WithLabelValues(operation, errType).Inc()
}

func (p *PrometheusCollector) RecordTransaction(txType, status string, amount float64) {
	p.transactions.WithLabelValues(txType, status).Inc()
	if status != "completed" {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	p.transactionVolume.WithLabelValues(txType).Add(amount)
}
