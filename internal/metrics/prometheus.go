package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kudi"

// Prometheus implements Collector on client_golang vectors.
type Prometheus struct {
	opDuration   *prometheus.HistogramVec
	opResults    *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	errors       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	volume       *prometheus.CounterVec
	reconFlagged *prometheus.CounterVec
}

// NewPrometheus builds the vectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of wallet operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		opResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_results_total",
			Help:      "Wallet operation outcomes.",
		}, []string{"operation", "result"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache name.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache name.",
		}, []string{"cache"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by operation and type.",
		}, []string{"operation", "type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_transitions_total",
			Help:      "Transaction state transitions.",
		}, []string{"from", "to"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_volume",
			Help:      "Completed transaction volume in asset units.",
		}, []string{"category", "asset"}),
		reconFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_flags_total",
			Help:      "Transactions flagged for manual reconciliation.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		p.opDuration,
		p.opResults,
		p.cacheHits,
		p.cacheMisses,
		p.errors,
		p.transitions,
		p.volume,
		p.reconFlagged,
	)
	return p
}

func (p *Prometheus) RecordOperationDuration(operation string, d time.Duration) {
	p.opDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *Prometheus) RecordOperationResult(operation, result string) {
	p.opResults.WithLabelValues(operation, result).Inc()
}

func (p *Prometheus) RecordCacheHit(cache string) {
	p.cacheHits.WithLabelValues(cache).Inc()
}

func (p *Prometheus) RecordCacheMiss(cache string) {
	p.cacheMisses.WithLabelValues(cache).Inc()
}

func (p *Prometheus) RecordError(operation, errType string) {
	p.errors.WithLabelValues(operation, errType).Inc()
}

func (p *Prometheus) RecordTransition(from, to string) {
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) RecordTransactionVolume(category, asset string, amount float64) {
	if amount < 0 {
		return
	}
	p.volume.WithLabelValues(category, asset).Add(amount)
}

func (p *Prometheus) RecordReconciliationFlag(reason string) {
	p.reconFlagged.WithLabelValues(reason).Inc()
}
