// Package metrics exposes the service's operational counters.
package metrics

import "time"

// Collector defines the interface for collecting wallet metrics
type Collector interface {
	// Operation metrics
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)

	// Cache metrics
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)

	// Error metrics
	RecordError(operation, errType string)

	// Transaction metrics
	RecordTransition(from, to string)
	RecordTransactionVolume(category, asset string, amount float64)
	RecordReconciliationFlag(reason string)
}

// Noop is a no-op implementation of Collector
type Noop struct{}

func (Noop) RecordOperationDuration(string, time.Duration)   {}
func (Noop) RecordOperationResult(string, string)            {}
func (Noop) RecordCacheHit(string)                           {}
func (Noop) RecordCacheMiss(string)                          {}
func (Noop) RecordError(string, string)                      {}
func (Noop) RecordTransition(string, string)                 {}
func (Noop) RecordTransactionVolume(string, string, float64) {}
func (Noop) RecordReconciliationFlag(string)                 {}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}
