// Package metric provides Prometheus metrics for memgate.
//
//   - prometheus.go: the Registry, its counters and the /metrics handler
//   - collector.go: a collector reporting member counts from the store
//
// Every Registry method is safe on a nil receiver, so components take an
// optional *Registry and never check it.
package metric
