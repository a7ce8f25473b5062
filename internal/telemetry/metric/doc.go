// Package metric provides Prometheus metrics for FileBay.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, counters and the HTTP handler
//   - collector.go: scrape-time gauges read from the storage engine
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
