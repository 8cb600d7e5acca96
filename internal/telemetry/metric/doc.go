// Package metric provides Prometheus metrics for kvgate.
//
//   - prometheus.go: the application Registry and its HTTP handler
//   - collector.go: scrape-time collectors for store statistics
//
// Metrics are exposed at /metrics in Prometheus text format. Every Registry
// method is safe to call on a nil *Registry, so components can run without
// metrics in tests.
package metric
