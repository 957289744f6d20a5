// Package prometheus renders engine metrics in the Prometheus text exposition
// format.
//
// Counters are named gotoken_*_total; the verify latency histogram is
// gotoken_verify_latency_seconds. Nothing is registered globally: callers
// mount [Exporter.Handler] wherever they serve /metrics.
package prometheus
