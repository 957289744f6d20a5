// Package metrics provides lock-free counters and a verification latency
// histogram for the token engine.
//
// Counters live in cache-line-padded uint64 slots updated with sync/atomic.
// The histogram uses 8 fixed buckets (≤5ms … +Inf). Writes never allocate.
//
// Export (Prometheus, OTel) lives in metrics/export and reads Snapshot values.
// This package performs no I/O and keeps no global registry.
package metrics
