package goToken

import (
	internalmetrics "github.com/MrEthical07/goToken/internal/metrics"
)

// MetricID identifies one engine counter or the verify latency histogram.
type MetricID = internalmetrics.MetricID

const (
	// MetricTokensIssued counts pairs written by GenerateTokens.
	MetricTokensIssued = internalmetrics.MetricTokensIssued
	// MetricVerifySuccess counts tokens that passed both verification phases.
	MetricVerifySuccess = internalmetrics.MetricVerifySuccess
	// MetricVerifyFailure counts every rejected token.
	MetricVerifyFailure = internalmetrics.MetricVerifyFailure
	// MetricVerifyBackendMismatch counts tokens that passed local checks but
	// did not match the stored session.
	MetricVerifyBackendMismatch = internalmetrics.MetricVerifyBackendMismatch
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	// MetricRefreshConflict counts refreshes that lost a concurrent rotation.
	MetricRefreshConflict    = internalmetrics.MetricRefreshConflict
	MetricRefreshUserMissing = internalmetrics.MetricRefreshUserMissing
	MetricLogout             = internalmetrics.MetricLogout
	// MetricStoreFailure counts session store errors on any path.
	MetricStoreFailure  = internalmetrics.MetricStoreFailure
	MetricVerifyLatency = internalmetrics.MetricVerifyLatency
)

// Metrics holds the engine's lock-free counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
