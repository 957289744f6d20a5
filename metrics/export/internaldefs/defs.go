package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
	internalmetrics "github.com/MrEthical07/goToken/internal/metrics"
)

// BucketCount is the number of latency buckets, +Inf included.
const BucketCount = internalmetrics.HistogramBucketCount

// Def names one exported series.
type Def struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in exposition order.
var CounterDefs = []Def{
	{ID: goToken.MetricTokensIssued, Name: "gotoken_tokens_issued_total", Help: "Token pairs issued and stored."},
	{ID: goToken.MetricVerifySuccess, Name: "gotoken_verify_success_total", Help: "Tokens that passed local and session checks."},
	{ID: goToken.MetricVerifyFailure, Name: "gotoken_verify_failure_total", Help: "Rejected tokens."},
	{ID: goToken.MetricVerifyBackendMismatch, Name: "gotoken_verify_backend_mismatch_total", Help: "Locally valid tokens rejected by the session record."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful token rotations."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: goToken.MetricRefreshConflict, Name: "gotoken_refresh_conflict_total", Help: "Refreshes that lost a concurrent rotation."},
	{ID: goToken.MetricRefreshUserMissing, Name: "gotoken_refresh_user_missing_total", Help: "Refreshes for users that no longer exist."},
	{ID: goToken.MetricLogout, Name: "gotoken_logout_total", Help: "Session revocations."},
	{ID: goToken.MetricStoreFailure, Name: "gotoken_store_failure_total", Help: "Session store errors."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []Def{
	{ID: goToken.MetricVerifyLatency, Name: "gotoken_verify_latency_seconds", Help: "VerifyToken latency."},
}

// AuditDropped names the dropped audit event counter.
var AuditDropped = Def{
	Name: "gotoken_audit_dropped_total",
	Help: "Audit events dropped because the dispatcher buffer was full.",
}

// HistogramBounds are the upper bounds, in seconds, matching the engine buckets.
var HistogramBounds = [BucketCount]string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form valid inside instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf",
}

// Cumulative turns raw per-bucket counts into cumulative counts. Missing
// buckets count as zero.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
