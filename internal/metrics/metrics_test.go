package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsIgnoreWrites(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricTokensIssued)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if got := m.Value(MetricTokensIssued); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestConcurrentIncrement(t *testing.T) {
	m := New(Config{Enabled: true})

	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricVerifySuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricVerifySuccess); got != goroutines*perG {
		t.Fatalf("expected %d, got %d", goroutines*perG, got)
	}
}

func TestLatencyHistogramBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		time.Millisecond,
		7 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		2 * time.Second,
	} {
		m.Observe(MetricVerifyLatency, d)
	}
	m.Observe(MetricTokensIssued, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistogramBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, v)
		}
	}
}

func TestSnapshotOmitsLatencyWhenDisabled(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Observe(MetricVerifyLatency, time.Millisecond)
	if _, ok := m.Snapshot().Histograms[MetricVerifyLatency]; ok {
		t.Fatal("latency histogram must be absent when disabled")
	}
}
