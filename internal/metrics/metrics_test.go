package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	p := NewPrometheus()

	p.SnapshotFinished("host1", OutcomeSuccess, 3*time.Second)
	p.SnapshotFinished("host1", OutcomeSuccess, time.Second)
	p.SnapshotFinished("host1", OutcomeFailure, time.Second)
	p.SnapshotFinished("host1", OutcomeClock, 0)
	p.Deletion("host1", OutcomeSuccess)
	p.ConcurrentRunRejected("host1")
	p.SnapshotLatest("host1", time.Unix(1700000000, 0), 2048)

	if got := testutil.ToFloat64(p.snapshots.WithLabelValues("host1", OutcomeSuccess)); got != 2 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(p.snapshots.WithLabelValues("host1", OutcomeClock)); got != 1 {
		t.Errorf("clock = %v", got)
	}
	if got := testutil.ToFloat64(p.deletions.WithLabelValues("host1", OutcomeSuccess)); got != 1 {
		t.Errorf("deletions = %v", got)
	}
	if got := testutil.ToFloat64(p.concurrentRuns.WithLabelValues("host1")); got != 1 {
		t.Errorf("concurrent = %v", got)
	}
	if got := testutil.ToFloat64(p.latestTime.WithLabelValues("host1")); got != 1700000000 {
		t.Errorf("latest time = %v", got)
	}
	if got := testutil.CollectAndCount(p.duration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestNopIsSafe(t *testing.T) {
	r := Nop()
	r.SnapshotFinished("x", OutcomeSuccess, time.Second)
	r.Deletion("x", OutcomeFailure)
	r.ConcurrentRunRejected("x")
	r.SnapshotLatest("x", time.Now(), 1)
}
