// Package metrics exposes Prometheus instrumentation for snapshot runs
// and retention passes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Recorder is what the orchestrator reports to.
type Recorder interface {
	SnapshotFinished(set, outcome string, d time.Duration)
	SnapshotLatest(set string, at time.Time, sizeBytes int64)
	Deletion(set, outcome string)
	ConcurrentRunRejected(set string)
}

// Outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeClock   = "clock_error"
)

// Prometheus implements Recorder with its own registry so tests and the
// HTTP handler don't share global state.
type Prometheus struct {
	Registry *prometheus.Registry

	snapshots      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	latestTime     *prometheus.GaugeVec
	latestSize     *prometheus.GaugeVec
	deletions      *prometheus.CounterVec
	concurrentRuns *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		Registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snaprotate_snapshots_total",
				Help: "Snapshot creation attempts by set and outcome",
			},
			[]string{"set", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snaprotate_snapshot_duration_seconds",
				Help:    "Wall time of snapshot materialization",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s .. ~2.3h
			},
			[]string{"set"},
		),
		latestTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snaprotate_latest_snapshot_timestamp_seconds",
				Help: "Unix time of the latest complete snapshot",
			},
			[]string{"set"},
		),
		latestSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snaprotate_latest_snapshot_size_bytes",
				Help: "Bytes written by the latest complete snapshot",
			},
			[]string{"set"},
		),
		deletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snaprotate_retention_deletions_total",
				Help: "Snapshot deletions attempted by retention passes",
			},
			[]string{"set", "outcome"},
		),
		concurrentRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snaprotate_concurrent_runs_rejected_total",
				Help: "Runs rejected because the set was already locked",
			},
			[]string{"set"},
		),
	}

	p.Registry.MustRegister(
		p.snapshots, p.duration, p.latestTime, p.latestSize, p.deletions, p.concurrentRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) SnapshotFinished(set, outcome string, d time.Duration) {
	p.snapshots.WithLabelValues(set, outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		p.duration.WithLabelValues(set).Observe(d.Seconds())
	}
}

func (p *Prometheus) SnapshotLatest(set string, at time.Time, sizeBytes int64) {
	p.latestTime.WithLabelValues(set).Set(float64(at.Unix()))
	p.latestSize.WithLabelValues(set).Set(float64(sizeBytes))
}

func (p *Prometheus) Deletion(set, outcome string) {
	p.deletions.WithLabelValues(set, outcome).Inc()
}

func (p *Prometheus) ConcurrentRunRejected(set string) {
	p.concurrentRuns.WithLabelValues(set).Inc()
}

type nop struct{}

func (nop) SnapshotFinished(string, string, time.Duration) {}
func (nop) SnapshotLatest(string, time.Time, int64)        {}
func (nop) Deletion(string, string)                        {}
func (nop) ConcurrentRunRejected(string)                   {}

// Nop discards everything.
func Nop() Recorder { return nop{} }
