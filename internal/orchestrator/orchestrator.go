// Package orchestrator sequences snapshot creation and retention passes
// for a backup set. The actual copying and deleting is delegated to an
// Executor; catalog state is only touched before and after that call,
// always under the per-set lock.
package orchestrator

import (
	"context"
	"time"

	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/metrics"
)

// MaterializeRequest describes one snapshot copy.
type MaterializeRequest struct {
	RootPaths []string
	Excludes  []string
	Target    string
	LinkBase  string // empty forces a full copy
}

// Executor performs the file work of a snapshot.
type Executor interface {
	Materialize(ctx context.Context, req MaterializeRequest) (sizeBytes int64, err error)
	Delete(ctx context.Context, target string) error
}

// Locker hands out the exclusive per-set run lock.
type Locker interface {
	TryAcquire(name string) (release func(), err error)
}

type Orchestrator struct {
	catalog *catalog.Catalog
	locker  Locker
	log     logging.Logger
	metrics metrics.Recorder
	fs      fs.FS
	now     func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFS replaces the filesystem used for the latest symlink.
func WithFS(f fs.FS) Option {
	return func(o *Orchestrator) { o.fs = f }
}

func New(cat *catalog.Catalog, locker Locker, log logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog: cat,
		locker:  locker,
		log:     log,
		metrics: metrics.Nop(),
		fs:      fs.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Catalog returns the catalog the orchestrator mutates.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog }

// acquire takes the run lock for set and reloads its catalog entries, so
// work done by another process since the last look is visible.
func (o *Orchestrator) acquire(set string) (func(), error) {
	release, err := o.locker.TryAcquire(set)
	if err != nil {
		o.metrics.ConcurrentRunRejected(set)
		return nil, err
	}
	if err := o.catalog.Refresh(set); err != nil {
		release()
		return nil, err
	}
	return release, nil
}
