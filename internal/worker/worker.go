// Package worker runs snapshot and retention jobs one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/mailbox"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
	"github.com/raoulx24/snaprotate/internal/retention"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// ExecutorFactory builds the executor for the configured kind.
type ExecutorFactory func(cfg config.ExecutorConfig, filesystem fs.FS, log logging.Logger) (orchestrator.Executor, error)

// Worker takes jobs from the mailbox and drives the orchestrator.
type Worker struct {
	mu        sync.RWMutex
	cfg       *config.Config
	exec      orchestrator.Executor
	newExec   ExecutorFactory
	fs        fs.FS
	orch      *orchestrator.Orchestrator
	retention *retention.Engine
	mb        *mailbox.Mailbox[Key, Job]
	log       logging.Logger
}

// New creates a worker for cfg. The executor is built through newExec so
// reloads can switch between kinds.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, r *retention.Engine, mb *mailbox.Mailbox[Key, Job], newExec ExecutorFactory, filesystem fs.FS, log logging.Logger) (*Worker, error) {
	log.Debug("creating worker")
	if filesystem == nil {
		filesystem = fs.New()
	}
	exec, err := newExec(cfg.Executor, filesystem, log)
	if err != nil {
		return nil, err
	}
	return &Worker{
		cfg:       cfg,
		exec:      exec,
		newExec:   newExec,
		fs:        filesystem,
		orch:      orch,
		retention: r,
		mb:        mb,
		log:       log,
	}, nil
}

// Submit hands a job to the worker. A pending job of the same set and
// kind is replaced.
func (w *Worker) Submit(j Job) {
	if w.mb.Put(j.Key(), j) {
		w.log.Info("worker: pending job replaced", "set", j.Set, "kind", j.Kind, "runId", j.RunID, "source", j.Source)
	}
}

// Serve runs the worker loop until ctx is cancelled.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info("starting worker")
	for {
		job, err := w.mb.Take(ctx)
		if err != nil {
			return err
		}
		if err := w.Handle(ctx, job); err != nil {
			w.log.Error("worker: job failed", "set", job.Set, "kind", job.Kind, "runId", job.RunID, "error", err)
		}
	}
}

func (w *Worker) String() string { return "worker" }

// Handle runs one job synchronously.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	w.mu.RLock()
	cfg, exec := w.cfg, w.exec
	w.mu.RUnlock()

	set, ok := cfg.Set(job.Set)
	if !ok {
		return fmt.Errorf("unknown set %q", job.Set)
	}
	bs := set.BackupSet()
	log := w.log.With("runId", job.RunID, "set", job.Set)

	switch job.Kind {
	case KindCreate:
		id, err := w.orch.CreateSnapshot(ctx, bs, exec)
		switch {
		case errors.Is(err, snapshot.ErrConcurrentRun), errors.Is(err, snapshot.ErrClock):
			return err
		case err != nil:
			// the failed snapshot is still worth a retention pass
			log.Warn("worker: snapshot failed", "id", id, "error", err)
		default:
			log.Info("worker: snapshot created", "id", id)
		}
		if set.PruneSchedule != "" {
			return err
		}
		return errors.Join(err, w.prune(ctx, bs, exec, log))

	case KindPrune:
		return w.prune(ctx, bs, exec, log)

	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) prune(ctx context.Context, bs snapshot.BackupSet, exec orchestrator.Executor, log logging.Logger) error {
	policy, ok := w.retention.Policy(bs.Name)
	if !ok {
		return fmt.Errorf("no retention policy for set %q", bs.Name)
	}
	results, err := w.orch.ApplyRetention(ctx, bs, policy, exec)
	if err != nil {
		return err
	}

	var failed []error
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err)
		}
	}
	log.Info("worker: retention pass done", "selected", len(results), "failed", len(failed))
	return errors.Join(failed...)
}

// UpdateConfig hot-reloads sets, retention policies and the executor.
// On error the previous configuration stays in effect.
func (w *Worker) UpdateConfig(cfg *config.Config) error {
	w.log.Debug("entering Worker.UpdateConfig()")
	exec, err := w.newExec(cfg.Executor, w.fs, w.log)
	if err != nil {
		return err
	}
	if err := w.retention.UpdateConfig(cfg); err != nil {
		return err
	}

	w.mu.Lock()
	w.cfg = cfg
	w.exec = exec
	w.mu.Unlock()
	return nil
}
