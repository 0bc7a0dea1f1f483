// Package daemon wires the long-running services into a supervisor tree
// and applies configuration reloads to them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/raoulx24/snaprotate/internal/api"
	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/executor"
	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/lock"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/mailbox"
	"github.com/raoulx24/snaprotate/internal/metrics"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
	"github.com/raoulx24/snaprotate/internal/retention"
	"github.com/raoulx24/snaprotate/internal/scheduler"
	"github.com/raoulx24/snaprotate/internal/watcher"
	"github.com/raoulx24/snaprotate/internal/worker"
)

// Components are the pieces every command needs, daemon or one-shot.
type Components struct {
	Catalog      *catalog.Catalog
	Orchestrator *orchestrator.Orchestrator
	Retention    *retention.Engine
	Executor     orchestrator.Executor
	Metrics      *metrics.Prometheus
	FS           fs.FS
}

// Build opens the catalog and assembles the orchestrator for cfg. The
// caller closes Components.Catalog.
func Build(cfg *config.Config, log logging.Logger) (*Components, error) {
	filesystem := fs.New()

	cat, err := catalog.OpenConfigured(cfg.Catalog, filesystem)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	eng, err := retention.New(cfg, log)
	if err != nil {
		cat.Close()
		return nil, err
	}
	exec, err := executor.New(cfg.Executor, filesystem, log)
	if err != nil {
		cat.Close()
		return nil, err
	}

	m := metrics.NewPrometheus()
	orch := orchestrator.New(cat, lock.New(cfg.Lock.Dir), log,
		orchestrator.WithMetrics(m), orchestrator.WithFS(filesystem))

	return &Components{
		Catalog:      cat,
		Orchestrator: orch,
		Retention:    eng,
		Executor:     exec,
		Metrics:      m,
		FS:           filesystem,
	}, nil
}

// Daemon runs worker, scheduler, config watcher and HTTP server under one
// supervisor.
type Daemon struct {
	mu   sync.Mutex
	cfg  *config.Config
	path string

	log  *logging.ZeroLogger
	comp *Components

	worker    *worker.Worker
	scheduler *scheduler.Scheduler
	watcher   *watcher.Watcher
	api       *api.Server

	root *suture.Supervisor
}

// New assembles the daemon. path is re-read on every reload.
func New(path string, cfg *config.Config, log *logging.ZeroLogger) (*Daemon, error) {
	comp, err := Build(cfg, log)
	if err != nil {
		return nil, err
	}

	d := &Daemon{cfg: cfg, path: path, log: log, comp: comp}

	mb := mailbox.New[worker.Key, worker.Job]()
	d.worker, err = worker.New(cfg, comp.Orchestrator, comp.Retention, mb, executor.New, comp.FS, log)
	if err != nil {
		comp.Catalog.Close()
		return nil, err
	}
	d.scheduler, err = scheduler.New(cfg, d.worker, log)
	if err != nil {
		comp.Catalog.Close()
		return nil, err
	}

	hook := (&sutureslog.Handler{Logger: logging.Slog(log)}).MustHook()
	d.root = suture.New("snaprotate", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	d.root.Add(d.worker)
	d.root.Add(d.scheduler)

	if cfg.ConfigReload.Enabled && path != "" {
		d.watcher = watcher.New(path, cfg.ConfigReload, d.Reload, log)
		d.root.Add(d.watcher)
	}
	if cfg.HTTP.Enabled {
		d.api = api.New(cfg, comp.Catalog, d.worker, d.scheduler, comp.Metrics.Registry, log)
		d.root.Add(d.api)
	}
	return d, nil
}

// Worker exposes the job sink, for triggers outside the tree.
func (d *Daemon) Worker() *worker.Worker { return d.worker }

// Serve runs the supervisor until ctx is cancelled and closes the catalog.
func (d *Daemon) Serve(ctx context.Context) error {
	d.log.Info("daemon starting", "sets", len(d.cfg.Sets), "http", d.cfg.HTTP.Enabled, "configReload", d.cfg.ConfigReload.Enabled)
	err := d.root.Serve(ctx)
	if cerr := d.comp.Catalog.Close(); cerr != nil {
		d.log.Error("closing catalog failed", "error", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reload re-reads the config file and applies it. Catalog, lock and
// listen settings need a restart; changes to them are only logged.
func (d *Daemon) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := config.Load(d.path)
	if err != nil {
		return err
	}
	return d.apply(next)
}

// apply swaps cfg into every service. Caller holds d.mu.
func (d *Daemon) apply(next *config.Config) error {
	prev := d.cfg
	if next.Catalog != prev.Catalog || next.Lock != prev.Lock || next.HTTP != prev.HTTP {
		d.log.Warn("catalog, lock or http settings changed; restart to apply them")
	}

	if err := d.worker.UpdateConfig(next); err != nil {
		return fmt.Errorf("applying to worker: %w", err)
	}
	if err := d.scheduler.UpdateConfig(next); err != nil {
		return fmt.Errorf("applying to scheduler: %w", err)
	}
	if d.watcher != nil {
		d.watcher.UpdateConfig(next.ConfigReload)
	}
	if d.api != nil {
		d.api.UpdateConfig(next)
	}
	d.log.SetLevel(next.Logging.Level)

	d.cfg = next
	d.log.Info("config reloaded", "sets", len(next.Sets))
	return nil
}
