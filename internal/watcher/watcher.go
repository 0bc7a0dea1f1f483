// Package watcher monitors the configuration file and triggers a reload
// when it changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/fsprobe"
	"github.com/raoulx24/snaprotate/internal/logging"
)

// ReloadFunc re-reads and applies the configuration.
type ReloadFunc func(ctx context.Context) error

// Watcher observes one file and calls reload when it settles after a change.
type Watcher struct {
	mu sync.RWMutex

	path      string
	interval  time.Duration
	mode      string
	debounce  time.Duration
	stability time.Duration

	log    logging.Logger
	reload ReloadFunc

	lastModTime time.Time
	lastSize    int64
}

// New creates a watcher for the config file at path. The file's current
// state is the baseline; only later changes trigger a reload.
func New(path string, cfg config.ReloadConfig, reload ReloadFunc, log logging.Logger) *Watcher {
	w := &Watcher{
		path:   path,
		log:    log,
		reload: reload,
	}
	w.UpdateConfig(cfg)
	if mod, size, ok := w.stat(); ok {
		w.lastModTime, w.lastSize = mod, size
	}
	return w
}

// Serve chooses the watching strategy based on config and runs it until
// ctx is cancelled.
func (w *Watcher) Serve(ctx context.Context) error {
	w.mu.RLock()
	mode := w.mode
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		return w.StartPolling(ctx)

	case "auto", "":
		res := fsprobe.Probe(dir, fsprobe.DefaultTimeout)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling instead", "dir", dir, "reason", res.Reason)
		return w.StartPolling(ctx)

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (w *Watcher) String() string { return "config-watcher" }
