package watcher

import (
	"github.com/raoulx24/snaprotate/internal/config"
)

// UpdateConfig updates watcher timings for hot-reload. Mode changes take
// effect the next time Serve starts.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval
	w.mode = cfg.Method
	w.debounce = cfg.Debounce
	w.stability = cfg.Stability
}
