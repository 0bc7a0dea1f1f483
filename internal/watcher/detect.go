package watcher

import (
	"context"
	"os"
	"time"
)

// detect calls reload if the file changed since the last reload and is no
// longer being written.
func (w *Watcher) detect(ctx context.Context) {
	mod, size, ok := w.stat()
	if !ok {
		// a rename-in-progress or a deleted file; wait for the next event
		return
	}

	w.mu.RLock()
	changed := !mod.Equal(w.lastModTime) || size != w.lastSize
	w.mu.RUnlock()
	if !changed {
		return
	}

	if !w.isFileStable(size) {
		w.log.Debug("config file still changing", "path", w.path)
		return
	}

	w.mu.Lock()
	w.lastModTime = mod
	w.lastSize = size
	w.mu.Unlock()

	w.log.Info("config file changed, reloading", "path", w.path)
	if err := w.reload(ctx); err != nil {
		w.log.Error("config reload failed", "path", w.path, "error", err)
	}
}

func (w *Watcher) stat() (time.Time, int64, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, 0, false
	}
	return info.ModTime(), info.Size(), true
}

// isFileStable reports whether the size still equals size after the
// stability window.
func (w *Watcher) isFileStable(size int64) bool {
	w.mu.RLock()
	stability := w.stability
	w.mu.RUnlock()

	time.Sleep(stability)

	_, now, ok := w.stat()
	return ok && now == size
}
