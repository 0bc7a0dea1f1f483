// Package executor does the file work of a snapshot: materializing a
// hard-link incremental copy of the roots, and deleting snapshot trees.
package executor

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/raoulx24/snaprotate/internal/config"
	sfs "github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
)

// New returns the executor selected in cfg.
func New(cfg config.ExecutorConfig, filesystem sfs.FS, log logging.Logger) (orchestrator.Executor, error) {
	if filesystem == nil {
		filesystem = sfs.New()
	}
	switch cfg.Kind {
	case "", "rsync":
		return NewRsync(cfg.RsyncPath, cfg.Timeout, filesystem, log), nil
	case "native":
		return NewNative(filesystem, log), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}

// newBytes sums the sizes of regular files under root that are not shared
// with another snapshot. When link counts are unknown every file counts.
func newBytes(filesystem sfs.FS, root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := filesystem.Stat(path)
		if err != nil {
			return err
		}
		if info.Nlink <= 1 {
			total += info.Size
		}
		return nil
	})
	return total, err
}
