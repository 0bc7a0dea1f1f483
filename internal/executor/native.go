package executor

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Native builds hard-link incremental snapshots without external tools.
// Files whose size and mtime match the copy under the link base are
// hard-linked; everything else is copied. Device files, sockets and pipes
// are skipped.
type Native struct {
	fs  fs.FS
	log logging.Logger
}

func NewNative(filesystem fs.FS, log logging.Logger) *Native {
	return &Native{fs: filesystem, log: log}
}

// copyStats is the per-run bookkeeping of a materialization.
type copyStats struct {
	copiedBytes int64
	copied      int
	linked      int
	skipped     int
}

// Materialize writes into a temp directory beside the target and renames
// it into place. A failed copy is renamed into place too, so the partial
// tree can be inspected and is removed with the failed snapshot.
func (n *Native) Materialize(ctx context.Context, req orchestrator.MaterializeRequest) (int64, error) {
	if len(req.RootPaths) == 0 {
		return 0, fmt.Errorf("native: no root paths")
	}
	tmp := filepath.Join(filepath.Dir(req.Target), snapshot.TempPrefix+filepath.Base(req.Target))

	// leftovers of an interrupted run
	if err := n.fs.RemoveAll(ctx, tmp); err != nil {
		return 0, fmt.Errorf("native: clearing %s: %w", tmp, err)
	}
	if err := n.fs.MkdirAll(tmp); err != nil {
		return 0, fmt.Errorf("native: creating %s: %w", tmp, err)
	}

	var st copyStats
	for _, root := range req.RootPaths {
		if err := n.copyRoot(ctx, root, tmp, req, &st); err != nil {
			if rerr := n.fs.Rename(context.WithoutCancel(ctx), tmp, req.Target); rerr != nil {
				n.log.Warn("native: keeping partial copy failed", "tmp", tmp, "error", rerr)
			}
			return 0, fmt.Errorf("native: %s: %w", root, err)
		}
	}

	if err := n.fs.Rename(ctx, tmp, req.Target); err != nil {
		return 0, fmt.Errorf("native: finalizing snapshot: %w", err)
	}

	n.log.Debug("native: snapshot written", "target", req.Target,
		"copied", st.copied, "linked", st.linked, "skipped", st.skipped, "copiedBytes", st.copiedBytes)
	return st.copiedBytes, nil
}

func (n *Native) Delete(ctx context.Context, target string) error {
	return n.fs.RemoveAll(ctx, target)
}

func (n *Native) copyRoot(ctx context.Context, root, dstRoot string, req orchestrator.MaterializeRequest, st *copyStats) error {
	root = filepath.Clean(root)
	if err := n.fs.MkdirAll(filepath.Join(dstRoot, filepath.Dir(root))); err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path != root && excluded(req.Excludes, path, d.IsDir()) {
			n.log.Debug("native: excluded", "path", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(dstRoot, path)
		switch {
		case d.IsDir():
			return n.fs.MkdirAll(dst)

		case d.Type()&iofs.ModeSymlink != 0:
			target, err := n.fs.Readlink(path)
			if err != nil {
				return err
			}
			return n.fs.Symlink(target, dst)

		case d.Type().IsRegular():
			return n.copyFile(ctx, path, dst, req.LinkBase, st)

		default:
			st.skipped++
			n.log.Debug("native: skipping special file", "path", path, "mode", d.Type().String())
			return nil
		}
	})
}

func (n *Native) copyFile(ctx context.Context, src, dst, linkBase string, st *copyStats) error {
	info, err := n.fs.Stat(src)
	if err != nil {
		return err
	}

	if linkBase != "" {
		base := filepath.Join(linkBase, src)
		prev, err := n.fs.Stat(base)
		switch {
		case err == nil && prev.Mode.IsRegular() && unchanged(info, prev):
			linkErr := n.fs.Link(ctx, base, dst)
			if linkErr == nil {
				st.linked++
				return nil
			}
			// cross-device or link limit reached; fall back to a copy
			n.log.Debug("native: link failed, copying", "path", src, "error", linkErr)
		case err != nil && !errors.Is(err, iofs.ErrNotExist):
			return err
		}
	}

	if err := n.fs.CopyFile(ctx, src, dst); err != nil {
		return err
	}
	st.copied++
	st.copiedBytes += info.Size
	return nil
}

func unchanged(now, prev fs.FileInfo) bool {
	return now.Size == prev.Size && now.MTime.Equal(prev.MTime) && now.Mode.Perm() == prev.Mode.Perm()
}

// excluded follows rsync's rules. A trailing slash limits a pattern to
// directories. A leading slash anchors it at the filesystem root; any
// other pattern containing a slash matches a trailing run of path
// components, and one without a slash matches the base name.
func excluded(patterns []string, path string, dir bool) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, p := range patterns {
		if strings.HasSuffix(p, "/") {
			if !dir {
				continue
			}
			p = strings.TrimRight(p, "/")
		}

		var ok bool
		switch {
		case p == "":
		case strings.HasPrefix(p, "/"):
			ok, _ = doublestar.Match(p, slashed)
		case strings.Contains(p, "/"):
			ok, _ = doublestar.Match("**/"+p, strings.TrimPrefix(slashed, "/"))
		default:
			ok, _ = doublestar.Match(p, base)
		}
		if ok {
			return true
		}
	}
	return false
}
