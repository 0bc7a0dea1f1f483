package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
)

const (
	// archive mode plus hard links; --relative mirrors each absolute root
	// under the target so several roots can share one snapshot.
	rsyncArchiveFlags = "-aH"
	rsyncRelative     = "--relative"
	rsyncDelete       = "--delete"
	rsyncNumericIDs   = "--numeric-ids"

	rsyncBaseFlagFormat    = "--link-dest=%s"
	rsyncExcludeFlagFormat = "--exclude=%s"

	// keep error messages readable when rsync is chatty
	maxOutputTail = 2048
)

// Rsync shells out to rsync with --link-dest pointing at the basis.
type Rsync struct {
	Path    string
	Timeout time.Duration // 0 disables the deadline

	fs  fs.FS
	log logging.Logger
}

func NewRsync(path string, timeout time.Duration, filesystem fs.FS, log logging.Logger) *Rsync {
	if path == "" {
		path = "rsync"
	}
	return &Rsync{Path: path, Timeout: timeout, fs: filesystem, log: log}
}

func (r *Rsync) args(req orchestrator.MaterializeRequest) []string {
	args := []string{rsyncArchiveFlags, rsyncRelative, rsyncDelete, rsyncNumericIDs}
	if req.LinkBase != "" {
		args = append(args, fmt.Sprintf(rsyncBaseFlagFormat, req.LinkBase))
	}
	for _, p := range req.Excludes {
		args = append(args, fmt.Sprintf(rsyncExcludeFlagFormat, p))
	}
	args = append(args, req.RootPaths...)
	// trailing slash: copy into the target, not a subdirectory named after it
	args = append(args, strings.TrimSuffix(req.Target, "/")+"/")
	return args
}

func (r *Rsync) Materialize(ctx context.Context, req orchestrator.MaterializeRequest) (int64, error) {
	if len(req.RootPaths) == 0 {
		return 0, fmt.Errorf("rsync: no root paths")
	}
	if err := r.fs.MkdirAll(req.Target); err != nil {
		return 0, fmt.Errorf("rsync: creating target: %w", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := r.args(req)
	r.log.Debug("rsync: running", "path", r.Path, "args", strings.Join(args, " "))

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("rsync: %w", ctx.Err())
		}
		return 0, fmt.Errorf("rsync: %w: %s", err, tail(out.String(), maxOutputTail))
	}

	size, err := newBytes(r.fs, req.Target)
	if err != nil {
		return 0, fmt.Errorf("rsync: measuring %s: %w", req.Target, err)
	}
	return size, nil
}

func (r *Rsync) Delete(ctx context.Context, target string) error {
	return r.fs.RemoveAll(ctx, target)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
