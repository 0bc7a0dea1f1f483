package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/raoulx24/snaprotate/internal/metrics"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// CreateSnapshot takes one snapshot of set, linked against the current
// latest snapshot when there is one. A failed materialization is recorded
// as failed and returned as snapshot.ErrExecutor; it is never retried.
func (o *Orchestrator) CreateSnapshot(ctx context.Context, set snapshot.BackupSet, exec Executor) (snapshot.ID, error) {
	release, err := o.acquire(set.Name)
	if err != nil {
		return "", err
	}
	defer release()

	now := o.now()
	id := snapshot.NewID(now)
	basis, hasBasis := o.catalog.Latest(set.Name)
	if hasBasis && id <= basis {
		o.metrics.SnapshotFinished(set.Name, metrics.OutcomeClock, 0)
		return "", snapshot.Errorf("create", set.Name, id, snapshot.ErrClock,
			fmt.Errorf("latest is %s", basis))
	}

	snap := snapshot.Snapshot{ID: id, Basis: basis, CreatedAt: now.UTC()}
	if err := o.catalog.Register(set.Name, snap); err != nil {
		return "", err
	}

	req := MaterializeRequest{
		RootPaths: set.RootPaths,
		Excludes:  set.Excludes,
		Target:    set.PathOf(id),
	}
	if hasBasis {
		req.LinkBase = set.PathOf(basis)
	}

	o.log.Info("snapshot: materializing", "set", set.Name, "id", id, "basis", basis, "target", req.Target)
	size, execErr := exec.Materialize(ctx, req)
	elapsed := o.now().Sub(now)

	if execErr != nil {
		o.metrics.SnapshotFinished(set.Name, metrics.OutcomeFailure, elapsed)
		failure := snapshot.Errorf("create", set.Name, id, snapshot.ErrExecutor, execErr)
		if err := o.catalog.MarkFailed(set.Name, id); err != nil {
			return id, errors.Join(failure, err)
		}
		o.log.Error("snapshot: failed", "set", set.Name, "id", id, "op", "materialize", "error", execErr)
		return id, failure
	}

	if err := o.catalog.MarkComplete(set.Name, id, size); err != nil {
		o.metrics.SnapshotFinished(set.Name, metrics.OutcomeFailure, elapsed)
		o.log.Error("snapshot: recording completion failed", "set", set.Name, "id", id, "op", "markComplete", "error", err)
		if ferr := o.catalog.MarkFailed(set.Name, id); ferr != nil {
			o.log.Error("snapshot: left pending", "set", set.Name, "id", id, "op", "markFailed", "error", ferr)
			return id, errors.Join(err, ferr)
		}
		return id, err
	}
	o.metrics.SnapshotFinished(set.Name, metrics.OutcomeSuccess, elapsed)
	o.metrics.SnapshotLatest(set.Name, now, size)
	o.log.Info("snapshot: complete", "set", set.Name, "id", id, "sizeBytes", size, "duration", elapsed.String())

	o.refreshLatestLink(ctx, set)
	return id, nil
}

// refreshLatestLink keeps the optional convenience symlink in step with
// the catalog. Failures are logged only; the catalog is authoritative.
func (o *Orchestrator) refreshLatestLink(ctx context.Context, set snapshot.BackupSet) {
	if set.LatestLink == "" {
		return
	}
	link := filepath.Join(set.Target, set.LatestLink)

	latest, ok := o.catalog.Latest(set.Name)
	var err error
	if ok {
		err = o.fs.ReplaceSymlink(ctx, string(latest), link)
	} else {
		err = o.fs.RemoveAll(ctx, link)
	}
	if err != nil {
		o.log.Warn("snapshot: updating latest link failed", "set", set.Name, "link", link, "error", err)
	}
}
