package orchestrator

import (
	"context"

	"github.com/raoulx24/snaprotate/internal/metrics"
	"github.com/raoulx24/snaprotate/internal/retention"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// DeletionResult reports what happened to one selected snapshot.
type DeletionResult struct {
	ID  snapshot.ID
	Err error // nil when data and catalog entry are gone
}

// ApplyRetention deletes every snapshot the policy selects, oldest first.
// A failed delete leaves the catalog entry in place for the next pass and
// does not stop the others. The error return is reserved for taking the
// lock and reloading the catalog.
func (o *Orchestrator) ApplyRetention(ctx context.Context, set snapshot.BackupSet, policy retention.Policy, exec Executor) ([]DeletionResult, error) {
	release, err := o.acquire(set.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	selected := retention.SelectSorted(o.catalog.Snapshots(set.Name), policy, o.now())
	results := make([]DeletionResult, 0, len(selected))

	latestBefore, _ := o.catalog.Latest(set.Name)
	for _, id := range selected {
		res := DeletionResult{ID: id}

		if err := exec.Delete(ctx, set.PathOf(id)); err != nil {
			res.Err = snapshot.Errorf("delete", set.Name, id, snapshot.ErrExecutor, err)
			o.metrics.Deletion(set.Name, metrics.OutcomeFailure)
			o.log.Error("retention: delete failed", "set", set.Name, "id", id, "op", "delete", "error", err)
			results = append(results, res)
			continue
		}

		if err := o.catalog.Remove(set.Name, id); err != nil {
			res.Err = err
			o.metrics.Deletion(set.Name, metrics.OutcomeFailure)
			o.log.Error("retention: catalog remove failed", "set", set.Name, "id", id, "op", "remove", "error", err)
			results = append(results, res)
			continue
		}

		o.metrics.Deletion(set.Name, metrics.OutcomeSuccess)
		o.log.Info("retention: deleted", "set", set.Name, "id", id)
		results = append(results, res)
	}

	if latestAfter, _ := o.catalog.Latest(set.Name); latestAfter != latestBefore {
		o.refreshLatestLink(ctx, set)
	}
	return results, nil
}
