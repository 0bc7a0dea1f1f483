// Package catalog tracks the snapshots of every backup set, their lineage
// and the per-set latest pointer. It never touches snapshot data on disk;
// deleting files is the orchestrator's job.
package catalog

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

type setState struct {
	snaps  map[snapshot.ID]snapshot.Snapshot
	latest snapshot.ID
}

// Catalog is safe for concurrent use. Every mutation is written through
// to the Store before it becomes visible.
type Catalog struct {
	mu    sync.RWMutex
	sets  map[string]*setState
	store Store
}

// Open loads all records from store and recomputes the latest pointers.
func Open(store Store) (*Catalog, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Catalog{sets: make(map[string]*setState), store: store}

	recs, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	for _, r := range recs {
		st := c.state(r.Set)
		st.snaps[r.ID] = r.Snapshot()
	}
	for _, st := range c.sets {
		st.latest = highestComplete(st.snaps)
	}
	return c, nil
}

// Refresh replaces the in-memory state of set with what the store holds
// now, picking up changes other processes made to shared storage. Call it
// while holding the set's run lock.
func (c *Catalog) Refresh(set string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs, err := c.store.LoadSet(set)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", set, err)
	}
	st := c.state(set)
	clear(st.snaps)
	for _, r := range recs {
		st.snaps[r.ID] = r.Snapshot()
	}
	st.latest = highestComplete(st.snaps)
	return nil
}

// Close releases the underlying store.
func (c *Catalog) Close() error {
	return c.store.Close()
}

// state returns the entry for set, creating it. Caller holds c.mu for writing.
func (c *Catalog) state(set string) *setState {
	st, ok := c.sets[set]
	if !ok {
		st = &setState{snaps: make(map[snapshot.ID]snapshot.Snapshot)}
		c.sets[set] = st
	}
	return st
}

// Register inserts snap as pending.
func (c *Catalog) Register(set string, snap snapshot.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(set)
	if _, exists := st.snaps[snap.ID]; exists {
		return snapshot.Errorf("register", set, snap.ID, snapshot.ErrDuplicateID, nil)
	}

	snap.Set = set
	snap.Status = snapshot.StatusPending
	snap.SizeBytes = nil
	if err := c.store.Put(RecordOf(snap)); err != nil {
		return fmt.Errorf("register %s/%s: persisting: %w", set, snap.ID, err)
	}
	st.snaps[snap.ID] = snap
	return nil
}

// MarkComplete moves a pending snapshot to complete and advances latest.
func (c *Catalog) MarkComplete(set string, id snapshot.ID, sizeBytes int64) error {
	return c.transition("markComplete", set, id, func(s *snapshot.Snapshot) {
		s.Status = snapshot.StatusComplete
		s.SizeBytes = &sizeBytes
	})
}

// MarkFailed moves a pending snapshot to failed. Latest is untouched.
func (c *Catalog) MarkFailed(set string, id snapshot.ID) error {
	return c.transition("markFailed", set, id, func(s *snapshot.Snapshot) {
		s.Status = snapshot.StatusFailed
	})
}

func (c *Catalog) transition(op, set string, id snapshot.ID, apply func(*snapshot.Snapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.sets[set]
	if !ok {
		return snapshot.Errorf(op, set, id, snapshot.ErrNotFound, nil)
	}
	cur, ok := st.snaps[id]
	if !ok {
		return snapshot.Errorf(op, set, id, snapshot.ErrNotFound, nil)
	}
	if cur.Status != snapshot.StatusPending {
		return snapshot.Errorf(op, set, id, snapshot.ErrInvalidState,
			fmt.Errorf("status is %s, want %s", cur.Status, snapshot.StatusPending))
	}

	next := cur
	apply(&next)
	if err := c.store.Put(RecordOf(next)); err != nil {
		return fmt.Errorf("%s %s/%s: persisting: %w", op, set, id, err)
	}
	st.snaps[id] = next

	if next.Status == snapshot.StatusComplete && (st.latest == "" || id > st.latest) {
		st.latest = id
	}
	return nil
}

// Latest returns the most recent complete snapshot of set.
func (c *Catalog) Latest(set string) (snapshot.ID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.sets[set]
	if !ok || st.latest == "" {
		return "", false
	}
	return st.latest, true
}

// Get returns one snapshot.
func (c *Catalog) Get(set string, id snapshot.ID) (snapshot.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if st, ok := c.sets[set]; ok {
		if s, ok := st.snaps[id]; ok {
			return s, nil
		}
	}
	return snapshot.Snapshot{}, snapshot.Errorf("get", set, id, snapshot.ErrNotFound, nil)
}

// List yields the snapshots of set in ascending id order. The order is
// taken when iteration starts, so ranging again observes later changes.
func (c *Catalog) List(set string) iter.Seq[snapshot.Snapshot] {
	return func(yield func(snapshot.Snapshot) bool) {
		c.mu.RLock()
		st, ok := c.sets[set]
		if !ok {
			c.mu.RUnlock()
			return
		}
		ids := make([]snapshot.ID, 0, len(st.snaps))
		for id := range st.snaps {
			ids = append(ids, id)
		}
		c.mu.RUnlock()
		slices.Sort(ids)

		for _, id := range ids {
			c.mu.RLock()
			s, ok := st.snaps[id]
			c.mu.RUnlock()
			if !ok {
				continue // removed since iteration began
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Snapshots collects List into a slice.
func (c *Catalog) Snapshots(set string) []snapshot.Snapshot {
	return slices.Collect(c.List(set))
}

// Remove drops the metadata of one snapshot, moving latest back if needed.
func (c *Catalog) Remove(set string, id snapshot.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.sets[set]
	if !ok {
		return snapshot.Errorf("remove", set, id, snapshot.ErrNotFound, nil)
	}
	if _, ok := st.snaps[id]; !ok {
		return snapshot.Errorf("remove", set, id, snapshot.ErrNotFound, nil)
	}

	if err := c.store.Delete(set, id); err != nil {
		return fmt.Errorf("remove %s/%s: persisting: %w", set, id, err)
	}
	delete(st.snaps, id)

	if id == st.latest {
		st.latest = highestComplete(st.snaps)
	}
	return nil
}

// Sets returns the names of all sets with at least one record, sorted.
func (c *Catalog) Sets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.sets))
	for name, st := range c.sets {
		if len(st.snaps) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Empty reports whether set has no snapshots at all.
func (c *Catalog) Empty(set string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.sets[set]
	return !ok || len(st.snaps) == 0
}

func highestComplete(snaps map[snapshot.ID]snapshot.Snapshot) snapshot.ID {
	var best snapshot.ID
	for id, s := range snaps {
		if s.Status == snapshot.StatusComplete && id > best {
			best = id
		}
	}
	return best
}

// Import inserts a snapshot with whatever status it already has. It is
// meant for seeding a catalog from existing snapshot directories.
func (c *Catalog) Import(set string, snap snapshot.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(set)
	if _, exists := st.snaps[snap.ID]; exists {
		return snapshot.Errorf("import", set, snap.ID, snapshot.ErrDuplicateID, nil)
	}
	snap.Set = set
	if err := c.store.Put(RecordOf(snap)); err != nil {
		return fmt.Errorf("import %s/%s: persisting: %w", set, snap.ID, err)
	}
	st.snaps[snap.ID] = snap
	if snap.Status == snapshot.StatusComplete && snap.ID > st.latest {
		st.latest = snap.ID
	}
	return nil
}
