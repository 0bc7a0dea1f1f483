// Package retention decides which snapshots survive a cleanup pass.
package retention

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Policy is a flat "keep the last N" rule, optionally widened by tiered
// rules. KeepLastN == 0 keeps nothing and has to be asked for explicitly.
type Policy struct {
	KeepLastN  int
	StaleAfter time.Duration // pending snapshots older than this are abandoned; 0 never
	Rules      []Rule
}

// Rule keeps the newest complete snapshot in each of the newest Count
// buckets, where buckets are the intervals between consecutive fire
// times of the cron expression.
type Rule struct {
	Name  string
	Cron  string
	Count int

	sched cron.Schedule
}

// PolicyFromConfig converts and validates a set's retention settings.
func PolicyFromConfig(rc config.RetentionConfig) (Policy, error) {
	if rc.KeepLastN == nil {
		return Policy{}, fmt.Errorf("retention: keepLastN must be set explicitly")
	}
	p := Policy{KeepLastN: *rc.KeepLastN, StaleAfter: rc.StaleAfter}
	for _, r := range rc.Rules {
		p.Rules = append(p.Rules, Rule{Name: r.Name, Cron: r.Cron, Count: r.Count})
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks bounds and parses rule schedules.
func (p *Policy) Validate() error {
	if p.KeepLastN < 0 {
		return fmt.Errorf("retention: keepLastN must be >= 0, got %d", p.KeepLastN)
	}
	if p.StaleAfter < 0 {
		return fmt.Errorf("retention: staleAfter must be >= 0, got %s", p.StaleAfter)
	}
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.Count < 1 {
			return fmt.Errorf("retention: rule %s: count must be >= 1", r.Name)
		}
		sched, err := cron.ParseStandard(r.Cron)
		if err != nil {
			return fmt.Errorf("retention: rule %s: %w", r.Name, err)
		}
		r.sched = sched
	}
	return nil
}

// SelectForDeletion returns the ids a cleanup pass should delete:
// complete snapshots beyond the policy, every failed snapshot, and
// pending snapshots older than StaleAfter. A pending snapshot that is not
// stale is never selected.
func SelectForDeletion(snaps []snapshot.Snapshot, p Policy, now time.Time) map[snapshot.ID]struct{} {
	out := make(map[snapshot.ID]struct{})

	var complete []snapshot.Snapshot
	for _, s := range snaps {
		switch s.Status {
		case snapshot.StatusComplete:
			complete = append(complete, s)
		case snapshot.StatusFailed:
			out[s.ID] = struct{}{}
		case snapshot.StatusPending:
			if p.StaleAfter > 0 && now.Sub(s.CreatedAt) > p.StaleAfter {
				out[s.ID] = struct{}{}
			}
		}
	}

	// Sort newest → oldest
	slices.SortFunc(complete, func(a, b snapshot.Snapshot) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	keep := make(map[snapshot.ID]struct{})
	for i := 0; i < p.KeepLastN && i < len(complete); i++ {
		keep[complete[i].ID] = struct{}{}
	}
	for _, r := range p.Rules {
		for _, id := range r.keep(complete) {
			keep[id] = struct{}{}
		}
	}

	for _, s := range complete {
		if _, kept := keep[s.ID]; !kept {
			out[s.ID] = struct{}{}
		}
	}
	return out
}

// SelectSorted is SelectForDeletion with the result in ascending id order.
func SelectSorted(snaps []snapshot.Snapshot, p Policy, now time.Time) []snapshot.ID {
	chosen := SelectForDeletion(snaps, p, now)
	ids := make([]snapshot.ID, 0, len(chosen))
	for id := range chosen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// keep walks newest-first snapshots and keeps the first one seen in each
// bucket, stopping after Count buckets.
func (r Rule) keep(newestFirst []snapshot.Snapshot) []snapshot.ID {
	sched := r.sched
	if sched == nil {
		parsed, err := cron.ParseStandard(r.Cron)
		if err != nil {
			return nil
		}
		sched = parsed
	}

	var kept []snapshot.ID
	var lastBucket time.Time
	for _, s := range newestFirst {
		if len(kept) >= r.Count {
			break
		}
		bucket := sched.Next(s.ID.Time())
		if !lastBucket.IsZero() && bucket.Equal(lastBucket) {
			continue
		}
		lastBucket = bucket
		kept = append(kept, s.ID)
	}
	return kept
}

// Engine holds the current policy of every set and logs its decisions.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
	log      logging.Logger
}

// New builds an engine from the configured sets.
func New(cfg *config.Config, log logging.Logger) (*Engine, error) {
	e := &Engine{log: log}
	if err := e.UpdateConfig(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateConfig swaps all policies at once; on error nothing changes.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	policies := make(map[string]Policy, len(cfg.Sets))
	for _, s := range cfg.Sets {
		p, err := PolicyFromConfig(s.Retention)
		if err != nil {
			return fmt.Errorf("set %s: %w", s.Name, err)
		}
		policies[s.Name] = p
	}

	e.mu.Lock()
	e.policies = policies
	e.mu.Unlock()
	return nil
}

// Policy returns the policy of set.
func (e *Engine) Policy(set string) (Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[set]
	return p, ok
}

// Select applies the set's policy and returns the chosen ids in
// ascending order. It deletes nothing; dry runs use it directly.
func (e *Engine) Select(set string, snaps []snapshot.Snapshot, now time.Time) ([]snapshot.ID, error) {
	p, ok := e.Policy(set)
	if !ok {
		return nil, fmt.Errorf("retention: no policy for set %s", set)
	}
	ids := SelectSorted(snaps, p, now)
	e.log.Debug("retention: selection computed",
		"set", set, "snapshots", len(snaps), "selected", len(ids), "keepLastN", p.KeepLastN, "rules", len(p.Rules))
	return ids, nil
}
