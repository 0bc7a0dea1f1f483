// Package scheduler turns per-set cron schedules into worker jobs.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/worker"
)

// Submitter receives the jobs the scheduler fires.
type Submitter interface {
	Submit(j worker.Job)
}

// Entry is one scheduled trigger.
type Entry struct {
	Set  string
	Kind worker.Kind
	Cron string
	Next time.Time
}

// Scheduler owns a cron instance that is rebuilt on every config change.
// Schedules are evaluated in UTC, the same zone snapshot ids use.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[cron.EntryID]Entry
	running bool

	submit Submitter
	log    logging.Logger
	now    func() time.Time
}

func New(cfg *config.Config, submit Submitter, log logging.Logger) (*Scheduler, error) {
	s := &Scheduler{submit: submit, log: log, now: time.Now}
	if err := s.UpdateConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateConfig replaces every entry. On error the old schedules keep
// running.
func (s *Scheduler) UpdateConfig(cfg *config.Config) error {
	c := cron.New(cron.WithLocation(time.UTC))
	entries := make(map[cron.EntryID]Entry)

	add := func(set string, kind worker.Kind, expr string) error {
		if expr == "" {
			return nil
		}
		id, err := c.AddFunc(expr, func() { s.fire(set, kind) })
		if err != nil {
			return fmt.Errorf("set %s: %s schedule %q: %w", set, kind, expr, err)
		}
		entries[id] = Entry{Set: set, Kind: kind, Cron: expr}
		return nil
	}

	for _, set := range cfg.Sets {
		if err := add(set.Name, worker.KindCreate, set.Schedule); err != nil {
			return err
		}
		if err := add(set.Name, worker.KindPrune, set.PruneSchedule); err != nil {
			return err
		}
	}

	s.mu.Lock()
	old := s.cron
	s.cron = c
	s.entries = entries
	if s.running {
		c.Start()
	}
	s.mu.Unlock()

	if old != nil {
		// running jobs only submit to the mailbox, so this returns quickly
		<-old.Stop().Done()
	}
	s.log.Info("scheduler: schedules loaded", "entries", len(entries))
	return nil
}

func (s *Scheduler) fire(set string, kind worker.Kind) {
	j := worker.Job{
		Set:         set,
		Kind:        kind,
		RunID:       uuid.NewString(),
		Source:      "scheduler",
		RequestedAt: s.now().UTC(),
	}
	s.log.Debug("scheduler: firing", "set", set, "kind", kind, "runId", j.RunID)
	s.submit.Submit(j)
}

// Serve runs the schedules until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.cron.Start()
	s.mu.Unlock()
	s.log.Info("starting scheduler")

	<-ctx.Done()

	s.mu.Lock()
	s.running = false
	stopped := s.cron.Stop()
	s.mu.Unlock()
	<-stopped.Done()
	return ctx.Err()
}

func (s *Scheduler) String() string { return "scheduler" }

// Entries lists the current triggers ordered by set and kind. Next is zero
// until the scheduler runs.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, ce := range s.cron.Entries() {
		e, ok := s.entries[ce.ID]
		if !ok {
			continue
		}
		e.Next = ce.Next
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if a.Set != b.Set {
			if a.Set < b.Set {
				return -1
			}
			return 1
		}
		if a.Kind < b.Kind {
			return -1
		}
		if a.Kind > b.Kind {
			return 1
		}
		return 0
	})
	return out
}
