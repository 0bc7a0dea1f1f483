package mailbox

import (
	"context"
	"sync"
)

// Mailbox holds at most one pending job per key; the latest job for a key
// always wins. It is NOT a queue of every trigger: a burst of triggers for
// the same key collapses into one job. Keys are served in the order they
// first became pending.
type Mailbox[K comparable, T any] struct {
	mu    sync.Mutex
	order []K
	jobs  map[K]T
	ready chan struct{}
}

// New creates an empty mailbox.
func New[K comparable, T any]() *Mailbox[K, T] {
	return &Mailbox[K, T]{
		jobs:  make(map[K]T),
		ready: make(chan struct{}, 1),
	}
}

// Put stores a job under key, replacing any pending job for the same key.
// It never blocks and reports whether a pending job was replaced.
func (m *Mailbox[K, T]) Put(key K, j T) (replaced bool) {
	m.mu.Lock()
	if _, replaced = m.jobs[key]; !replaced {
		m.order = append(m.order, key)
	}
	m.jobs[key] = j
	m.mu.Unlock()

	// wake up worker if waiting
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return replaced
}

// Take blocks until a job is available or ctx is done.
func (m *Mailbox[K, T]) Take(ctx context.Context) (T, error) {
	for {
		if j, ok := m.TryTake(); ok {
			return j, nil
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryTake returns the oldest pending job, if any. It never blocks.
func (m *Mailbox[K, T]) TryTake() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		var zero T
		return zero, false
	}

	key := m.order[0]
	m.order = m.order[1:]
	j := m.jobs[key]
	delete(m.jobs, key)
	return j, true
}
