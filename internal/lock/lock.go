// Package lock provides the exclusive, non-blocking per-set run lock.
// Within a process a map guards each name; across processes an advisory
// flock on <dir>/<name>.lock does the same.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

// Locker hands out per-name locks. A zero Dir keeps locks in-process only.
type Locker struct {
	Dir string

	mu   sync.Mutex
	held map[string]struct{}
}

func New(dir string) *Locker {
	return &Locker{Dir: dir}
}

// TryAcquire takes the lock for name or fails at once with
// snapshot.ErrConcurrentRun. The returned release is idempotent.
func (l *Locker) TryAcquire(name string) (release func(), err error) {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	if _, busy := l.held[name]; busy {
		l.mu.Unlock()
		return nil, snapshot.Errorf("lock", name, "", snapshot.ErrConcurrentRun, fmt.Errorf("held by this process"))
	}
	l.held[name] = struct{}{}
	l.mu.Unlock()

	var f *os.File
	if l.Dir != "" {
		f, err = l.lockFile(name)
		if err != nil {
			l.drop(name)
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if f != nil {
				_ = unlockFile(f)
				_ = f.Close()
			}
			l.drop(name)
		})
	}, nil
}

func (l *Locker) drop(name string) {
	l.mu.Lock()
	delete(l.held, name)
	l.mu.Unlock()
}

func (l *Locker) lockFile(name string) (*os.File, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	path := filepath.Join(l.Dir, name+".lock")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	busy, err := tryLockFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if busy {
		f.Close()
		return nil, snapshot.Errorf("lock", name, "", snapshot.ErrConcurrentRun, fmt.Errorf("%s is held by another process", path))
	}

	// pid is informational only
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

// LockFile blocks until it holds an exclusive advisory lock on path,
// creating the file and its directory if needed. It guards short critical
// sections shared between processes, such as rewriting a catalog file.
func LockFile(path string) (unlock func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := waitLockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return func() error {
		return errors.Join(unlockFile(f), f.Close())
	}, nil
}
