package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

func TestTryAcquireRejectsSecondHolder(t *testing.T) {
	l := New(t.TempDir())

	release, err := l.TryAcquire("host1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.TryAcquire("host1"); !errors.Is(err, snapshot.ErrConcurrentRun) {
		t.Fatalf("second acquire: %v", err)
	}

	other, err := l.TryAcquire("host2")
	if err != nil {
		t.Fatalf("independent set blocked: %v", err)
	}
	other()

	release()
	release() // idempotent

	again, err := l.TryAcquire("host1")
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	again()
}

func TestFileLockExcludesSecondLocker(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	b := New(dir) // stands in for another process

	release, err := a.TryAcquire("host1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "host1.lock")); err != nil {
		t.Fatalf("lock file: %v", err)
	}

	if _, err := b.TryAcquire("host1"); !errors.Is(err, snapshot.ErrConcurrentRun) {
		t.Errorf("expected ErrConcurrentRun from second locker, got %v", err)
	}

	release()
	r2, err := b.TryAcquire("host1")
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	r2()
}

func TestInProcessOnly(t *testing.T) {
	var l Locker
	release, err := l.TryAcquire("x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.TryAcquire("x"); !errors.Is(err, snapshot.ErrConcurrentRun) {
		t.Errorf("got %v", err)
	}
	release()
}

func TestLockFileWaitsForHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "catalog.yaml.lock")

	unlock, err := LockFile(path)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := LockFile(path)
		if err != nil {
			t.Error(err)
			close(acquired)
			return
		}
		close(acquired)
		_ = second()
	}()

	select {
	case <-acquired:
		t.Fatal("second LockFile returned while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	if err := unlock(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second LockFile never acquired")
	}
}
