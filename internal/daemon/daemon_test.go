package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/snapshot"
	"github.com/raoulx24/snaprotate/internal/worker"
)

type env struct {
	dir    string
	path   string
	source string
	target string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:    dir,
		path:   filepath.Join(dir, "snaprotate.yaml"),
		source: filepath.Join(dir, "src"),
		target: filepath.Join(dir, "snaps"),
	}
	if err := os.MkdirAll(e.source, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.source, "data.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) write(t *testing.T, keep int) *config.Config {
	t.Helper()
	doc := fmt.Sprintf(`
sets:
  - name: host1
    roots: [%s]
    target: %s
    latestLink: latest
    retention:
      keepLastN: %d
catalog:
  backend: file
  path: %s
lock:
  dir: %s
executor:
  kind: native
logging:
  level: debug
`, e.source, e.target, keep, filepath.Join(e.dir, "catalog.yaml"), filepath.Join(e.dir, "locks"))
	if err := os.WriteFile(e.path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(e.path)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// logBuffer is written by service goroutines and read by the test.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogger(buf *logBuffer) *logging.ZeroLogger {
	return logging.New(logging.Config{Level: "debug", Output: buf})
}

func TestDaemonRunsSubmittedSnapshot(t *testing.T) {
	e := newEnv(t)
	cfg := e.write(t, 3)
	var buf logBuffer

	d, err := New(e.path, cfg, newLogger(&buf))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	d.Worker().Submit(worker.Job{Set: "host1", Kind: worker.KindCreate, RunID: "test-run"})

	deadline := time.Now().Add(5 * time.Second)
	var latest snapshot.ID
	for {
		// the link is refreshed right after the catalog entry completes
		if id, ok := d.comp.Catalog.Latest("host1"); ok {
			if link, _ := os.Readlink(filepath.Join(e.target, "latest")); link == string(id) {
				latest = id
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot created; log:\n%s", buf.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, err := os.ReadFile(filepath.Join(e.target, string(latest), e.source, "data.txt"))
	if err != nil || string(got) != "payload" {
		t.Errorf("snapshot content = %q, %v", got, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	// catalog was flushed to disk
	if _, err := os.Stat(filepath.Join(e.dir, "catalog.yaml")); err != nil {
		t.Errorf("catalog file: %v", err)
	}
}

func TestReloadAppliesAndRejects(t *testing.T) {
	e := newEnv(t)
	cfg := e.write(t, 3)
	var buf logBuffer

	d, err := New(e.path, cfg, newLogger(&buf))
	if err != nil {
		t.Fatal(err)
	}
	defer d.comp.Catalog.Close()

	e.write(t, 1)
	if err := d.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p, _ := d.comp.Retention.Policy("host1"); p.KeepLastN != 1 {
		t.Errorf("keepLastN after reload = %d", p.KeepLastN)
	}

	if err := os.WriteFile(e.path, []byte("sets: [{name: bad name}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := d.Reload(context.Background()); err == nil {
		t.Fatal("invalid config accepted")
	}
	if p, _ := d.comp.Retention.Policy("host1"); p.KeepLastN != 1 {
		t.Errorf("failed reload changed keepLastN to %d", p.KeepLastN)
	}
	if _, ok := d.cfg.Set("host1"); !ok {
		t.Error("failed reload dropped the running config")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	e := newEnv(t)
	cfg := e.write(t, 1)
	cfg.Catalog.Backend = "etcd"
	if _, err := Build(cfg, logging.Nop()); err == nil {
		t.Error("unknown backend accepted")
	}
}
