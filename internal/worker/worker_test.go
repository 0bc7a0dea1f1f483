package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/fs"
	"github.com/raoulx24/snaprotate/internal/lock"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/mailbox"
	"github.com/raoulx24/snaprotate/internal/orchestrator"
	"github.com/raoulx24/snaprotate/internal/retention"
	"github.com/raoulx24/snaprotate/internal/snapshot"
)

type countingExecutor struct {
	mu      sync.Mutex
	created int
	deleted int
}

func (c *countingExecutor) Materialize(context.Context, orchestrator.MaterializeRequest) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	return 1, nil
}

func (c *countingExecutor) Delete(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted++
	return nil
}

func (c *countingExecutor) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created, c.deleted
}

func testConfig(t *testing.T, keep int, pruneSchedule string) *config.Config {
	t.Helper()
	doc := fmt.Sprintf(`
sets:
  - name: host1
    roots: [/etc]
    target: %s
    pruneSchedule: %q
    retention:
      keepLastN: %d
executor:
  kind: native
`, t.TempDir(), pruneSchedule, keep)
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

type fixture struct {
	w    *Worker
	exec *countingExecutor
	cat  *catalog.Catalog
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	cat, err := catalog.Open(nil)
	if err != nil {
		t.Fatal(err)
	}

	// every clock read moves a minute forward so ids never collide
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}

	log := logging.Nop()
	orch := orchestrator.New(cat, lock.New(""), log, orchestrator.WithClock(clock))
	eng, err := retention.New(cfg, log)
	if err != nil {
		t.Fatal(err)
	}

	exec := &countingExecutor{}
	factory := func(c config.ExecutorConfig, _ fs.FS, _ logging.Logger) (orchestrator.Executor, error) {
		if c.Kind == "broken" {
			return nil, errors.New("no such executor")
		}
		return exec, nil
	}
	w, err := New(cfg, orch, eng, mailbox.New[Key, Job](), factory, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{w: w, exec: exec, cat: cat}
}

func TestCreatePrunesWithoutOwnSchedule(t *testing.T) {
	f := newFixture(t, testConfig(t, 1, ""))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.w.Handle(ctx, Job{Set: "host1", Kind: KindCreate}); err != nil {
			t.Fatal(err)
		}
	}
	created, deleted := f.exec.counts()
	if created != 3 || deleted != 2 {
		t.Errorf("created=%d deleted=%d", created, deleted)
	}
	if n := len(f.cat.Snapshots("host1")); n != 1 {
		t.Errorf("catalog holds %d snapshots", n)
	}
}

func TestCreateLeavesPruningToSchedule(t *testing.T) {
	f := newFixture(t, testConfig(t, 1, "0 4 * * *"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.w.Handle(ctx, Job{Set: "host1", Kind: KindCreate}); err != nil {
			t.Fatal(err)
		}
	}
	if _, deleted := f.exec.counts(); deleted != 0 {
		t.Errorf("deleted %d before the prune job", deleted)
	}

	if err := f.w.Handle(ctx, Job{Set: "host1", Kind: KindPrune}); err != nil {
		t.Fatal(err)
	}
	if _, deleted := f.exec.counts(); deleted != 2 {
		t.Errorf("prune deleted %d", deleted)
	}
}

func TestHandleRejectsUnknownSetAndKind(t *testing.T) {
	f := newFixture(t, testConfig(t, 1, ""))
	ctx := context.Background()

	if err := f.w.Handle(ctx, Job{Set: "nope", Kind: KindCreate}); err == nil || !strings.Contains(err.Error(), "unknown set") {
		t.Errorf("unknown set: %v", err)
	}
	if err := f.w.Handle(ctx, Job{Set: "host1", Kind: "rotate"}); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestHandleReportsConcurrentRun(t *testing.T) {
	f := newFixture(t, testConfig(t, 1, ""))

	// swap in an orchestrator whose lock the test holds
	l := lock.New("")
	f.w.orch = orchestrator.New(f.cat, l, logging.Nop())
	unlock, err := l.TryAcquire("host1")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	err = f.w.Handle(context.Background(), Job{Set: "host1", Kind: KindCreate})
	if !errors.Is(err, snapshot.ErrConcurrentRun) {
		t.Errorf("err = %v", err)
	}
	if created, _ := f.exec.counts(); created != 0 {
		t.Errorf("executor ran %d times", created)
	}
}

func TestServeProcessesSubmittedJobs(t *testing.T) {
	f := newFixture(t, testConfig(t, 5, ""))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.w.Serve(ctx) }()

	f.w.Submit(Job{Set: "host1", Kind: KindCreate, Source: "test"})

	deadline := time.After(2 * time.Second)
	for {
		if created, _ := f.exec.counts(); created == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v", err)
	}
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, testConfig(t, 5, ""))

	next := testConfig(t, 2, "")
	if err := f.w.UpdateConfig(next); err != nil {
		t.Fatal(err)
	}
	if p, _ := f.w.retention.Policy("host1"); p.KeepLastN != 2 {
		t.Errorf("keepLastN = %d after reload", p.KeepLastN)
	}

	broken := testConfig(t, 3, "")
	broken.Executor.Kind = "broken"
	if err := f.w.UpdateConfig(broken); err == nil {
		t.Fatal("broken executor accepted")
	}
	if p, _ := f.w.retention.Policy("host1"); p.KeepLastN != 2 {
		t.Errorf("failed reload changed keepLastN to %d", p.KeepLastN)
	}
}

func TestJobLogsCarryRunID(t *testing.T) {
	f := newFixture(t, testConfig(t, 1, ""))
	var buf strings.Builder
	f.w.log = logging.New(logging.Config{Output: &buf})

	if err := f.w.Handle(context.Background(), Job{Set: "host1", Kind: KindCreate, RunID: "run-42"}); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"runId":"run-42"`) || !strings.Contains(line, `"set":"host1"`) {
			t.Errorf("line lacks job fields: %s", line)
		}
	}
	if !strings.Contains(buf.String(), "snapshot created") {
		t.Errorf("no creation line: %q", buf.String())
	}
}
