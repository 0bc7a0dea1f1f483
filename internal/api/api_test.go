package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/metrics"
	"github.com/raoulx24/snaprotate/internal/scheduler"
	"github.com/raoulx24/snaprotate/internal/snapshot"
	"github.com/raoulx24/snaprotate/internal/worker"
)

type recorder struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (r *recorder) Submit(j worker.Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, j)
	r.mu.Unlock()
}

type fixedSchedules []scheduler.Entry

func (f fixedSchedules) Entries() []scheduler.Entry { return f }

func newServer(t *testing.T, triggerLimit int) (*Server, *recorder) {
	t.Helper()
	keep := 2
	cfg := &config.Config{
		Sets: []config.SetConfig{{
			Name:      "host1",
			Roots:     []string{"/etc"},
			Target:    "/backup/host1",
			Schedule:  "0 3 * * *",
			Retention: config.RetentionConfig{KeepLastN: &keep},
		}},
		HTTP: config.HTTPConfig{Enabled: true, Listen: "127.0.0.1:0", TriggerLimit: triggerLimit},
	}

	cat, err := catalog.Open(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []snapshot.ID{"20240101_000000", "20240102_000000"} {
		if err := cat.Register("host1", snapshot.Snapshot{ID: id, CreatedAt: id.Time()}); err != nil {
			t.Fatal(err)
		}
		if err := cat.MarkComplete("host1", id, 42); err != nil {
			t.Fatal(err)
		}
	}

	next := time.Date(2024, 1, 3, 3, 0, 0, 0, time.UTC)
	sched := fixedSchedules{{Set: "host1", Kind: worker.KindCreate, Cron: "0 3 * * *", Next: next}}

	rec := &recorder{}
	m := metrics.NewPrometheus()
	m.SnapshotFinished("host1", metrics.OutcomeSuccess, time.Second)
	return New(cfg, cat, rec, sched, m.Registry, logging.Nop()), rec
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newServer(t, 0)
	h := s.Handler()

	if w := do(t, h, http.MethodGet, "/healthz"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body)
	}

	w := do(t, h, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "snaprotate_snapshots_total") {
		t.Errorf("metrics = %d, body lacks snapshot counter", w.Code)
	}
}

func TestListSets(t *testing.T) {
	s, _ := newServer(t, 0)
	w := do(t, s.Handler(), http.MethodGet, "/sets")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var got []setView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("sets = %+v", got)
	}
	v := got[0]
	if v.Name != "host1" || v.Latest != "20240102_000000" || v.Snapshots != 2 || v.KeepLastN != 2 {
		t.Errorf("set view = %+v", v)
	}
	if len(v.NextRuns) != 1 || v.NextRuns[0].Kind != worker.KindCreate {
		t.Errorf("next runs = %+v", v.NextRuns)
	}
}

func TestListSnapshots(t *testing.T) {
	s, _ := newServer(t, 0)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/sets/host1/snapshots")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []snapshotView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "20240101_000000" || got[1].Basis != "" {
		t.Errorf("snapshots = %+v", got)
	}
	if got[1].Status != snapshot.StatusComplete || got[1].SizeBytes == nil || *got[1].SizeBytes != 42 {
		t.Errorf("second snapshot = %+v", got[1])
	}

	if w := do(t, h, http.MethodGet, "/sets/nope/snapshots"); w.Code != http.StatusNotFound {
		t.Errorf("unknown set status = %d", w.Code)
	}
}

func TestTriggerSubmitsJob(t *testing.T) {
	s, rec := newServer(t, 0)
	h := s.Handler()

	tests := []struct {
		path string
		kind worker.Kind
	}{
		{"/sets/host1/snapshots", worker.KindCreate},
		{"/sets/host1/prune", worker.KindPrune},
	}
	for i, tt := range tests {
		w := do(t, h, http.MethodPost, tt.path)
		if w.Code != http.StatusAccepted {
			t.Fatalf("%s: status = %d", tt.path, w.Code)
		}
		var tv triggerView
		if err := json.Unmarshal(w.Body.Bytes(), &tv); err != nil {
			t.Fatal(err)
		}
		j := rec.jobs[i]
		if j.Kind != tt.kind || j.Set != "host1" || j.Source != "api" || j.RunID != tv.RunID {
			t.Errorf("%s: job = %+v, response = %+v", tt.path, j, tv)
		}
	}

	if w := do(t, h, http.MethodPost, "/sets/nope/prune"); w.Code != http.StatusNotFound {
		t.Errorf("unknown set status = %d", w.Code)
	}
	if len(rec.jobs) != 2 {
		t.Errorf("jobs = %d", len(rec.jobs))
	}
}

func TestTriggerRateLimit(t *testing.T) {
	s, rec := newServer(t, 2)
	h := s.Handler()

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, h, http.MethodPost, "/sets/host1/snapshots").Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	if len(rec.jobs) != 2 {
		t.Errorf("jobs = %d", len(rec.jobs))
	}

	// reads are not limited
	if w := do(t, h, http.MethodGet, "/sets/host1/snapshots"); w.Code != http.StatusOK {
		t.Errorf("read status = %d", w.Code)
	}
}

func TestUpdateConfigChangesSets(t *testing.T) {
	s, _ := newServer(t, 0)
	s.UpdateConfig(&config.Config{})
	if w := do(t, s.Handler(), http.MethodGet, "/sets/host1/snapshots"); w.Code != http.StatusNotFound {
		t.Errorf("removed set still served: %d", w.Code)
	}
}
