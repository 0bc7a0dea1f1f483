package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/raoulx24/snaprotate/internal/snapshot"
	"github.com/raoulx24/snaprotate/internal/worker"
)

type setView struct {
	Name          string      `json:"name"`
	Target        string      `json:"target"`
	Roots         []string    `json:"roots"`
	Latest        snapshot.ID `json:"latest,omitempty"`
	Snapshots     int         `json:"snapshots"`
	Schedule      string      `json:"schedule,omitempty"`
	PruneSchedule string      `json:"pruneSchedule,omitempty"`
	KeepLastN     int         `json:"keepLastN"`
	NextRuns      []nextRun   `json:"nextRuns,omitempty"`
}

type nextRun struct {
	Kind worker.Kind `json:"kind"`
	At   time.Time   `json:"at"`
}

type snapshotView struct {
	ID        snapshot.ID     `json:"id"`
	Basis     snapshot.ID     `json:"basis,omitempty"`
	Status    snapshot.Status `json:"status"`
	SizeBytes *int64          `json:"sizeBytes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type triggerView struct {
	RunID string      `json:"runId"`
	Set   string      `json:"set"`
	Kind  worker.Kind `json:"kind"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("api: marshal response failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Debug("api: write response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorView{Error: msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSets(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config()

	next := make(map[string][]nextRun)
	if s.schedules != nil {
		for _, e := range s.schedules.Entries() {
			if !e.Next.IsZero() {
				next[e.Set] = append(next[e.Set], nextRun{Kind: e.Kind, At: e.Next})
			}
		}
	}

	out := make([]setView, 0, len(cfg.Sets))
	for _, sc := range cfg.Sets {
		v := setView{
			Name:          sc.Name,
			Target:        sc.Target,
			Roots:         sc.Roots,
			Snapshots:     len(s.catalog.Snapshots(sc.Name)),
			Schedule:      sc.Schedule,
			PruneSchedule: sc.PruneSchedule,
			NextRuns:      next[sc.Name],
		}
		if sc.Retention.KeepLastN != nil {
			v.KeepLastN = *sc.Retention.KeepLastN
		}
		if latest, ok := s.catalog.Latest(sc.Name); ok {
			v.Latest = latest
		}
		out = append(out, v)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.config().Set(name); !ok {
		s.respondError(w, http.StatusNotFound, "unknown set "+name)
		return
	}

	out := make([]snapshotView, 0)
	for snap := range s.catalog.List(name) {
		out = append(out, snapshotView{
			ID:        snap.ID,
			Basis:     snap.Basis,
			Status:    snap.Status,
			SizeBytes: snap.SizeBytes,
			CreatedAt: snap.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// trigger enqueues a job and answers 202; the job runs asynchronously.
func (s *Server) trigger(kind worker.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := s.config().Set(name); !ok {
			s.respondError(w, http.StatusNotFound, "unknown set "+name)
			return
		}

		j := worker.Job{
			Set:         name,
			Kind:        kind,
			RunID:       uuid.NewString(),
			Source:      "api",
			RequestedAt: s.now().UTC(),
		}
		s.submit.Submit(j)
		s.log.Info("api: job submitted", "set", name, "kind", kind, "runId", j.RunID)
		s.respondJSON(w, http.StatusAccepted, triggerView{RunID: j.RunID, Set: name, Kind: kind})
	}
}
