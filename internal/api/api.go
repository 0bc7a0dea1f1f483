// Package api serves the optional HTTP surface: health, metrics, catalog
// listings and manual triggers.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raoulx24/snaprotate/internal/catalog"
	"github.com/raoulx24/snaprotate/internal/config"
	"github.com/raoulx24/snaprotate/internal/logging"
	"github.com/raoulx24/snaprotate/internal/scheduler"
	"github.com/raoulx24/snaprotate/internal/worker"
)

// Submitter accepts triggered jobs.
type Submitter interface {
	Submit(j worker.Job)
}

// Schedules lists the active cron entries; optional.
type Schedules interface {
	Entries() []scheduler.Entry
}

// Server owns the HTTP listener. It is a suture service.
type Server struct {
	mu  sync.RWMutex
	cfg *config.Config

	catalog   *catalog.Catalog
	submit    Submitter
	schedules Schedules
	gatherer  prometheus.Gatherer
	log       logging.Logger
	now       func() time.Time
}

// New builds the server. gatherer and schedules may be nil.
func New(cfg *config.Config, cat *catalog.Catalog, submit Submitter, schedules Schedules, gatherer prometheus.Gatherer, log logging.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &Server{
		cfg:       cfg,
		catalog:   cat,
		submit:    submit,
		schedules: schedules,
		gatherer:  gatherer,
		log:       log,
		now:       time.Now,
	}
}

// UpdateConfig swaps the set list served by the handlers. The listen
// address is only read when Serve starts.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sets", func(r chi.Router) {
		r.Get("/", s.listSets)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/snapshots", s.listSnapshots)

			r.Group(func(r chi.Router) {
				if limit := s.config().HTTP.TriggerLimit; limit > 0 {
					r.Use(httprate.LimitByIP(limit, time.Minute))
				}
				r.Post("/snapshots", s.trigger(worker.KindCreate))
				r.Post("/prune", s.trigger(worker.KindPrune))
			})
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"requestId", chimiddleware.GetReqID(r.Context()), "duration", s.now().Sub(start).String())
	})
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.config().HTTP.Listen
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) String() string { return "http" }
