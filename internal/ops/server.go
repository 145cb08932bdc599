// Package ops exposes a small local HTTP surface for health checks and
// operational status.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lingobot/internal/schedule"
	logx "lingobot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string // default 127.0.0.1:8090
	Token   string // optional bearer token for /status
}

// NotifyStats reports delivery counters. *notify.Service satisfies it.
type NotifyStats interface {
	Stats() (sent, failed uint64)
}

// SchedulerStatus reports scheduling counts. *schedule.Scheduler satisfies it.
type SchedulerStatus interface {
	Status() schedule.Status
}

type Server struct {
	cfg    Config
	srv    *http.Server
	sched  SchedulerStatus
	notify NotifyStats
	log    logx.Logger
}

func New(cfg Config, sched SchedulerStatus, notify NotifyStats, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8090"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, sched: sched, notify: notify, log: log}
}

// Start begins serving in the background. The returned error covers listener
// setup only; serve errors are logged.
func (s *Server) Start() error {
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("ops listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server stopped", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		if s.cfg.Token != "" {
			r.Use(s.requireToken)
		}
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.sched.Status()
	sent, failed := s.notify.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active_users": st.ActiveUsers,
		"armed_timers": st.ArmedTimers,
		"sent":         sent,
		"failed":       failed,
	})
}
