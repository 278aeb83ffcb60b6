// Package status exposes the optional HTTP surface of a run: health,
// Prometheus metrics, a progress snapshot and a live websocket feed.
package status

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"radarcli/internal/config"
	"radarcli/internal/orchestrate"
)

// Snapshot is the progress state returned by /api/progress.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Zone      string    `json:"current_zone,omitempty"`
	Date      string    `json:"current_date,omitempty"`
	Failures  int       `json:"failures"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker accumulates progress events and keeps the latest snapshot.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	hub  *Hub
}

// NewTracker creates a tracker broadcasting through hub; hub may be nil.
func NewTracker(runID string, hub *Hub) *Tracker {
	return &Tracker{
		snap: Snapshot{RunID: runID, Phase: "starting", UpdatedAt: time.Now()},
		hub:  hub,
	}
}

// SetPhase records a phase transition and broadcasts it.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.snap.Phase = phase
	t.snap.UpdatedAt = time.Now()
	snap := t.snap
	t.mu.Unlock()
	if t.hub != nil {
		t.hub.Broadcast(snap)
	}
}

// OnProgress folds one task completion into the snapshot. It matches the
// orchestrator's progress callback signature.
func (t *Tracker) OnProgress(p orchestrate.Progress) {
	t.mu.Lock()
	t.snap.Completed = p.Completed
	t.snap.Total = p.Total
	t.snap.Zone = p.Zone
	t.snap.Date = p.Day.Format("2006-01-02")
	if p.Failed {
		t.snap.Failures++
	}
	t.snap.UpdatedAt = time.Now()
	snap := t.snap
	t.mu.Unlock()
	if t.hub != nil {
		t.hub.Broadcast(snap)
	}
}

// Snapshot returns the current progress state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Server is the embedded status HTTP server.
type Server struct {
	http    *http.Server
	hub     *Hub
	tracker *Tracker
	logger  *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only run telemetry on an operator-chosen port.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer assembles the router. metricsHandler may be nil, in which
// case /metrics answers 404.
func NewServer(cfg config.StatusConfig, tracker *Tracker, hub *Hub, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "status.server"))

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.RPS > 0 {
		r.Use(rateLimit(rate.Limit(cfg.RPS), cfg.Burst))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.Get("/api/progress", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, tracker.Snapshot())
	})
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		hub.serve(conn)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.Listen,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hub:     hub,
		tracker: tracker,
		logger:  logger,
	}
}

// Start begins serving in the background. Listen errors after startup
// are logged, not fatal: the analysis does not depend on the status
// surface.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.hub.Start()
	s.logger.Info("status server listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown stops the server and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.http.Shutdown(ctx)
}

// rateLimit is a global token-bucket limiter over every endpoint. The
// status surface is tiny; a single bucket is enough.
func rateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
