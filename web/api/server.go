package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/arena"
	"github.com/hireloop/streamcore/internal/botfeed"
	"github.com/hireloop/streamcore/internal/research"
	"github.com/hireloop/streamcore/internal/stream"
)

const (
	heartbeatSpec   = "@every 25s"
	pruneSpec       = "@hourly"
	pruneKeepRuns   = 200
	shutdownTimeout = 5 * time.Second
)

// Config bundles the dependencies of the API server
type Config struct {
	Addr     string
	Bots     *botfeed.Store
	Research *research.Store
	Arena    *arena.Orchestrator
	// Subscriptions are reported on /api/status, keyed by feed name
	Subscriptions map[string]*stream.Subscription
	Logger        zerolog.Logger
}

// Server is the HTTP API server
type Server struct {
	bots     *botfeed.Store
	research *research.Store
	arena    *arena.Orchestrator
	subs     map[string]*stream.Subscription
	addr     string
	logger   zerolog.Logger
	router   chi.Router
	hub      *EventHub
	cron     *cron.Cron
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	s := &Server{
		bots:     cfg.Bots,
		research: cfg.Research,
		arena:    cfg.Arena,
		subs:     cfg.Subscriptions,
		addr:     cfg.Addr,
		logger:   cfg.Logger.With().Str("component", "api").Logger(),
		hub:      NewEventHub(),
		cron:     cron.New(),
	}
	s.setupRoutes()
	s.setupJobs()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.statusHandler())
		r.Get("/bots", s.listBotsHandler())
		r.Get("/bots/{name}", s.getBotHandler())
		r.Get("/runs", s.listRunsHandler())
		r.Get("/runs/{id}", s.getRunHandler())
		r.Get("/runs/{id}/logs", s.runLogsHandler())
		r.Get("/usage", s.usageHandler())
		r.Get("/research", s.researchHandler())
		r.Get("/arena", s.arenaStateHandler())
		r.Post("/arena/run", s.arenaRunHandler())
		r.Post("/arena/stop", s.arenaStopHandler())
		r.Get("/events", s.sseHandler())
		r.Get("/ws", s.wsHandler())
	})

	// Static files (Svelte build output)
	r.Handle("/*", http.FileServer(http.Dir("web/ui/build")))

	s.router = r
}

func (s *Server) setupJobs() {
	// Heartbeats keep SSE connections alive through proxies
	s.cron.AddFunc(heartbeatSpec, func() {
		s.Broadcast(Event{Type: "heartbeat", Data: time.Now().UTC().Format(time.RFC3339)})
	})
	s.cron.AddFunc(pruneSpec, func() {
		if s.bots == nil {
			return
		}
		if n := s.bots.PruneRuns(pruneKeepRuns); n > 0 {
			s.logger.Info().Int("pruned", n).Msg("pruned finished bot runs")
		}
	})
}

// Handler returns the HTTP handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()
	s.cron.Start()

	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.addr).Msg("api server listening")

	select {
	case <-ctx.Done():
		s.cron.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.hub.Stop()
		return err
	case err := <-errCh:
		s.cron.Stop()
		s.hub.Stop()
		return err
	}
}

// Broadcast sends an event to all connected push clients
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
