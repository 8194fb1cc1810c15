package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// SubscriptionStatus reports the health of one upstream feed
type SubscriptionStatus struct {
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	LastEventID string `json:"last_event_id,omitempty"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Subscriptions map[string]SubscriptionStatus `json:"subscriptions"`
	ArenaStatus   string                        `json:"arena_status"`
	PushClients   int                           `json:"push_clients"`
}

// ArenaRunRequest starts a new arena run
type ArenaRunRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Subscriptions: make(map[string]SubscriptionStatus, len(s.subs)),
			PushClients:   s.hub.ClientCount(),
		}
		for name, sub := range s.subs {
			resp.Subscriptions[name] = SubscriptionStatus{
				State:       string(sub.State()),
				Attempts:    sub.Attempts(),
				LastEventID: sub.LastEventID(),
			}
		}
		if s.arena != nil {
			resp.ArenaStatus = string(s.arena.State().Status)
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listBotsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.bots.Bots())
	}
}

func (s *Server) getBotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		bot, ok := s.bots.Bot(name)
		if !ok {
			writeError(w, http.StatusNotFound, "bot not found")
			return
		}
		writeJSON(w, bot)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.bots.Runs())
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		run, ok := s.bots.Run(id)
		if !ok {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, run)
	}
}

func (s *Server) runLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, map[string]interface{}{
			"run_id": id,
			"lines":  s.bots.RunLogs(id),
		})
	}
}

func (s *Server) usageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.bots.Usage())
	}
}

func (s *Server) researchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.research.Snapshot())
	}
}

func (s *Server) arenaStateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.arena.State())
	}
}

func (s *Server) arenaRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ArenaRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Topic = strings.TrimSpace(req.Topic)
		if req.Topic == "" {
			writeError(w, http.StatusBadRequest, "topic required")
			return
		}

		id := s.arena.Start(req.Topic)
		s.logger.Info().Str("run_id", id).Str("topic", req.Topic).Msg("arena run started")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"run_id": id})
	}
}

func (s *Server) arenaStopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.arena.Stop()
		writeJSON(w, map[string]string{"status": "stopped"})
	}
}
