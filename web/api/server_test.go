package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/arena"
	"github.com/hireloop/streamcore/internal/botfeed"
	"github.com/hireloop/streamcore/internal/events"
	"github.com/hireloop/streamcore/internal/prompts"
	"github.com/hireloop/streamcore/internal/research"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string, onDelta func(string)) error {
	onDelta("argument text")
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	bots := botfeed.NewStore(zerolog.Nop())
	res := research.NewStore(zerolog.Nop())
	orch := arena.New(arena.Config{
		Generator:       stubGenerator{},
		Prompts:         prompts.NewLoader(),
		FlushInterval:   5 * time.Millisecond,
		CaptionInterval: time.Hour,
		Logger:          zerolog.Nop(),
	})
	t.Cleanup(orch.Stop)

	return NewServer(Config{
		Addr:     ":0",
		Bots:     bots,
		Research: res,
		Arena:    orch,
		Logger:   zerolog.Nop(),
	})
}

func applyEvent(t *testing.T, store *botfeed.Store, eventType string, payload any) {
	t.Helper()
	data, err := events.Marshal(eventType, payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	store.Apply(env)
}

func TestListBotsHandler(t *testing.T) {
	server := newTestServer(t)
	applyEvent(t, server.bots, events.TypeBotsState, map[string]any{
		"bots": []map[string]any{
			{"name": "alpha", "status": "scheduled"},
			{"name": "beta", "status": "running"},
		},
	})

	req := httptest.NewRequest("GET", "/api/bots", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}

	var bots []map[string]any
	json.NewDecoder(w.Body).Decode(&bots)

	if len(bots) != 2 {
		t.Errorf("Bot count = %d, want 2", len(bots))
	}
}

func TestGetBotHandlerNotFound(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/bots/missing", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.ArenaStatus != "idle" {
		t.Errorf("ArenaStatus = %q, want idle", status.ArenaStatus)
	}
}

func TestArenaRunHandler(t *testing.T) {
	server := newTestServer(t)

	body := strings.NewReader(`{"topic": "remote work"}`)
	req := httptest.NewRequest("POST", "/api/arena/run", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want 202", w.Code)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["run_id"] == "" {
		t.Error("run_id missing from response")
	}
}

func TestArenaRunHandlerRejectsEmptyTopic(t *testing.T) {
	server := newTestServer(t)

	body := strings.NewReader(`{"topic": "   "}`)
	req := httptest.NewRequest("POST", "/api/arena/run", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestArenaStopHandler(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/arena/stop", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

func TestSSEHandlerStreamsBroadcasts(t *testing.T) {
	server := newTestServer(t)
	go server.hub.Run()
	defer server.hub.Stop()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// Wait for the client to register before broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for server.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	server.Broadcast(Event{Type: "usage_update", Data: map[string]int{"tokens_input": 10}})

	scanner := bufio.NewScanner(resp.Body)
	var got []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		got = append(got, line)
		if strings.HasPrefix(line, "data:") {
			break
		}
	}

	if len(got) < 2 {
		t.Fatalf("lines = %v, want event and data lines", got)
	}
	if got[0] != "event: usage_update" {
		t.Errorf("event line = %q, want %q", got[0], "event: usage_update")
	}
	if !strings.Contains(got[1], `"tokens_input":10`) {
		t.Errorf("data line = %q, want tokens_input payload", got[1])
	}
}

func TestEventHubDropsSlowClients(t *testing.T) {
	hub := NewEventHub()
	go hub.Run()
	defer hub.Stop()

	client := make(chan Event) // unbuffered, never read
	hub.register <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(Event{Type: "heartbeat"})

	if _, ok := <-client; ok {
		t.Error("slow client channel not closed")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
}

func TestSSEHandlerReturnsWhenHubStopped(t *testing.T) {
	server := newTestServer(t)
	go server.hub.Run()
	server.hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked registering on a stopped hub")
	}
}
