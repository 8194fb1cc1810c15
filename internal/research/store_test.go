package research

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/domain"
	"github.com/hireloop/streamcore/internal/events"
)

func sessionEnvelope(t *testing.T, sessionID, eventType string, payload any) events.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return events.Envelope{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
}

func startSession(t *testing.T, s *Store, id string) {
	t.Helper()
	s.SetActiveSession(id)
	s.Apply(sessionEnvelope(t, id, events.TypeSessionStarted, events.SessionStartedPayload{
		Topic: "remote golang roles",
		Agents: []domain.ResearchAgent{
			{Name: "scout"},
			{Name: "analyst"},
		},
	}))
}

func TestStore_MismatchedSessionProducesNoMutation(t *testing.T) {
	s := NewStore(zerolog.Nop())
	startSession(t, s, "s1")

	status := "working"
	s.Apply(sessionEnvelope(t, "s2", events.TypeAgentUpdate, events.AgentUpdatePayload{
		Name:   "scout",
		Status: &status,
	}))

	snap := s.Snapshot()
	for _, a := range snap.Agents {
		if a.Name == "scout" && a.Status != domain.AgentIdle {
			t.Errorf("scout status = %q, want idle (foreign-session event must be dropped)", a.Status)
		}
	}
}

func TestStore_AgentUpdatePartialMerge(t *testing.T) {
	s := NewStore(zerolog.Nop())
	startSession(t, s, "s1")

	task := "scanning job boards"
	s.Apply(sessionEnvelope(t, "s1", events.TypeAgentUpdate, events.AgentUpdatePayload{
		Name: "scout",
		Task: &task,
	}))

	snap := s.Snapshot()
	var scout *domain.ResearchAgent
	for i := range snap.Agents {
		if snap.Agents[i].Name == "scout" {
			scout = &snap.Agents[i]
		}
	}
	if scout == nil {
		t.Fatal("scout missing")
	}
	if scout.Task != task {
		t.Errorf("task = %q, want %q", scout.Task, task)
	}
	if scout.Status != domain.AgentIdle {
		t.Errorf("status = %q, want idle (absent field untouched)", scout.Status)
	}
}

func TestStore_AgentDeltasCoalesceAndFinalFlush(t *testing.T) {
	s := NewStore(zerolog.Nop())
	s.flushInterval = time.Hour // only the terminal flush may emit
	startSession(t, s, "s1")

	for _, frag := range []string{"found ", "12 ", "matching ", "roles"} {
		s.Apply(sessionEnvelope(t, "s1", events.TypeAgentDelta, events.AgentDeltaPayload{
			Agent: "scout",
			Text:  frag,
		}))
	}

	// Nothing visible before a flush.
	snap := s.Snapshot()
	for _, a := range snap.Agents {
		if a.Name == "scout" && a.Transcript != "" {
			t.Errorf("transcript visible before flush: %q", a.Transcript)
		}
	}

	s.Apply(sessionEnvelope(t, "s1", events.TypeSessionComplete, events.SessionCompletePayload{
		Summary: "done",
	}))

	snap = s.Snapshot()
	found := false
	for _, a := range snap.Agents {
		if a.Name == "scout" {
			found = true
			if a.Transcript != "found 12 matching roles" {
				t.Errorf("transcript = %q, want full concatenation", a.Transcript)
			}
		}
	}
	if !found {
		t.Fatal("scout missing")
	}
	if snap.Session == nil || snap.Session.Status != domain.SessionComplete {
		t.Error("session not marked complete")
	}
	if snap.Session.Summary != "done" {
		t.Errorf("summary = %q, want done", snap.Session.Summary)
	}
}

func TestStore_SwitchingSessionsResetsState(t *testing.T) {
	s := NewStore(zerolog.Nop())
	startSession(t, s, "s1")

	s.Apply(sessionEnvelope(t, "s1", events.TypeSessionLog, events.SessionLogPayload{Message: "old"}))

	startSession(t, s, "s2")

	snap := s.Snapshot()
	if len(snap.Logs) != 0 {
		t.Errorf("logs = %d, want 0 after session switch", len(snap.Logs))
	}
	if snap.Session == nil || snap.Session.ID != "s2" {
		t.Error("active session not s2")
	}
}

func TestStore_SessionErrorTerminal(t *testing.T) {
	s := NewStore(zerolog.Nop())
	startSession(t, s, "s1")

	s.Apply(sessionEnvelope(t, "s1", events.TypeSessionError, events.SessionErrorPayload{
		Message: "backend unavailable",
	}))

	snap := s.Snapshot()
	if snap.Session == nil || snap.Session.Status != domain.SessionErrored {
		t.Fatal("session not marked errored")
	}
	if snap.Session.Error != "backend unavailable" {
		t.Errorf("error = %q", snap.Session.Error)
	}
}
