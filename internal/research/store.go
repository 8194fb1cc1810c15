// Package research reduces multi-agent research-session events into
// typed state. Events are session-scoped: envelopes whose session id
// does not match the active session are discarded.
package research

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/batcher"
	"github.com/hireloop/streamcore/internal/domain"
	"github.com/hireloop/streamcore/internal/events"
)

const (
	defaultMaxLogLines   = 200
	defaultFlushInterval = 100 * time.Millisecond
)

// ChangeFunc is notified after a mutating event, with the event type
type ChangeFunc func(eventType string)

// Snapshot is a point-in-time copy of the active session state
type Snapshot struct {
	Session *domain.Session        `json:"session,omitempty"`
	Agents  []domain.ResearchAgent `json:"agents"`
	Logs    []domain.LogEntry      `json:"logs"`
}

// Store holds the reduced state of the active research session.
// Mutation happens only through Apply (one subscription goroutine) and
// the batcher flush callbacks it arms.
type Store struct {
	logger        zerolog.Logger
	flushInterval time.Duration
	maxLogLines   int
	onChange      ChangeFunc

	mu            sync.RWMutex
	activeSession string
	session       *domain.Session
	agents        map[string]*domain.ResearchAgent
	logs          []domain.LogEntry
	batchers      map[string]*batcher.Batcher
}

// NewStore creates an empty store with no active session
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger:        logger.With().Str("component", "research").Logger(),
		flushInterval: defaultFlushInterval,
		maxLogLines:   defaultMaxLogLines,
		agents:        make(map[string]*domain.ResearchAgent),
		batchers:      make(map[string]*batcher.Batcher),
	}
}

// SetOnChange registers a hook fired after every mutating event
func (s *Store) SetOnChange(fn ChangeFunc) {
	s.onChange = fn
}

// SetActiveSession switches the store to a new session, discarding all
// state from the previous one. Pending transcript flushes for the old
// session are cancelled, not emitted.
func (s *Store) SetActiveSession(id string) {
	s.mu.Lock()
	stale := s.batchers
	s.activeSession = id
	s.session = nil
	s.agents = make(map[string]*domain.ResearchAgent)
	s.logs = nil
	s.batchers = make(map[string]*batcher.Batcher)
	s.mu.Unlock()

	for _, b := range stale {
		b.Stop()
	}
}

// ActiveSession returns the currently active session id
func (s *Store) ActiveSession() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSession
}

// Apply reduces one envelope into the store. Envelopes for other
// sessions produce no mutation.
func (s *Store) Apply(env events.Envelope) {
	if env.Type == events.TypeHeartbeat {
		return
	}

	s.mu.RLock()
	active := s.activeSession
	s.mu.RUnlock()
	if active == "" || env.SessionID != active {
		s.logger.Debug().Str("session", env.SessionID).Str("type", env.Type).Msg("dropping event for inactive session")
		return
	}

	mutated := false
	switch env.Type {
	case events.TypeSessionStarted:
		mutated = s.applySessionStarted(env)
	case events.TypeAgentUpdate:
		mutated = s.applyAgentUpdate(env)
	case events.TypeAgentDelta:
		s.applyAgentDelta(env)
		// Visible state advances at flush time, not per fragment.
	case events.TypeSessionLog:
		mutated = s.applySessionLog(env)
	case events.TypeSessionComplete:
		mutated = s.applyTerminal(env, domain.SessionComplete)
	case events.TypeSessionError:
		mutated = s.applyTerminal(env, domain.SessionErrored)
	default:
		s.logger.Debug().Str("type", env.Type).Msg("ignoring unknown event type")
	}

	if mutated && s.onChange != nil {
		s.onChange(env.Type)
	}
}

func (s *Store) applySessionStarted(env events.Envelope) bool {
	var p events.SessionStartedPayload
	if err := env.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("bad session_started payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &domain.Session{
		ID:        env.SessionID,
		Topic:     p.Topic,
		Status:    domain.SessionRunning,
		StartedAt: env.Timestamp,
	}
	s.agents = make(map[string]*domain.ResearchAgent, len(p.Agents))
	for i := range p.Agents {
		agent := p.Agents[i]
		if agent.Status == "" {
			agent.Status = domain.AgentIdle
		}
		s.agents[agent.Name] = &agent
	}
	return true
}

// applyAgentUpdate merges only present fields into the agent by name
func (s *Store) applyAgentUpdate(env events.Envelope) bool {
	var p events.AgentUpdatePayload
	if err := env.Decode(&p); err != nil || p.Name == "" {
		s.logger.Warn().Err(err).Msg("bad agent_update payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[p.Name]
	if !ok {
		agent = &domain.ResearchAgent{Name: p.Name, Status: domain.AgentIdle}
		s.agents[p.Name] = agent
	}
	if p.Status != nil {
		agent.Status = domain.AgentStatus(*p.Status)
	}
	if p.Task != nil {
		agent.Task = *p.Task
	}
	agent.UpdatedAt = env.Timestamp
	return true
}

// applyAgentDelta routes the fragment through the agent's batcher so
// rapid deltas become bounded-rate transcript updates.
func (s *Store) applyAgentDelta(env events.Envelope) {
	var p events.AgentDeltaPayload
	if err := env.Decode(&p); err != nil || p.Agent == "" {
		s.logger.Warn().Err(err).Msg("bad agent_delta payload")
		return
	}

	s.mu.Lock()
	b, ok := s.batchers[p.Agent]
	if !ok {
		name := p.Agent
		session := env.SessionID
		b = batcher.New(s.flushInterval, func(text string) {
			s.appendTranscript(session, name, text)
		})
		s.batchers[p.Agent] = b
	}
	s.mu.Unlock()

	b.Push(p.Text)
}

// appendTranscript is the batcher flush callback. The session guard
// covers flushes that fire after the active session moved on.
func (s *Store) appendTranscript(session, agent, text string) {
	s.mu.Lock()
	if session != s.activeSession {
		s.mu.Unlock()
		return
	}
	a, ok := s.agents[agent]
	if !ok {
		a = &domain.ResearchAgent{Name: agent, Status: domain.AgentWorking}
		s.agents[agent] = a
	}
	a.Transcript += text
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(events.TypeAgentDelta)
	}
}

func (s *Store) applySessionLog(env events.Envelope) bool {
	var p events.SessionLogPayload
	if err := env.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("bad session_log payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, domain.LogEntry{
		RunID:     env.SessionID,
		Timestamp: env.Timestamp,
		Level:     p.Level,
		Message:   p.Message,
	})
	if len(s.logs) > s.maxLogLines {
		s.logs = s.logs[len(s.logs)-s.maxLogLines:]
	}
	return true
}

// applyTerminal finalizes the session. Buffered transcript fragments
// are flushed synchronously first so no streamed text is lost.
func (s *Store) applyTerminal(env events.Envelope, status domain.SessionStatus) bool {
	s.mu.Lock()
	batchers := make([]*batcher.Batcher, 0, len(s.batchers))
	for _, b := range s.batchers {
		batchers = append(batchers, b)
	}
	s.mu.Unlock()
	for _, b := range batchers {
		b.FlushNow()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return false
	}
	s.session.Status = status
	switch status {
	case domain.SessionComplete:
		var p events.SessionCompletePayload
		if err := env.Decode(&p); err == nil {
			s.session.Summary = p.Summary
		}
	case domain.SessionErrored:
		var p events.SessionErrorPayload
		if err := env.Decode(&p); err == nil {
			s.session.Error = p.Message
		}
	}
	return true
}

// Snapshot returns a deep copy of the current session state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Agents: make([]domain.ResearchAgent, 0, len(s.agents)),
		Logs:   make([]domain.LogEntry, len(s.logs)),
	}
	if s.session != nil {
		sess := *s.session
		snap.Session = &sess
	}
	for _, a := range s.agents {
		snap.Agents = append(snap.Agents, *a)
	}
	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].Name < snap.Agents[j].Name })
	copy(snap.Logs, s.logs)
	return snap
}
