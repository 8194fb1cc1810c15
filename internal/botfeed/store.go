// Package botfeed reduces bot-activity events into typed state for the
// activity feed. The store is mutated only through Apply, which is
// invoked from a single subscription goroutine (single-writer
// discipline); readers take snapshots.
package botfeed

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/domain"
	"github.com/hireloop/streamcore/internal/events"
)

// defaultMaxLogLines bounds each run's log list; oldest entries are
// dropped first.
const defaultMaxLogLines = 500

// ChangeFunc is notified after a mutating event, with the event type
type ChangeFunc func(eventType string)

// Store holds the reduced bot-feed state
type Store struct {
	logger      zerolog.Logger
	maxLogLines int
	onChange    ChangeFunc

	mu    sync.RWMutex
	bots  map[string]*domain.Bot
	runs  map[string]*domain.BotRun
	logs  map[string][]domain.LogEntry
	usage domain.TokenUsage
}

// NewStore creates an empty store
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger:      logger.With().Str("component", "botfeed").Logger(),
		maxLogLines: defaultMaxLogLines,
		bots:        make(map[string]*domain.Bot),
		runs:        make(map[string]*domain.BotRun),
		logs:        make(map[string][]domain.LogEntry),
	}
}

// SetOnChange registers a hook fired after every mutating event. Must
// be set before the subscription starts delivering events.
func (s *Store) SetOnChange(fn ChangeFunc) {
	s.onChange = fn
}

// Apply reduces one envelope into the store. Unknown event types and
// undecodable payloads are ignored without error.
func (s *Store) Apply(env events.Envelope) {
	mutated := false

	switch env.Type {
	case events.TypeBotsState:
		mutated = s.applyBotsState(env)
	case events.TypeBotState:
		mutated = s.applyBotState(env)
	case events.TypeRunStart:
		mutated = s.applyRunStart(env)
	case events.TypeRunComplete:
		mutated = s.applyRunComplete(env)
	case events.TypeRunError:
		mutated = s.applyRunError(env)
	case events.TypeUsageUpdate:
		mutated = s.applyUsage(env)
	case events.TypeLogLine:
		mutated = s.applyLogLine(env)
	case events.TypeHeartbeat:
		// Liveness only, handled by the transport.
	default:
		s.logger.Debug().Str("type", env.Type).Msg("ignoring unknown event type")
	}

	if mutated && s.onChange != nil {
		s.onChange(env.Type)
	}
}

// applyBotsState replaces the bot collection wholesale
func (s *Store) applyBotsState(env events.Envelope) bool {
	var p events.BotsStatePayload
	if err := env.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("bad bots_state payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bots = make(map[string]*domain.Bot, len(p.Bots))
	for i := range p.Bots {
		bot := p.Bots[i]
		s.bots[bot.Name] = &bot
	}
	return true
}

// applyBotState merges only the fields present on the payload into the
// bot keyed by name; absent fields are left untouched.
func (s *Store) applyBotState(env events.Envelope) bool {
	var p events.BotStatePayload
	if err := env.Decode(&p); err != nil || p.Name == "" {
		s.logger.Warn().Err(err).Msg("bad bot_state payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bot, ok := s.bots[p.Name]
	if !ok {
		bot = &domain.Bot{Name: p.Name, Status: domain.BotScheduled}
		s.bots[p.Name] = bot
	}
	if p.Status != nil {
		bot.Status = domain.BotStatus(*p.Status)
	}
	if p.Schedule != nil {
		bot.Schedule = *p.Schedule
	}
	if p.RunsToday != nil {
		bot.RunsToday = *p.RunsToday
	}
	if p.LastError != nil {
		bot.LastError = *p.LastError
	}
	bot.UpdatedAt = env.Timestamp
	return true
}

func (s *Store) applyRunStart(env events.Envelope) bool {
	var p events.RunStartPayload
	if err := env.Decode(&p); err != nil || p.RunID == "" {
		s.logger.Warn().Err(err).Msg("bad bot_run_start payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[p.RunID] = &domain.BotRun{
		ID:        p.RunID,
		Bot:       p.Bot,
		Status:    domain.RunRunning,
		StartedAt: p.StartedAt,
	}
	if bot, ok := s.bots[p.Bot]; ok {
		bot.Status = domain.BotRunning
		bot.LastRunID = p.RunID
		bot.UpdatedAt = env.Timestamp
	}
	return true
}

// applyRunComplete merges terminal fields into the run by id. A replay
// for an unknown run id creates the record rather than corrupting
// anything.
func (s *Store) applyRunComplete(env events.Envelope) bool {
	var p events.RunCompletePayload
	if err := env.Decode(&p); err != nil || p.RunID == "" {
		s.logger.Warn().Err(err).Msg("bad bot_run_complete payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[p.RunID]
	if !ok {
		run = &domain.BotRun{ID: p.RunID}
		s.runs[p.RunID] = run
	}
	run.Status = domain.RunCompleted
	finished := p.FinishedAt
	run.FinishedAt = &finished
	run.TokensInput = p.TokensInput
	run.TokensOutput = p.TokensOutput
	run.CostUSD = p.CostUSD

	if bot, ok := s.bots[run.Bot]; ok {
		bot.Status = domain.BotScheduled
		bot.LastRunID = run.ID
		bot.LastError = ""
		bot.UpdatedAt = env.Timestamp
	}
	return true
}

func (s *Store) applyRunError(env events.Envelope) bool {
	var p events.RunErrorPayload
	if err := env.Decode(&p); err != nil || p.RunID == "" {
		s.logger.Warn().Err(err).Msg("bad bot_run_error payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[p.RunID]
	if !ok {
		run = &domain.BotRun{ID: p.RunID}
		s.runs[p.RunID] = run
	}
	run.Status = domain.RunErrored
	run.Error = p.Message
	now := env.Timestamp
	run.FinishedAt = &now

	if bot, ok := s.bots[run.Bot]; ok {
		bot.Status = domain.BotErrored
		bot.LastError = p.Message
		bot.UpdatedAt = env.Timestamp
	}
	return true
}

// applyUsage replaces the aggregate counters snapshot wholesale
func (s *Store) applyUsage(env events.Envelope) bool {
	var p domain.TokenUsage
	if err := env.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("bad usage_update payload")
		return false
	}

	s.mu.Lock()
	s.usage = p
	s.mu.Unlock()
	return true
}

func (s *Store) applyLogLine(env events.Envelope) bool {
	var p events.LogLinePayload
	if err := env.Decode(&p); err != nil || p.RunID == "" {
		s.logger.Warn().Err(err).Msg("bad log_line payload")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := domain.LogEntry{
		RunID:     p.RunID,
		Timestamp: env.Timestamp,
		Level:     p.Level,
		Message:   p.Message,
	}
	lines := append(s.logs[p.RunID], entry)
	if len(lines) > s.maxLogLines {
		lines = lines[len(lines)-s.maxLogLines:]
	}
	s.logs[p.RunID] = lines
	return true
}

// Bots returns a snapshot of all bots, sorted by name
func (s *Store) Bots() []domain.Bot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bot returns a snapshot of one bot by name
func (s *Store) Bot(name string) (domain.Bot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bots[name]
	if !ok {
		return domain.Bot{}, false
	}
	return *b, true
}

// Runs returns a snapshot of all runs, most recent first
func (s *Store) Runs() []domain.BotRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BotRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Run returns a snapshot of one run by id
func (s *Store) Run(id string) (domain.BotRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return domain.BotRun{}, false
	}
	return *r, true
}

// Usage returns the current aggregate usage snapshot
func (s *Store) Usage() domain.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// RunLogs returns the bounded log list for a run
func (s *Store) RunLogs(runID string) []domain.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.logs[runID]
	out := make([]domain.LogEntry, len(lines))
	copy(out, lines)
	return out
}

// PruneRuns drops finished runs (and their logs) beyond the most
// recent keep, so long-lived processes do not accumulate state forever
func (s *Store) PruneRuns(keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := make([]*domain.BotRun, 0, len(s.runs))
	for _, r := range s.runs {
		if r.Status != domain.RunRunning {
			finished = append(finished, r)
		}
	}
	if len(finished) <= keep {
		return 0
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].StartedAt.After(finished[j].StartedAt) })

	dropped := 0
	for _, r := range finished[keep:] {
		delete(s.runs, r.ID)
		delete(s.logs, r.ID)
		dropped++
	}
	return dropped
}
