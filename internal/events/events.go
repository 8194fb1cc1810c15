// Package events defines the event envelope pushed over backend streams
// and the decoder that turns raw frames into typed envelopes.
package events

import (
	"encoding/json"
	"time"

	"github.com/hireloop/streamcore/internal/domain"
)

// Envelope wraps all pushed events with a type discriminator.
// Payload is narrowed per type by the reducers; use Decode for that.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the envelope payload into v. An empty payload is
// left as the zero value without error.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Marshal creates an envelope frame body with the given type and payload
func Marshal(eventType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: eventType, Timestamp: time.Now().UTC(), Payload: raw})
}

// Bot activity feed event types
const (
	TypeHeartbeat   = "heartbeat"
	TypeBotsState   = "bots_state"
	TypeBotState    = "bot_state"
	TypeRunStart    = "bot_run_start"
	TypeRunComplete = "bot_run_complete"
	TypeRunError    = "bot_run_error"
	TypeUsageUpdate = "usage_update"
	TypeLogLine     = "log_line"
)

// Research session event types (session-scoped, carry session_id)
const (
	TypeSessionStarted  = "session_started"
	TypeAgentUpdate     = "agent_update"
	TypeAgentDelta      = "agent_delta"
	TypeSessionLog      = "session_log"
	TypeSessionComplete = "session_complete"
	TypeSessionError    = "session_error"
)

// Generation stream event types (one-shot streaming responses)
const (
	TypeDelta = "delta"
	TypeDone  = "done"
	TypeError = "error"
)

// BotsStatePayload is a full snapshot of all bots
type BotsStatePayload struct {
	Bots []domain.Bot `json:"bots"`
}

// BotStatePayload is a partial update for a single bot. Only non-nil
// fields are applied; absent fields leave the bot untouched.
type BotStatePayload struct {
	Name      string  `json:"name"`
	Status    *string `json:"status,omitempty"`
	Schedule  *string `json:"schedule,omitempty"`
	RunsToday *int    `json:"runs_today,omitempty"`
	LastError *string `json:"last_error,omitempty"`
}

// RunStartPayload announces a new bot run
type RunStartPayload struct {
	RunID     string    `json:"run_id"`
	Bot       string    `json:"bot"`
	StartedAt time.Time `json:"started_at"`
}

// RunCompletePayload carries the terminal fields of a finished run
type RunCompletePayload struct {
	RunID        string    `json:"run_id"`
	FinishedAt   time.Time `json:"finished_at"`
	TokensInput  int       `json:"tokens_input"`
	TokensOutput int       `json:"tokens_output"`
	CostUSD      float64   `json:"cost_usd"`
}

// RunErrorPayload carries the terminal error of a failed run
type RunErrorPayload struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// LogLinePayload is one log message for a run
type LogLinePayload struct {
	RunID   string `json:"run_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SessionStartedPayload initializes a research session and its agents
type SessionStartedPayload struct {
	Topic  string                 `json:"topic"`
	Agents []domain.ResearchAgent `json:"agents"`
}

// AgentUpdatePayload is a partial update for a single research agent
type AgentUpdatePayload struct {
	Name   string  `json:"name"`
	Status *string `json:"status,omitempty"`
	Task   *string `json:"task,omitempty"`
}

// AgentDeltaPayload is an incremental fragment of an agent transcript
type AgentDeltaPayload struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// SessionLogPayload is one log message for a session
type SessionLogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SessionCompletePayload marks a session finished with its summary
type SessionCompletePayload struct {
	Summary string `json:"summary"`
}

// SessionErrorPayload marks a session failed
type SessionErrorPayload struct {
	Message string `json:"message"`
}

// DeltaPayload is an incremental text fragment of a generation stream
type DeltaPayload struct {
	Text string `json:"text"`
}

// ErrorPayload is the terminal error frame of a generation stream
type ErrorPayload struct {
	Message string `json:"message"`
}
