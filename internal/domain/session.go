package domain

import "time"

// Session represents a multi-agent research session
type Session struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Summary   string        `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ResearchAgent is one agent working inside a research session
type ResearchAgent struct {
	Name       string      `json:"name"`
	Status     AgentStatus `json:"status"`
	Task       string      `json:"task,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
