package domain

import "time"

// Bot represents one automated job-search bot as reported by the backend
type Bot struct {
	Name      string    `json:"name"`
	Status    BotStatus `json:"status"`
	Schedule  string    `json:"schedule,omitempty"`
	RunsToday int       `json:"runs_today"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BotRun represents a single execution of a bot
type BotRun struct {
	ID           string     `json:"id"`
	Bot          string     `json:"bot"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	TokensInput  int        `json:"tokens_input"`
	TokensOutput int        `json:"tokens_output"`
	CostUSD      float64    `json:"cost_usd"`
	Error        string     `json:"error,omitempty"`
}

// TokenUsage is the aggregate usage snapshot across all bots
type TokenUsage struct {
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	CostUSD      float64 `json:"cost_usd"`
	Requests     int     `json:"requests"`
}

// LogEntry represents a log message attached to a run
type LogEntry struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}
