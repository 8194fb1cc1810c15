package domain

import "time"

// Stage is the visible state of one arena pipeline stage
type Stage struct {
	Role       StageRole   `json:"role"`
	Status     StageStatus `json:"status"`
	Caption    string      `json:"caption,omitempty"`
	Content    string      `json:"content,omitempty"`
	WordCount  int         `json:"word_count"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// PipelineRun is the visible state of one arena run
type PipelineRun struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Status    PipelineStatus `json:"status"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Stages    []Stage        `json:"stages"`
}
