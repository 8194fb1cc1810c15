package domain

// BotStatus represents the lifecycle state of a search bot
type BotStatus string

const (
	BotScheduled BotStatus = "scheduled"
	BotRunning   BotStatus = "running"
	BotPaused    BotStatus = "paused"
	BotErrored   BotStatus = "errored"
)

// RunStatus represents the execution state of a bot run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunErrored   RunStatus = "errored"
)

// SessionStatus represents the state of a research session
type SessionStatus string

const (
	SessionRunning  SessionStatus = "running"
	SessionComplete SessionStatus = "complete"
	SessionErrored  SessionStatus = "errored"
)

// AgentStatus represents the state of one research agent within a session
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentDone    AgentStatus = "done"
	AgentErrored AgentStatus = "errored"
)

// StageRole identifies one step of the arena debate pipeline
type StageRole string

const (
	RoleAdvocate StageRole = "advocate"
	RoleCritic   StageRole = "critic"
	RoleJudge    StageRole = "judge"
)

// StageStatus represents the execution state of a pipeline stage
type StageStatus string

const (
	StageIdle      StageStatus = "idle"
	StageWaiting   StageStatus = "waiting"
	StageThinking  StageStatus = "thinking"
	StageStreaming StageStatus = "streaming"
	StageDone      StageStatus = "done"
	StageError     StageStatus = "error"
)

// PipelineStatus represents the overall state of an arena run
type PipelineStatus string

const (
	PipelineIdle     PipelineStatus = "idle"
	PipelineRunning  PipelineStatus = "running"
	PipelineComplete PipelineStatus = "complete"
	PipelineError    PipelineStatus = "error"
)
