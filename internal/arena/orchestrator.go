// Package arena drives the three-stage debate pipeline: advocate,
// critic, judge. Stages run strictly in sequence; each consumes its
// own one-shot streaming generation and later stages quote earlier
// stages' finalized output verbatim.
package arena

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/batcher"
	"github.com/hireloop/streamcore/internal/domain"
	"github.com/hireloop/streamcore/internal/llm"
	"github.com/hireloop/streamcore/internal/prompts"
)

const (
	defaultFlushInterval   = 100 * time.Millisecond
	defaultCaptionInterval = 2 * time.Second
)

// stageRoles is the fixed pipeline order
var stageRoles = [3]domain.StageRole{domain.RoleAdvocate, domain.RoleCritic, domain.RoleJudge}

// Config configures an Orchestrator
type Config struct {
	Generator llm.Generator
	Prompts   *prompts.Loader

	// FlushInterval bounds how often streamed content becomes visible.
	FlushInterval time.Duration

	// CaptionInterval is the rotation period of progress captions.
	CaptionInterval time.Duration

	Logger zerolog.Logger
}

// stageState is the mutable state of one stage within a run
type stageState struct {
	role         domain.StageRole
	status       domain.StageStatus
	caption      string
	content      string
	startedAt    *time.Time
	finishedAt   *time.Time
	errMsg       string
	batch        *batcher.Batcher
	stopCaptions chan struct{}
}

// run is one execution of the pipeline
type run struct {
	id        string
	topic     string
	status    domain.PipelineStatus
	startedAt time.Time
	stages    [3]*stageState
	cancel    context.CancelFunc
}

// Orchestrator owns at most one active pipeline run. Starting a new
// run cancels and discards any in-flight one; callbacks from a
// superseded run are suppressed by run-identity checks, so no state
// transition from the old run is ever observed.
type Orchestrator struct {
	gen             llm.Generator
	loader          *prompts.Loader
	logger          zerolog.Logger
	flushInterval   time.Duration
	captionInterval time.Duration
	onUpdate        func()

	mu  sync.Mutex
	cur *run
}

// New creates an Orchestrator
func New(cfg Config) *Orchestrator {
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.CaptionInterval == 0 {
		cfg.CaptionInterval = defaultCaptionInterval
	}
	return &Orchestrator{
		gen:             cfg.Generator,
		loader:          cfg.Prompts,
		logger:          cfg.Logger.With().Str("component", "arena").Logger(),
		flushInterval:   cfg.FlushInterval,
		captionInterval: cfg.CaptionInterval,
	}
}

// SetOnUpdate registers a hook fired after every visible state change.
// Must be set before the first Start.
func (o *Orchestrator) SetOnUpdate(fn func()) {
	o.onUpdate = fn
}

// Start begins a new run for the topic, cancelling any previous run
// first. It returns the new run's id.
func (o *Orchestrator) Start(topic string) string {
	ctx, cancel := context.WithCancel(context.Background())

	r := &run{
		id:        uuid.NewString(),
		topic:     topic,
		status:    domain.PipelineRunning,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
	}
	for i, role := range stageRoles {
		r.stages[i] = &stageState{role: role, status: domain.StageWaiting}
	}

	o.mu.Lock()
	prev := o.cur
	o.cur = r
	o.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	o.logger.Info().Str("run", r.id).Str("topic", topic).Msg("arena run started")
	o.notify()

	go o.execute(ctx, r)
	return r.id
}

// Stop cancels the active run. Mid-flight stages return to a neutral
// idle status; completed stages keep their content. Not an error: the
// run ends in idle, never in error, when stopped deliberately.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	r := o.cur
	if r == nil || r.status != domain.PipelineRunning {
		o.mu.Unlock()
		return
	}
	r.cancel()
	r.status = domain.PipelineIdle
	for _, st := range r.stages {
		st.teardown()
		if st.status == domain.StageThinking || st.status == domain.StageStreaming || st.status == domain.StageWaiting {
			st.status = domain.StageIdle
			st.caption = ""
		}
	}
	o.mu.Unlock()

	o.logger.Info().Str("run", r.id).Msg("arena run stopped")
	o.notify()
}

// State returns a snapshot of the current run
func (o *Orchestrator) State() domain.PipelineRun {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cur == nil {
		out := domain.PipelineRun{Status: domain.PipelineIdle, Stages: make([]domain.Stage, len(stageRoles))}
		for i, role := range stageRoles {
			out.Stages[i] = domain.Stage{Role: role, Status: domain.StageIdle}
		}
		return out
	}

	r := o.cur
	started := r.startedAt
	out := domain.PipelineRun{
		ID:        r.id,
		Topic:     r.topic,
		Status:    r.status,
		StartedAt: &started,
		Stages:    make([]domain.Stage, len(r.stages)),
	}
	for i, st := range r.stages {
		out.Stages[i] = domain.Stage{
			Role:       st.role,
			Status:     st.status,
			Caption:    st.caption,
			Content:    st.content,
			WordCount:  len(strings.Fields(st.content)),
			StartedAt:  st.startedAt,
			FinishedAt: st.finishedAt,
			Error:      st.errMsg,
		}
	}
	return out
}

// execute runs the stages strictly in sequence on one goroutine
func (o *Orchestrator) execute(ctx context.Context, r *run) {
	for i := range r.stages {
		if !o.runStage(ctx, r, i) {
			return
		}
	}

	o.mu.Lock()
	if o.cur != r || ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	r.status = domain.PipelineComplete
	o.mu.Unlock()

	o.logger.Info().Str("run", r.id).Msg("arena run complete")
	o.notify()
}

// runStage executes one stage to completion. It returns false when the
// pipeline must not continue (error or cancellation).
func (o *Orchestrator) runStage(ctx context.Context, r *run, idx int) bool {
	role := stageRoles[idx]

	prompt, err := o.loader.StagePrompt(string(role), o.stageData(r))
	if err != nil {
		o.failStage(ctx, r, idx, err)
		return false
	}

	b := batcher.New(o.flushInterval, func(text string) {
		o.appendContent(r, idx, text)
	})

	if !o.beginStage(ctx, r, idx, b) {
		return false
	}

	err = o.gen.Generate(ctx, prompt, func(text string) {
		o.markStreaming(r, idx)
		b.Push(text)
	})

	if ctx.Err() != nil {
		// Cancelled: drop buffered fragments, produce no transitions.
		b.Stop()
		return false
	}

	if err != nil {
		b.FlushNow()
		o.failStage(ctx, r, idx, err)
		return false
	}

	b.FlushNow()
	return o.finishStage(ctx, r, idx)
}

// stageData collects the topic and finalized earlier-stage content
func (o *Orchestrator) stageData(r *run) prompts.StageData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return prompts.StageData{
		Topic:    r.topic,
		Advocate: r.stages[0].content,
		Critic:   r.stages[1].content,
	}
}

// beginStage moves the stage to thinking and starts caption rotation
func (o *Orchestrator) beginStage(ctx context.Context, r *run, idx int, b *batcher.Batcher) bool {
	captions := o.loader.StageCaptions(string(stageRoles[idx]))

	o.mu.Lock()
	if o.cur != r || ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	st := r.stages[idx]
	now := time.Now().UTC()
	st.status = domain.StageThinking
	st.startedAt = &now
	st.caption = captions[0]
	st.batch = b
	st.stopCaptions = make(chan struct{})
	stop := st.stopCaptions
	o.mu.Unlock()

	o.notify()
	go o.rotateCaptions(ctx, r, idx, captions, stop)
	return true
}

// rotateCaptions advances the caption on a fixed interval until the
// first content fragment arrives. The index is a pure function of the
// elapsed tick count.
func (o *Orchestrator) rotateCaptions(ctx context.Context, r *run, idx int, captions []string, stop <-chan struct{}) {
	ticker := time.NewTicker(o.captionInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			ticks++
			o.mu.Lock()
			if o.cur != r || r.stages[idx].status != domain.StageThinking {
				o.mu.Unlock()
				return
			}
			r.stages[idx].caption = captions[ticks%len(captions)]
			o.mu.Unlock()
			o.notify()
		}
	}
}

// markStreaming flips the stage from thinking to streaming on the
// first fragment and stops the caption rotation
func (o *Orchestrator) markStreaming(r *run, idx int) {
	o.mu.Lock()
	st := r.stages[idx]
	if o.cur != r || st.status != domain.StageThinking {
		o.mu.Unlock()
		return
	}
	st.status = domain.StageStreaming
	st.caption = ""
	if st.stopCaptions != nil {
		close(st.stopCaptions)
		st.stopCaptions = nil
	}
	o.mu.Unlock()

	o.notify()
}

// appendContent is the batcher flush callback: visible content only
// advances here, never per fragment. Finalized stages are immutable.
func (o *Orchestrator) appendContent(r *run, idx int, text string) {
	o.mu.Lock()
	st := r.stages[idx]
	if o.cur != r || (st.status != domain.StageStreaming && st.status != domain.StageThinking) {
		o.mu.Unlock()
		return
	}
	st.content += text
	o.mu.Unlock()

	o.notify()
}

// finishStage finalizes a completed stage
func (o *Orchestrator) finishStage(ctx context.Context, r *run, idx int) bool {
	o.mu.Lock()
	if o.cur != r || ctx.Err() != nil {
		o.mu.Unlock()
		return false
	}
	st := r.stages[idx]
	st.teardown()
	now := time.Now().UTC()
	st.status = domain.StageDone
	st.finishedAt = &now
	st.caption = ""
	words := len(strings.Fields(st.content))
	o.mu.Unlock()

	o.logger.Info().Str("run", r.id).Str("stage", string(st.role)).Int("words", words).Msg("stage done")
	o.notify()
	return true
}

// failStage marks the stage and the whole run failed. Cancellation is
// not a failure and never reaches here with a live run context.
func (o *Orchestrator) failStage(ctx context.Context, r *run, idx int, err error) {
	msg := err.Error()
	var genErr *llm.GenerationError
	if errors.As(err, &genErr) {
		msg = genErr.Message
	}

	o.mu.Lock()
	if o.cur != r || ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	st := r.stages[idx]
	st.teardown()
	now := time.Now().UTC()
	st.status = domain.StageError
	st.finishedAt = &now
	st.caption = ""
	st.errMsg = msg
	r.status = domain.PipelineError
	o.mu.Unlock()

	o.logger.Warn().Str("run", r.id).Str("stage", string(st.role)).Str("error", msg).Msg("stage failed")
	o.notify()
}

// teardown stops the stage's caption rotation and pending flush.
// Caller holds the orchestrator lock.
func (st *stageState) teardown() {
	if st.stopCaptions != nil {
		close(st.stopCaptions)
		st.stopCaptions = nil
	}
	if st.batch != nil {
		st.batch.Stop()
		st.batch = nil
	}
}

func (o *Orchestrator) notify() {
	if o.onUpdate != nil {
		o.onUpdate()
	}
}
