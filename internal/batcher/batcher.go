// Package batcher coalesces rapid small text fragments into
// bounded-rate emissions so fast producers cannot flood consumers.
package batcher

import (
	"strings"
	"sync"
	"time"
)

// Batcher accumulates pushed fragments and emits their concatenation
// at most once per interval. The first push on an idle buffer arms a
// single flush timer; FlushNow emits synchronously and cancels any
// pending timer so a stale flush can never follow the final content.
type Batcher struct {
	interval time.Duration
	emit     func(string)

	// emitMu serializes the take-buffer-and-emit sequence. Stopping
	// the timer only covers a flush that has not fired yet; a timer
	// callback already past the buffer take must be joined, or
	// FlushNow could return before that emission lands. Emit
	// callbacks must not call FlushNow.
	emitMu sync.Mutex

	mu      sync.Mutex
	buf     strings.Builder
	timer   *time.Timer
	stopped bool
}

// New creates a Batcher that calls emit with coalesced text
func New(interval time.Duration, emit func(string)) *Batcher {
	return &Batcher{interval: interval, emit: emit}
}

// Push appends a fragment to the buffer and schedules a flush if none
// is pending. Pushes after Stop are dropped.
func (b *Batcher) Push(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.buf.WriteString(fragment)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.timerFlush)
	}
}

// FlushNow synchronously emits any buffered content, cancelling a
// pending scheduled flush and waiting out an in-flight one. When it
// returns, every fragment pushed before the call has been emitted.
// Emits nothing when the buffer is empty.
func (b *Batcher) FlushNow() {
	b.emitBuffered()
}

// Stop cancels any pending flush and discards buffered content.
// Subsequent pushes are no-ops.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buf.Reset()
	b.stopped = true
}

// Pending reports whether a scheduled flush is armed
func (b *Batcher) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timer != nil
}

func (b *Batcher) timerFlush() {
	b.emitBuffered()
}

// emitBuffered takes the buffer under the lock and emits outside it,
// so an emit callback may push again without deadlocking. emitMu is
// held across the whole sequence: a FlushNow racing a fired timer
// blocks until that emission completes, then takes what remains.
func (b *Batcher) emitBuffered() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.stopped || b.buf.Len() == 0 {
		b.mu.Unlock()
		return
	}
	out := b.buf.String()
	b.buf.Reset()
	b.mu.Unlock()

	b.emit(out)
}
