package batcher

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// collector records emissions in order
type collector struct {
	mu    sync.Mutex
	flush []string
}

func (c *collector) emit(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flush = append(c.flush, s)
}

func (c *collector) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.flush, "")
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flush)
}

func TestBatcher_CoalescesRapidPushes(t *testing.T) {
	var c collector
	b := New(20*time.Millisecond, c.emit)

	b.Push("a")
	b.Push("b")
	b.Push("c")

	time.Sleep(60 * time.Millisecond)

	if c.count() != 1 {
		t.Fatalf("flush count = %d, want 1 (single scheduled flush)", c.count())
	}
	if c.joined() != "abc" {
		t.Errorf("flushed = %q, want %q", c.joined(), "abc")
	}
}

func TestBatcher_NoLossNoDuplication(t *testing.T) {
	var c collector
	b := New(5*time.Millisecond, c.emit)

	fragments := []string{"the", " quick", " brown", " fox", " jumps"}
	for i, f := range fragments {
		b.Push(f)
		if i == 2 {
			// Let a scheduled flush fire mid-sequence.
			time.Sleep(15 * time.Millisecond)
		}
	}
	b.FlushNow()

	want := strings.Join(fragments, "")
	if c.joined() != want {
		t.Errorf("concatenated flushes = %q, want %q", c.joined(), want)
	}
}

func TestBatcher_FlushNowCancelsPending(t *testing.T) {
	var c collector
	b := New(20*time.Millisecond, c.emit)

	b.Push("final")
	b.FlushNow()

	if b.Pending() {
		t.Error("flush still pending after FlushNow")
	}

	// The cancelled timer must not produce a second, stale emission.
	time.Sleep(50 * time.Millisecond)
	if c.count() != 1 {
		t.Errorf("flush count = %d, want 1", c.count())
	}
	if c.joined() != "final" {
		t.Errorf("flushed = %q, want %q", c.joined(), "final")
	}
}

func TestBatcher_FlushNowEmptyEmitsNothing(t *testing.T) {
	var c collector
	b := New(20*time.Millisecond, c.emit)

	b.FlushNow()

	if c.count() != 0 {
		t.Errorf("flush count = %d, want 0", c.count())
	}
}

func TestBatcher_SinglePendingFlush(t *testing.T) {
	var c collector
	b := New(30*time.Millisecond, c.emit)

	b.Push("a")
	if !b.Pending() {
		t.Fatal("no flush pending after first push")
	}
	b.Push("b")
	b.Push("c")
	if !b.Pending() {
		t.Fatal("pending flush lost by later pushes")
	}

	time.Sleep(80 * time.Millisecond)
	if c.count() != 1 {
		t.Errorf("flush count = %d, want 1", c.count())
	}
}

func TestBatcher_StopDiscards(t *testing.T) {
	var c collector
	b := New(10*time.Millisecond, c.emit)

	b.Push("doomed")
	b.Stop()
	b.Push("ignored")

	time.Sleep(30 * time.Millisecond)
	if c.count() != 0 {
		t.Errorf("flush count = %d, want 0 after Stop", c.count())
	}
}

func TestBatcher_FlushNowJoinsInFlightTimerEmission(t *testing.T) {
	var c collector
	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once
	b := New(time.Millisecond, func(s string) {
		once.Do(func() {
			close(entered)
			<-release
		})
		c.emit(s)
	})

	b.Push("tail-content")
	<-entered // timer flush has taken the buffer and is mid-emit
	b.Push("late")

	flushed := make(chan struct{})
	go func() {
		b.FlushNow()
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("FlushNow returned while a timer emission was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("FlushNow did not return after the emission completed")
	}

	if got := c.joined(); got != "tail-contentlate" {
		t.Errorf("joined = %q, want %q", got, "tail-contentlate")
	}
	if c.count() != 2 {
		t.Errorf("flush count = %d, want 2", c.count())
	}
}
