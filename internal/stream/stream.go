// Package stream maintains long-lived subscriptions to backend push
// channels, owning reconnection, backoff, and replay bookkeeping.
package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/events"
)

// State is the connection state of a subscription
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// defaultBackoff is the fixed reconnect delay schedule, indexed by the
// reconnect-attempt counter and clamped to the last entry.
var defaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Config configures a subscription to one push channel
type Config struct {
	// URL is the channel endpoint, required.
	URL string

	// OnEvent receives every decoded envelope, including heartbeats.
	OnEvent func(events.Envelope)

	// OnOpen fires after each successful connect.
	OnOpen func()

	// OnError fires when a connection attempt or an open connection
	// fails. Reconnection is automatic; this is informational.
	OnError func(error)

	// Client defaults to a client without a timeout (the connection
	// is expected to stay open indefinitely).
	Client *http.Client

	// Backoff overrides the reconnect schedule. Defaults to
	// 1s, 2s, 5s, 10s, 30s.
	Backoff []time.Duration

	Logger zerolog.Logger
}

// Subscription is one logical subscription to a push channel. At most
// one underlying connection exists at a time; a failed connection is
// replaced after a scheduled backoff delay.
type Subscription struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	state       State
	attempts    int
	lastEventID string
	body        io.Closer
}

// Open starts a subscription to the configured channel. The returned
// subscription runs until Close is called or ctx is cancelled.
func Open(ctx context.Context, cfg Config) (*Subscription, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("channel url is required")
	}
	if cfg.OnEvent == nil {
		return nil, fmt.Errorf("event handler is required")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 0}
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaultBackoff
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		cfg:    cfg,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}

	go s.run()
	return s, nil
}

// Close tears down the subscription: the pending reconnect timer is
// cancelled, the connection is closed, and no further events are
// delivered once Close returns. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	s.closeBody()
	<-s.done
}

// State returns the current connection state
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the current reconnect-attempt counter
func (s *Subscription) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastEventID returns the id of the last processed event, if any
func (s *Subscription) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// run owns the connect / decode / reconnect loop. It is the only
// goroutine that delivers callbacks, so envelopes are processed
// strictly in arrival order.
func (s *Subscription) run() {
	defer close(s.done)
	defer s.setState(StateClosed)

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		resp, err := s.connect()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.cfg.Logger.Warn().Err(err).Str("url", s.cfg.URL).Msg("connect failed")
			s.notifyError(err)
			if !s.waitBackoff() {
				return
			}
			continue
		}

		s.setBody(resp.Body)
		s.setState(StateOpen)
		s.resetAttempts()
		s.cfg.Logger.Debug().Str("url", s.cfg.URL).Msg("channel open")
		if s.cfg.OnOpen != nil && s.ctx.Err() == nil {
			s.cfg.OnOpen()
		}

		err = s.consume(resp.Body)
		s.closeBody()

		if s.ctx.Err() != nil {
			return
		}

		if err != nil && err != io.EOF {
			s.cfg.Logger.Warn().Err(err).Str("url", s.cfg.URL).Msg("channel dropped")
			s.notifyError(err)
		} else {
			s.notifyError(fmt.Errorf("channel closed by server"))
		}
		if !s.waitBackoff() {
			return
		}
	}
}

// connect issues the channel request, sending the last processed event
// id so the server can replay from that point.
func (s *Subscription) connect() (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating channel request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

// consume decodes envelopes until the connection ends. Every
// well-formed event counts as a liveness signal and resets the
// reconnect counter; heartbeats exist solely for that on otherwise
// idle channels.
func (s *Subscription) consume(body io.Reader) error {
	dec := events.NewDecoder(body)
	for {
		env, err := dec.Next()
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.attempts = 0
		if env.ID != "" {
			s.lastEventID = env.ID
		}
		s.mu.Unlock()

		// No delivery after teardown, even for frames already decoded.
		if s.ctx.Err() != nil {
			return nil
		}
		s.cfg.OnEvent(env)
	}
}

// waitBackoff sleeps for the scheduled delay of the current attempt.
// It returns false when the subscription was closed while waiting.
func (s *Subscription) waitBackoff() bool {
	s.mu.Lock()
	delay := delayFor(s.cfg.Backoff, s.attempts)
	s.attempts++
	s.mu.Unlock()

	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// delayFor indexes the schedule by attempt, clamping to the last entry
func delayFor(schedule []time.Duration, attempt int) time.Duration {
	if attempt >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt]
}

func (s *Subscription) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscription) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

func (s *Subscription) setBody(body io.Closer) {
	s.mu.Lock()
	// Opening a new connection tears down any existing one.
	if s.body != nil {
		s.body.Close()
	}
	s.body = body
	s.mu.Unlock()
}

func (s *Subscription) closeBody() {
	s.mu.Lock()
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	s.mu.Unlock()
}

func (s *Subscription) notifyError(err error) {
	if s.cfg.OnError != nil && s.ctx.Err() == nil {
		s.cfg.OnError(err)
	}
}
