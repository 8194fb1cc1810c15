// Package llm talks to the AI backend. The backend is opaque: send a
// prompt, receive a push stream of delta/done/error frames.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hireloop/streamcore/internal/events"
)

// Generator issues one-shot streaming generation requests. Satisfied
// by *Client; the arena orchestrator depends on this interface.
type Generator interface {
	Generate(ctx context.Context, prompt string, onDelta func(string)) error
}

// GenerationError is the terminal error frame of a generation stream
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %s", e.Message)
}

// Client communicates with the AI backend over streaming HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Client targeting the given backend base URL.
// The HTTP client carries no timeout; deadlines belong to the caller's
// context.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		logger:     logger.With().Str("component", "llm").Logger(),
	}
}

// generateRequest is the JSON body for POST /v1/generate
type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate sends the prompt and streams the response. onDelta receives
// each incremental text fragment. The call returns nil once the stream
// signals done or closes cleanly, a *GenerationError for an explicit
// error frame, and ctx.Err() when cancelled; after cancellation no
// further onDelta calls are made. Failures are not retried.
func (c *Client) Generate(ctx context.Context, prompt string, onDelta func(string)) error {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	dec := events.NewDecoder(resp.Body)
	for {
		env, err := dec.Next()
		if err == io.EOF {
			// The transport closing counts as completion.
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading generation stream: %w", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch env.Type {
		case events.TypeDelta:
			var p events.DeltaPayload
			if err := env.Decode(&p); err != nil {
				c.logger.Warn().Err(err).Msg("bad delta payload")
				continue
			}
			onDelta(p.Text)
		case events.TypeDone:
			// Authoritative completion: trailing frames are not read.
			return nil
		case events.TypeError:
			var p events.ErrorPayload
			if err := env.Decode(&p); err != nil {
				return &GenerationError{Message: "unknown error"}
			}
			return &GenerationError{Message: p.Message}
		}
	}
}
