package events

import (
	"io"
	"strings"
	"testing"
)

// oneByteReader delivers the underlying stream a single byte per Read
// call, forcing records to span many physical chunks.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func drain(t *testing.T, d *Decoder) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		env, err := d.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, env)
	}
}

func TestDecoder_SkipsMalformedAndUnrecognized(t *testing.T) {
	input := strings.Join([]string{
		`data: {"type":"heartbeat"}`,
		`: comment line`,
		`data: {not json`,
		`retry: 3000`,
		`data: {"type":"usage_update"}`,
		``,
	}, "\n")

	got := drain(t, NewDecoder(strings.NewReader(input)))

	if len(got) != 2 {
		t.Fatalf("decoded %d envelopes, want 2", len(got))
	}
	if got[0].Type != TypeHeartbeat {
		t.Errorf("first type = %q, want heartbeat", got[0].Type)
	}
	if got[1].Type != TypeUsageUpdate {
		t.Errorf("second type = %q, want usage_update", got[1].Type)
	}
}

func TestDecoder_PartialTrailingLine(t *testing.T) {
	// No trailing newline: the remaining buffer is decoded at close.
	input := "data: {\"type\":\"heartbeat\"}\ndata: {\"type\":\"bots_state\"}"

	got := drain(t, NewDecoder(strings.NewReader(input)))

	if len(got) != 2 {
		t.Fatalf("decoded %d envelopes, want 2", len(got))
	}
	if got[1].Type != TypeBotsState {
		t.Errorf("trailing type = %q, want bots_state", got[1].Type)
	}
}

func TestDecoder_RecordsSpanningChunks(t *testing.T) {
	input := "data: {\"type\":\"log_line\",\"payload\":{\"run_id\":\"r1\",\"message\":\"hello world\"}}\n"

	got := drain(t, NewDecoder(oneByteReader{strings.NewReader(input)}))

	if len(got) != 1 {
		t.Fatalf("decoded %d envelopes, want 1", len(got))
	}
	var p LogLinePayload
	if err := got[0].Decode(&p); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Message != "hello world" {
		t.Errorf("message = %q, want %q", p.Message, "hello world")
	}
}

func TestDecoder_TransportID(t *testing.T) {
	input := strings.Join([]string{
		`id: 41`,
		`data: {"type":"heartbeat"}`,
		`id: 42`,
		`data: {"type":"bot_state","id":"99"}`,
		`data: {"type":"heartbeat"}`,
		``,
	}, "\n")

	got := drain(t, NewDecoder(strings.NewReader(input)))

	if len(got) != 3 {
		t.Fatalf("decoded %d envelopes, want 3", len(got))
	}
	if got[0].ID != "41" {
		t.Errorf("envelope 0 id = %q, want 41 (transport id)", got[0].ID)
	}
	// Payload-embedded id wins over the transport id.
	if got[1].ID != "99" {
		t.Errorf("envelope 1 id = %q, want 99 (payload id)", got[1].ID)
	}
	// Transport id is consumed, not reused.
	if got[2].ID != "" {
		t.Errorf("envelope 2 id = %q, want empty", got[2].ID)
	}
}

func TestEnvelope_DecodeEmptyPayload(t *testing.T) {
	var p DeltaPayload
	if err := (Envelope{Type: TypeDelta}).Decode(&p); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Text != "" {
		t.Errorf("text = %q, want empty", p.Text)
	}
}
