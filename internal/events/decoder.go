package events

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// dataMarker prefixes lines that carry an envelope; idMarker prefixes
// lines that carry a transport-level replay id for the next envelope.
const (
	dataMarker = "data:"
	idMarker   = "id:"
)

// Decoder reads newline-delimited frames from a stream and yields
// decoded envelopes. Lines without a recognized marker and lines whose
// payload fails to parse are skipped; a partial trailing line at
// stream end is decoded best-effort.
type Decoder struct {
	r           *bufio.Reader
	transportID string
	eof         bool
}

// NewDecoder creates a Decoder reading frames from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next well-formed envelope, or io.EOF when the
// stream is exhausted. Any other error is the underlying read error.
func (d *Decoder) Next() (Envelope, error) {
	for {
		if d.eof {
			return Envelope{}, io.EOF
		}

		line, err := d.r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				return Envelope{}, err
			}
			// Decode whatever is buffered at connection close.
			d.eof = true
			if env, ok := d.decodeLine(line); ok {
				return env, nil
			}
			return Envelope{}, io.EOF
		}

		if env, ok := d.decodeLine(line); ok {
			return env, nil
		}
	}
}

// decodeLine parses one physical line. It returns ok=false for blank
// lines, unrecognized markers, id bookkeeping lines, and malformed
// payloads.
func (d *Decoder) decodeLine(line string) (Envelope, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Envelope{}, false
	}

	if rest, ok := strings.CutPrefix(line, idMarker); ok {
		d.transportID = strings.TrimSpace(rest)
		return Envelope{}, false
	}

	rest, ok := strings.CutPrefix(line, dataMarker)
	if !ok {
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &env); err != nil {
		// Malformed frame: skip it, never stall the stream.
		return Envelope{}, false
	}

	// A payload-embedded id takes precedence over the transport id.
	if env.ID == "" {
		env.ID = d.transportID
	}
	d.transportID = ""
	return env, true
}
