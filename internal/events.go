package internal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventType is the discriminator of a UI-message stream event
type EventType string

const (
	EventStart               EventType = "start"
	EventTextStart           EventType = "text-start"
	EventTextDelta           EventType = "text-delta"
	EventTextEnd             EventType = "text-end"
	EventReasoningStart      EventType = "reasoning-start"
	EventReasoningDelta      EventType = "reasoning-delta"
	EventReasoningEnd        EventType = "reasoning-end"
	EventToolInputStart      EventType = "tool-input-start"
	EventToolInputDelta      EventType = "tool-input-delta"
	EventToolInputAvailable  EventType = "tool-input-available"
	EventToolOutputAvailable EventType = "tool-output-available"
	EventToolOutputError     EventType = "tool-output-error"
	EventSourceURL           EventType = "source-url"
	EventFile                EventType = "file"
	EventStartStep           EventType = "start-step"
	EventFinishStep          EventType = "finish-step"
	EventFinish              EventType = "finish"
	EventError               EventType = "error"
	EventAbort               EventType = "abort"

	// EventUserMessage is recorded locally for user turns; the transport never sends it
	EventUserMessage EventType = "user-message"
)

// eventAliases maps alternate names onto canonical types
var eventAliases = map[EventType]EventType{
	"source-citation": EventSourceURL,
	"file-part":       EventFile,
	"step-boundary":   EventStartStep,
}

// StreamEvent is one event of the UI-message stream
type StreamEvent struct {
	Type       EventType       `json:"type"`
	ID         string          `json:"id,omitempty"`
	MessageID  string          `json:"messageId,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	InputDelta string          `json:"inputTextDelta,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	SourceID   string          `json:"sourceId,omitempty"`
	URL        string          `json:"url,omitempty"`
	Title      string          `json:"title,omitempty"`
	MediaType  string          `json:"mediaType,omitempty"`
	Base64     string          `json:"base64,omitempty"`
	Filename   string          `json:"filename,omitempty"`
}

// Canonical returns the event with aliased types resolved
func (e StreamEvent) Canonical() StreamEvent {
	if t, ok := eventAliases[e.Type]; ok {
		e.Type = t
	}
	return e
}

// ParseStreamEvent decodes a single JSON event
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, fmt.Errorf("failed to parse event JSON: %w", err)
	}
	if ev.Type == "" {
		return StreamEvent{}, fmt.Errorf("event has no type")
	}
	return ev.Canonical(), nil
}

// EventDecoder reads events from JSONL or SSE framed input.
// SSE framing is detected per line by the "data:" prefix, so mixed input is tolerated.
type EventDecoder struct {
	scanner *bufio.Scanner
	source  string
	line    int
	done    bool
}

// NewEventDecoder creates a decoder; source names the input in parse errors
func NewEventDecoder(r io.Reader, source string) *EventDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &EventDecoder{scanner: sc, source: source}
}

// Next returns the next event, io.EOF at the end of input or after an SSE [DONE] marker.
// Malformed lines are returned as *ParseError; callers may log and continue.
func (d *EventDecoder) Next() (StreamEvent, error) {
	if d.done {
		return StreamEvent{}, io.EOF
	}
	for d.scanner.Scan() {
		d.line++
		ev, kind, err := DecodeLine(d.scanner.Bytes())
		switch kind {
		case LineSkip:
			continue
		case LineDone:
			d.done = true
			return StreamEvent{}, io.EOF
		}
		if err != nil {
			return StreamEvent{}, &ParseError{Source: d.source, Key: fmt.Sprintf("line %d", d.line), Err: err}
		}
		return ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return StreamEvent{}, err
	}
	return StreamEvent{}, io.EOF
}

// LineKind classifies one line of framed input
type LineKind int

const (
	LineEvent LineKind = iota
	LineSkip
	LineDone
)

// DecodeLine decodes a single JSONL or SSE line. Blank lines, SSE comments
// and non-data SSE fields are LineSkip; "data: [DONE]" is LineDone.
func DecodeLine(raw []byte) (StreamEvent, LineKind, error) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || line[0] == ':' {
		return StreamEvent{}, LineSkip, nil
	}
	if bytes.HasPrefix(line, []byte("event:")) || bytes.HasPrefix(line, []byte("id:")) || bytes.HasPrefix(line, []byte("retry:")) {
		return StreamEvent{}, LineSkip, nil
	}
	if bytes.HasPrefix(line, []byte("data:")) {
		line = bytes.TrimSpace(line[len("data:"):])
		if string(line) == "[DONE]" {
			return StreamEvent{}, LineDone, nil
		}
	}
	ev, err := ParseStreamEvent(line)
	return ev, LineEvent, err
}

// ReadAllEvents decodes every event, skipping malformed lines
func ReadAllEvents(r io.Reader, source string) ([]StreamEvent, error) {
	dec := NewEventDecoder(r, source)
	var events []StreamEvent
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			if _, ok := err.(*ParseError); ok {
				LogWarn("Skipping malformed event: %v", err)
				continue
			}
			return events, err
		}
		events = append(events, ev)
	}
}

// EncodeEvents writes events as JSONL
func EncodeEvents(w io.Writer, events []StreamEvent) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

// IsTerminalEvent reports whether the event ends the stream
func IsTerminalEvent(t EventType) bool {
	switch t {
	case EventFinish, EventError, EventAbort:
		return true
	}
	return false
}

// describeEvent is a short human label used in debug logs
func describeEvent(ev StreamEvent) string {
	var b strings.Builder
	b.WriteString(string(ev.Type))
	if ev.ToolCallID != "" {
		fmt.Fprintf(&b, " call=%s", ev.ToolCallID)
	}
	if ev.ToolName != "" {
		fmt.Fprintf(&b, " tool=%s", ev.ToolName)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, " id=%s", ev.ID)
	}
	return b.String()
}
