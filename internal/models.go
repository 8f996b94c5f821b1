package internal

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType is the tag of a message part
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartToolCall  PartType = "tool-call"
	PartSource    PartType = "source-citation"
	PartFile      PartType = "file-attachment"
)

// ToolState is the lifecycle state of a single tool invocation
type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolOutputError     ToolState = "output-error"
)

// IsTerminal reports whether the state can no longer change
func (s ToolState) IsTerminal() bool {
	return s == ToolOutputAvailable || s == ToolOutputError
}

// IsPending reports whether the tool call is still waiting on a result
func (s ToolState) IsPending() bool {
	return s == ToolInputStreaming || s == ToolInputAvailable
}

// rank orders states along the state machine; terminal states share a rank
func (s ToolState) rank() int {
	switch s {
	case ToolInputStreaming:
		return 0
	case ToolInputAvailable:
		return 1
	case ToolOutputAvailable, ToolOutputError:
		return 2
	default:
		return -1
	}
}

// Message is one turn in a conversation
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Parts     []Part    `json:"parts" yaml:"parts"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// Part is a tagged union; exactly one of the payload fields matches Type
type Part struct {
	Type    PartType        `json:"type" yaml:"type"`
	Content string          `json:"content,omitempty" yaml:"content,omitempty"`
	Tool    *ToolCall       `json:"tool,omitempty" yaml:"tool,omitempty"`
	Source  *SourceCitation `json:"source,omitempty" yaml:"source,omitempty"`
	File    *FileAttachment `json:"file,omitempty" yaml:"file,omitempty"`

	// streamID links text/reasoning parts to the delta stream that feeds them
	streamID string
}

// ToolCall is a structured invocation of a named backend capability
type ToolCall struct {
	ToolName  string          `json:"toolName" yaml:"tool_name"`
	CallID    string          `json:"callId" yaml:"call_id"`
	State     ToolState       `json:"state" yaml:"state"`
	Input     json.RawMessage `json:"input,omitempty" yaml:"-"`
	Output    json.RawMessage `json:"output,omitempty" yaml:"-"`
	ErrorText string          `json:"errorText,omitempty" yaml:"error_text,omitempty"`

	// inputText accumulates tool-input-delta chunks until the input is complete
	inputText string
}

// MarshalYAML writes the raw JSON payloads as structured YAML
func (tc ToolCall) MarshalYAML() (interface{}, error) {
	out := struct {
		ToolName  string      `yaml:"tool_name"`
		CallID    string      `yaml:"call_id"`
		State     ToolState   `yaml:"state"`
		Input     interface{} `yaml:"input,omitempty"`
		Output    interface{} `yaml:"output,omitempty"`
		ErrorText string      `yaml:"error_text,omitempty"`
	}{
		ToolName:  tc.ToolName,
		CallID:    tc.CallID,
		State:     tc.State,
		Input:     decodeRaw(tc.Input),
		Output:    decodeRaw(tc.Output),
		ErrorText: tc.ErrorText,
	}
	return out, nil
}

// decodeRaw returns nil for empty input and the raw text when it is not valid JSON
func decodeRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// SourceCitation is a reference rendered as a chip
type SourceCitation struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// FileAttachment is a file carried inline or by reference
type FileAttachment struct {
	MediaType string `json:"mediaType" yaml:"media_type"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Base64    string `json:"base64,omitempty" yaml:"-"`
	Filename  string `json:"filename,omitempty" yaml:"filename,omitempty"`
}

// TextPart builds a text part
func TextPart(content string) Part {
	return Part{Type: PartText, Content: content}
}

// ReasoningPart builds a reasoning part
func ReasoningPart(content string) Part {
	return Part{Type: PartReasoning, Content: content}
}

// ToolPart builds a tool-call part
func ToolPart(tc ToolCall) Part {
	return Part{Type: PartToolCall, Tool: &tc}
}

// SourcePart builds a source-citation part
func SourcePart(url, title string) Part {
	return Part{Type: PartSource, Source: &SourceCitation{URL: url, Title: title}}
}

// FilePart builds a file-attachment part
func FilePart(f FileAttachment) Part {
	return Part{Type: PartFile, File: &f}
}

// clone returns a copy whose pointer payloads are not shared with p
func (p Part) clone() Part {
	out := p
	if p.Tool != nil {
		tc := *p.Tool
		out.Tool = &tc
	}
	if p.Source != nil {
		sc := *p.Source
		out.Source = &sc
	}
	if p.File != nil {
		fa := *p.File
		out.File = &fa
	}
	return out
}

// clone returns a message with its own parts slice
func (m Message) clone() Message {
	out := m
	out.Parts = make([]Part, len(m.Parts), len(m.Parts)+1)
	copy(out.Parts, m.Parts)
	return out
}

// Text concatenates all text parts in order
func (m Message) Text() string {
	var n int
	for _, p := range m.Parts {
		if p.Type == PartText {
			n += len(p.Content)
		}
	}
	buf := make([]byte, 0, n)
	for _, p := range m.Parts {
		if p.Type == PartText {
			buf = append(buf, p.Content...)
		}
	}
	return string(buf)
}

// ToolCalls returns the tool-call parts of the message in order
func (m Message) ToolCalls() []*ToolCall {
	var calls []*ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall && p.Tool != nil {
			calls = append(calls, p.Tool)
		}
	}
	return calls
}

// LastAssistantIndex returns the index of the most recent assistant message, or -1
func LastAssistantIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}
