package internal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the lifecycle of the stream feeding an assembler
type StreamStatus string

const (
	StreamIdle     StreamStatus = "idle"
	StreamActive   StreamStatus = "streaming"
	StreamFinished StreamStatus = "finished"
	StreamErrored  StreamStatus = "error"
	StreamAborted  StreamStatus = "aborted"
)

// StreamAssembler materializes UI-message stream events into message arrays.
// Every Apply that changes something returns a fresh slice; slices handed out
// earlier are never written to again, so callers can keep them as snapshots.
type StreamAssembler struct {
	messages []Message
	current  int // index of the assistant message being streamed, -1 if none

	textIdx      map[string]int
	reasoningIdx map[string]int
	toolIdx      map[string]int

	status    StreamStatus
	errorText string

	now   func() time.Time
	newID func() string
}

// NewStreamAssembler starts from an existing conversation history
func NewStreamAssembler(base []Message) *StreamAssembler {
	a := &StreamAssembler{
		messages: base,
		current:  -1,
		status:   StreamIdle,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	a.resetIndices()
	return a
}

func (a *StreamAssembler) resetIndices() {
	a.textIdx = make(map[string]int)
	a.reasoningIdx = make(map[string]int)
	a.toolIdx = make(map[string]int)
}

// Messages returns the current snapshot
func (a *StreamAssembler) Messages() []Message {
	return a.messages
}

// Status returns the stream status
func (a *StreamAssembler) Status() StreamStatus {
	return a.status
}

// ErrorText returns the error carried by an "error" event, if any
func (a *StreamAssembler) ErrorText() string {
	return a.errorText
}

// Apply folds one event into the message list.
// It reports whether a new snapshot was produced.
func (a *StreamAssembler) Apply(ev StreamEvent) ([]Message, bool) {
	ev = ev.Canonical()
	LogDebug("assembler: %s", describeEvent(ev))

	switch ev.Type {
	case EventUserMessage:
		id := ev.MessageID
		if id == "" {
			id = a.newID()
		}
		a.appendMessage(Message{ID: id, Role: RoleUser, Parts: []Part{TextPart(ev.Text)}, CreatedAt: a.now()})
		a.current = -1
		a.resetIndices()
		a.status = StreamIdle
		return a.messages, true

	case EventStart:
		a.status = StreamActive
		a.errorText = ""
		if a.current >= 0 && (ev.MessageID == "" || a.messages[a.current].ID == ev.MessageID) {
			return a.messages, false
		}
		a.beginAssistant(ev.MessageID)
		return a.messages, true

	case EventTextStart:
		return a.openStreamPart(PartText, ev.ID)
	case EventTextDelta:
		return a.appendDelta(PartText, ev.ID, ev.Delta)
	case EventTextEnd:
		delete(a.textIdx, ev.ID)
		return a.messages, false

	case EventReasoningStart:
		return a.openStreamPart(PartReasoning, ev.ID)
	case EventReasoningDelta:
		return a.appendDelta(PartReasoning, ev.ID, ev.Delta)
	case EventReasoningEnd:
		delete(a.reasoningIdx, ev.ID)
		return a.messages, false

	case EventToolInputStart:
		if _, ok := a.toolIdx[ev.ToolCallID]; ok {
			return a.messages, false
		}
		a.appendToolCall(ev.ToolCallID, ev.ToolName, ToolInputStreaming)
		return a.messages, true

	case EventToolInputDelta:
		return a.updateTool(ev, true, func(tc *ToolCall) bool {
			if tc.State != ToolInputStreaming {
				return false
			}
			tc.inputText += ev.InputDelta
			if json.Valid([]byte(tc.inputText)) {
				tc.Input = json.RawMessage(tc.inputText)
			}
			return true
		})

	case EventToolInputAvailable:
		return a.updateTool(ev, true, func(tc *ToolCall) bool {
			if tc.ToolName == "" {
				tc.ToolName = ev.ToolName
			}
			tc.Input = ev.Input
			tc.State = ToolInputAvailable
			return true
		})

	case EventToolOutputAvailable:
		return a.updateTool(ev, false, func(tc *ToolCall) bool {
			tc.Output = ev.Output
			tc.State = ToolOutputAvailable
			return true
		})

	case EventToolOutputError:
		return a.updateTool(ev, false, func(tc *ToolCall) bool {
			tc.ErrorText = ev.ErrorText
			tc.State = ToolOutputError
			return true
		})

	case EventSourceURL:
		a.appendPart(SourcePart(ev.URL, ev.Title))
		return a.messages, true

	case EventFile:
		a.appendPart(FilePart(FileAttachment{
			MediaType: ev.MediaType,
			URL:       ev.URL,
			Base64:    ev.Base64,
			Filename:  ev.Filename,
		}))
		return a.messages, true

	case EventStartStep, EventFinishStep:
		// a step boundary closes open text and reasoning runs
		a.textIdx = make(map[string]int)
		a.reasoningIdx = make(map[string]int)
		return a.messages, false

	case EventFinish:
		a.status = StreamFinished
		a.current = -1
		a.resetIndices()
		return a.messages, false

	case EventError:
		a.status = StreamErrored
		a.errorText = ev.ErrorText
		return a.messages, false

	case EventAbort:
		a.status = StreamAborted
		return a.messages, false
	}

	LogDebug("assembler: ignoring unknown event type %q", ev.Type)
	return a.messages, false
}

// ApplyAll folds a batch of events and returns the final snapshot
func (a *StreamAssembler) ApplyAll(events []StreamEvent) []Message {
	for _, ev := range events {
		a.Apply(ev)
	}
	return a.messages
}

func (a *StreamAssembler) appendMessage(m Message) {
	next := make([]Message, len(a.messages), len(a.messages)+1)
	copy(next, a.messages)
	a.messages = append(next, m)
}

func (a *StreamAssembler) beginAssistant(id string) {
	if id == "" {
		id = a.newID()
	}
	a.appendMessage(Message{ID: id, Role: RoleAssistant, Parts: []Part{}, CreatedAt: a.now()})
	a.current = len(a.messages) - 1
	a.resetIndices()
}

func (a *StreamAssembler) ensureAssistant() {
	if a.current < 0 {
		a.beginAssistant("")
		if a.status == StreamIdle {
			a.status = StreamActive
		}
	}
}

// editCurrent swaps in a cloned copy of the current message for fn to modify
func (a *StreamAssembler) editCurrent(fn func(m *Message)) {
	next := make([]Message, len(a.messages))
	copy(next, a.messages)
	msg := next[a.current].clone()
	fn(&msg)
	next[a.current] = msg
	a.messages = next
}

func (a *StreamAssembler) appendPart(p Part) int {
	a.ensureAssistant()
	var idx int
	a.editCurrent(func(m *Message) {
		m.Parts = append(m.Parts, p)
		idx = len(m.Parts) - 1
	})
	return idx
}

// streamIndex is looked up after ensureAssistant, which may replace the maps
func (a *StreamAssembler) streamIndex(t PartType) map[string]int {
	if t == PartReasoning {
		return a.reasoningIdx
	}
	return a.textIdx
}

func (a *StreamAssembler) openStreamPart(t PartType, id string) ([]Message, bool) {
	a.ensureAssistant()
	if _, ok := a.streamIndex(t)[id]; ok && id != "" {
		return a.messages, false
	}
	k := a.appendPart(Part{Type: t, streamID: id})
	if id != "" {
		a.streamIndex(t)[id] = k
	}
	return a.messages, true
}

func (a *StreamAssembler) appendDelta(t PartType, id, delta string) ([]Message, bool) {
	a.ensureAssistant()
	index := a.streamIndex(t)
	k, ok := index[id]
	if !ok {
		// id-less deltas continue a trailing part of the same type
		parts := a.messages[a.current].Parts
		if id == "" && len(parts) > 0 && parts[len(parts)-1].Type == t {
			k, ok = len(parts)-1, true
		}
	}
	if !ok {
		k = a.appendPart(Part{Type: t, streamID: id})
		if id != "" {
			index[id] = k
		}
	}
	if delta == "" {
		return a.messages, !ok
	}
	a.editCurrent(func(m *Message) {
		p := m.Parts[k]
		p.Content += delta
		m.Parts[k] = p
	})
	return a.messages, true
}

func (a *StreamAssembler) appendToolCall(callID, toolName string, state ToolState) int {
	k := a.appendPart(ToolPart(ToolCall{CallID: callID, ToolName: toolName, State: state}))
	a.toolIdx[callID] = k
	return k
}

// updateTool applies fn to a cloned tool call. Terminal calls are never touched.
func (a *StreamAssembler) updateTool(ev StreamEvent, create bool, fn func(tc *ToolCall) bool) ([]Message, bool) {
	k, ok := a.toolIdx[ev.ToolCallID]
	if !ok {
		if !create {
			LogWarn("Ignoring %s for unknown tool call %q", ev.Type, ev.ToolCallID)
			return a.messages, false
		}
		k = a.appendToolCall(ev.ToolCallID, ev.ToolName, ToolInputStreaming)
	}

	current := a.messages[a.current].Parts[k].Tool
	if current.State.IsTerminal() {
		LogWarn("Ignoring %s for terminal tool call %q (%s)", ev.Type, ev.ToolCallID, current.State)
		return a.messages, !ok
	}

	tc := *current
	if !fn(&tc) {
		return a.messages, !ok
	}
	if tc.State.rank() < current.State.rank() {
		return a.messages, !ok
	}
	a.editCurrent(func(m *Message) {
		p := m.Parts[k].clone()
		p.Tool = &tc
		m.Parts[k] = p
	})
	return a.messages, true
}
