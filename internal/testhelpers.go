package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// CreateTestMessages returns a user prompt and an assistant reply
func CreateTestMessages(prompt, reply string) []Message {
	now := time.Now()
	return []Message{
		{ID: "u1", Role: RoleUser, Parts: []Part{TextPart(prompt)}, CreatedAt: now},
		{ID: "a1", Role: RoleAssistant, Parts: []Part{TextPart(reply)}, CreatedAt: now},
	}
}

// CreateTestTranscript creates a transcript with one exchange and no artifacts
func CreateTestTranscript(id string) *Transcript {
	msgs := CreateTestMessages("Hello, can you help with a strategy?", "Of course. What market are you trading?")
	now := time.Now().UTC().Format(time.RFC3339)
	return &Transcript{
		ID:       id,
		Title:    "Test Conversation",
		Messages: msgs,
		Status:   StreamFinished,
		Metadata: Metadata{
			CreatedAt:    now,
			UpdatedAt:    now,
			MessageCount: len(msgs),
		},
	}
}

// CreateTestToolCall creates a completed tool call whose output is the given JSON object
func CreateTestToolCall(callID, toolName string, output map[string]any) ToolCall {
	data, _ := json.Marshal(output)
	return ToolCall{
		ToolName: toolName,
		CallID:   callID,
		State:    ToolOutputAvailable,
		Input:    json.RawMessage(`{}`),
		Output:   data,
	}
}

// CreateTestAssistant creates an assistant message with the given parts
func CreateTestAssistant(id string, parts ...Part) Message {
	return Message{ID: id, Role: RoleAssistant, Parts: parts, CreatedAt: time.Now()}
}

// CreateTestStrategyEvents returns one recorded turn that generates code via generate_afl_code
func CreateTestStrategyEvents(prompt, callID, code string) []StreamEvent {
	output, _ := json.Marshal(map[string]string{"code": code})
	return []StreamEvent{
		{Type: EventUserMessage, Text: prompt},
		{Type: EventStart, MessageID: "msg-" + callID},
		{Type: EventTextStart, ID: "t-" + callID},
		{Type: EventTextDelta, ID: "t-" + callID, Delta: "Building it now."},
		{Type: EventTextEnd, ID: "t-" + callID},
		{Type: EventToolInputStart, ToolCallID: callID, ToolName: "generate_afl_code"},
		{Type: EventToolInputAvailable, ToolCallID: callID, ToolName: "generate_afl_code", Input: json.RawMessage(`{"description":"crossover"}`)},
		{Type: EventToolOutputAvailable, ToolCallID: callID, Output: output},
		{Type: EventFinish},
	}
}

// CreateTestFenceEvents returns one recorded turn answering with a fenced afl block
func CreateTestFenceEvents(prompt, messageID, code string) []StreamEvent {
	return []StreamEvent{
		{Type: EventUserMessage, Text: prompt},
		{Type: EventStart, MessageID: messageID},
		{Type: EventTextStart, ID: "t-" + messageID},
		{Type: EventTextDelta, ID: "t-" + messageID, Delta: fmt.Sprintf("Here it is:\n```afl\n%s\n```", code)},
		{Type: EventTextEnd, ID: "t-" + messageID},
		{Type: EventFinish},
	}
}

const (
	testStrategyA = "Buy = Cross(MA(C, 10), MA(C, 30));\nSell = Cross(MA(C, 30), MA(C, 10));"
	testStrategyB = "Buy = RSI(14) < 30;\nSell = RSI(14) > 70;"
	testStrategyC = "Buy = C > Ref(HHV(H, 20), -1);\nSell = C < Ref(LLV(L, 10), -1);\nShort = 0;\nCover = 0;"
)
