package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SampleStrategy is a small AFL strategy with both buy and sell rules
const SampleStrategy = `FastMA = MA(Close, 10);
SlowMA = MA(Close, 30);
Buy = Cross(FastMA, SlowMA);
Sell = Cross(SlowMA, FastMA);`

// AltStrategy is a second, different strategy
const AltStrategy = `RSIValue = RSI(14);
Buy = RSIValue < 30;
Sell = RSIValue > 70;`

// StrategyStreamLines is one assistant turn that calls generate_afl_code and
// finishes. Each element is one JSONL line.
func StrategyStreamLines(prompt, callID, code string) []string {
	out, _ := json.Marshal(map[string]string{"code": code, "explanation": "moving average crossover"})
	input, _ := json.Marshal(map[string]string{"description": prompt})
	lines := []string{
		line(map[string]any{"type": "user-message", "text": prompt}),
		line(map[string]any{"type": "start", "messageId": "msg-" + callID}),
		line(map[string]any{"type": "text-start", "id": "t-" + callID}),
		line(map[string]any{"type": "text-delta", "id": "t-" + callID, "delta": "Generating the strategy."}),
		line(map[string]any{"type": "text-end", "id": "t-" + callID}),
		line(map[string]any{"type": "tool-input-start", "toolCallId": callID, "toolName": "generate_afl_code"}),
		line(map[string]any{"type": "tool-input-available", "toolCallId": callID, "toolName": "generate_afl_code", "input": json.RawMessage(input)}),
		line(map[string]any{"type": "tool-output-available", "toolCallId": callID, "output": json.RawMessage(out)}),
		line(map[string]any{"type": "finish"}),
	}
	return lines
}

// FenceStreamLines is one assistant turn that answers with a fenced afl block
func FenceStreamLines(prompt, messageID, code string) []string {
	text := fmt.Sprintf("Here you go:\n\n```afl\n%s\n```\n", code)
	return []string{
		line(map[string]any{"type": "user-message", "text": prompt}),
		line(map[string]any{"type": "start", "messageId": messageID}),
		line(map[string]any{"type": "text-start", "id": "t-" + messageID}),
		line(map[string]any{"type": "text-delta", "id": "t-" + messageID, "delta": text}),
		line(map[string]any{"type": "text-end", "id": "t-" + messageID}),
		line(map[string]any{"type": "finish"}),
	}
}

// AsSSE frames JSONL lines as server-sent events with a [DONE] terminator
func AsSSE(lines []string) []string {
	out := make([]string, 0, len(lines)*2+1)
	for _, l := range lines {
		out = append(out, "data: "+l, "")
	}
	return append(out, "data: [DONE]", "")
}

// WriteStreamFile writes lines to path, one per line, and returns path
func WriteStreamFile(t *testing.T, path string, lines []string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create stream directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write stream file: %v", err)
	}
	return path
}

// AppendStreamLines appends lines to an existing stream file
func AppendStreamLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open stream file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		t.Fatalf("Failed to append stream lines: %v", err)
	}
}

func line(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
