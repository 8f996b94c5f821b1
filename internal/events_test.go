package internal

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind LineKind
		typ  EventType
		err  bool
	}{
		{"jsonl", `{"type":"text-delta","id":"t1","delta":"hi"}`, LineEvent, EventTextDelta, false},
		{"sse data", `data: {"type":"finish"}`, LineEvent, EventFinish, false},
		{"sse done", `data: [DONE]`, LineDone, "", false},
		{"blank", "   ", LineSkip, "", false},
		{"comment", ": keep-alive", LineSkip, "", false},
		{"event field", "event: message", LineSkip, "", false},
		{"id field", "id: 7", LineSkip, "", false},
		{"alias", `{"type":"source-citation","url":"https://example.com"}`, LineEvent, EventSourceURL, false},
		{"malformed", `{"type":`, LineEvent, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, kind, err := DecodeLine([]byte(tt.line))
			assert.Equal(t, tt.kind, kind)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, ev.Type)
		})
	}
}

func TestEventDecoder_StopsAtDone(t *testing.T) {
	input := strings.Join([]string{
		`data: {"type":"start","messageId":"m1"}`,
		``,
		`data: {"type":"text-delta","id":"t","delta":"a"}`,
		``,
		`data: [DONE]`,
		`data: {"type":"text-delta","id":"t","delta":"ignored"}`,
	}, "\n")

	dec := NewEventDecoder(strings.NewReader(input), "sse")
	var got []EventType
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventStart, EventTextDelta}, got)

	_, err := dec.Next()
	assert.Equal(t, io.EOF, err)
}

func TestEventDecoder_ReportsMalformedLine(t *testing.T) {
	dec := NewEventDecoder(strings.NewReader("{\"type\":\"start\"}\nnot json\n"), "fixture.jsonl")

	_, err := dec.Next()
	require.NoError(t, err)

	_, err = dec.Next()
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "fixture.jsonl", pe.Source)
	assert.Equal(t, "line 2", pe.Key)
}

func TestReadAllEvents_SkipsMalformed(t *testing.T) {
	captureLogs(t)
	input := "{\"type\":\"start\"}\n{broken\n{\"type\":\"finish\"}\n"

	events, err := ReadAllEvents(strings.NewReader(input), "test")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventFinish, events[1].Type)
}

func TestEncodeEvents_RoundTrip(t *testing.T) {
	events := CreateTestStrategyEvents("make a crossover", "c1", testStrategyA)

	var buf bytes.Buffer
	require.NoError(t, EncodeEvents(&buf, events))
	assert.Equal(t, len(events), strings.Count(buf.String(), "\n"))

	decoded, err := ReadAllEvents(&buf, "roundtrip")
	require.NoError(t, err)
	require.Len(t, decoded, len(events))

	// both sides fold to the same messages
	a := NewStreamAssembler(nil).ApplyAll(events)
	b := NewStreamAssembler(nil).ApplyAll(decoded)
	require.Len(t, b, len(a))
	assert.Equal(t, a[1].Text(), b[1].Text())
	assert.JSONEq(t, string(a[1].ToolCalls()[0].Output), string(b[1].ToolCalls()[0].Output))
}

func TestIsTerminalEvent(t *testing.T) {
	for _, typ := range []EventType{EventFinish, EventError, EventAbort} {
		assert.True(t, IsTerminalEvent(typ), typ)
	}
	for _, typ := range []EventType{EventStart, EventTextDelta, EventFinishStep, EventUserMessage} {
		assert.False(t, IsTerminalEvent(typ), typ)
	}
}
