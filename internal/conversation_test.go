package internal

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withReply(history []Message, id string, parts ...Part) []Message {
	next := make([]Message, len(history), len(history)+1)
	copy(next, history)
	return append(next, CreateTestAssistant(id, parts...))
}

func fenced(code string) Part {
	return TextPart(fmt.Sprintf("Here you go:\n```afl\n%s\n```", code))
}

func TestConversation_SubmitApplyFinish(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("build a crossover")

	assert.Equal(t, "build a crossover", req.Text)
	require.Len(t, req.History, 1)
	assert.Equal(t, StatusSubmitted, conv.Snapshot().Status)

	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", fenced(testStrategyA))))
	snap := conv.Snapshot()
	assert.Equal(t, StatusStreaming, snap.Status)
	assert.Equal(t, testStrategyA, snap.State.LatestCode())
	assert.True(t, snap.Streaming(1))
	assert.False(t, snap.Streaming(0))

	require.NoError(t, conv.Finish(req.Token))
	snap = conv.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.False(t, snap.Streaming(1))
	_, inFlight := conv.Current()
	assert.False(t, inFlight)
}

func TestConversation_StaleAfterSwitch(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")

	conv.Switch("c2", CreateTestMessages("other", "thread"))

	err := conv.Apply(req.Token, withReply(req.History, "a1", TextPart("late")))
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.ErrorIs(t, conv.Finish(req.Token), ErrStaleGeneration)

	snap := conv.Snapshot()
	assert.Equal(t, "c2", snap.ID)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, StatusReady, snap.Status)
}

func TestConversation_StaleAfterNewSubmit(t *testing.T) {
	conv := NewConversation("c1", nil)
	first := conv.Submit("one")
	second := conv.Submit("two")

	assert.NotEqual(t, first.Token, second.Token)
	assert.ErrorIs(t, conv.Apply(first.Token, withReply(first.History, "a1", TextPart("x"))), ErrStaleGeneration)
	assert.NoError(t, conv.Apply(second.Token, withReply(second.History, "a2", TextPart("y"))))
}

func TestConversation_StopFreezes(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")
	partial := withReply(req.History, "a1", TextPart("half"))
	require.NoError(t, conv.Apply(req.Token, partial))

	require.NoError(t, conv.Stop(req.Token))
	assert.ErrorIs(t, conv.Apply(req.Token, withReply(req.History, "a1", TextPart("half and more"))), ErrStaleGeneration)

	snap := conv.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "half", snap.Messages[1].Text())
}

func TestConversation_RejectsRollback(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", TextPart("x"))))

	err := conv.Apply(req.Token, req.History)
	assert.ErrorIs(t, err, ErrRollback)

	renamed := withReply(req.History, "a2", TextPart("x"))
	assert.ErrorIs(t, conv.Apply(req.Token, renamed), ErrRollback)

	assert.Len(t, conv.Messages(), 2)
}

func TestConversation_RejectsPartRollback(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", ReasoningPart("thinking"), TextPart("Here is"))))

	tests := []struct {
		name  string
		parts []Part
	}{
		{"part dropped", []Part{ReasoningPart("thinking")}},
		{"text shrinks", []Part{ReasoningPart("thinking"), TextPart("Here")}},
		{"text rewritten", []Part{ReasoningPart("thinking"), TextPart("There is more")}},
		{"part retyped", []Part{TextPart("thinking"), TextPart("Here is")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, conv.Apply(req.Token, withReply(req.History, "a1", tt.parts...)), ErrRollback)
		})
	}

	grown := withReply(req.History, "a1", ReasoningPart("thinking hard"), TextPart("Here is the plan"), TextPart("more"))
	require.NoError(t, conv.Apply(req.Token, grown))
	assert.Equal(t, "Here is the planmore", conv.Snapshot().State.FullText)
}

func TestConversation_RejectsToolRegression(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("backtest it")

	done := ToolPart(ToolCall{ToolName: "run_backtest", CallID: "c1", State: ToolOutputAvailable})
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", done)))

	back := ToolPart(ToolCall{ToolName: "run_backtest", CallID: "c1", State: ToolInputAvailable})
	assert.ErrorIs(t, conv.Apply(req.Token, withReply(req.History, "a1", back)), ErrRollback)
}

func TestConversation_FailAndRetry(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", TextPart("partial"))))

	require.NoError(t, conv.Fail(req.Token, &TransportError{Message: "connection reset", Retryable: true}))
	snap := conv.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	require.NotNil(t, snap.Banner)
	assert.Equal(t, ErrorBanner{Message: "connection reset", Retryable: true}, *snap.Banner)
	assert.Len(t, snap.Messages, 2)

	retry, err := conv.Retry()
	require.NoError(t, err)
	assert.Equal(t, "hello", retry.Text)
	assert.NotEqual(t, req.Token, retry.Token)
	assert.Equal(t, req.History, retry.History)

	snap = conv.Snapshot()
	assert.Nil(t, snap.Banner)
	assert.Equal(t, StatusSubmitted, snap.Status)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Empty(t, snap.State.FullText)

	// the retried stream starts its reply fresh
	require.NoError(t, conv.Apply(retry.Token, withReply(retry.History, "a2", TextPart("complete"))))
	require.NoError(t, conv.Finish(retry.Token))
	snap = conv.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "complete", snap.Messages[1].Text())
}

func TestConversation_RetryDropsFailedToolCalls(t *testing.T) {
	conv := NewConversation("c1", CreateTestMessages("hi", "hello"))
	req := conv.Submit("backtest it")
	require.Len(t, req.History, 3)

	done := ToolPart(ToolCall{ToolName: "run_backtest", CallID: "call-9", State: ToolOutputAvailable})
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a2", done, fenced(testStrategyA))))
	assert.Equal(t, testStrategyA, conv.Snapshot().State.LatestCode())
	require.NoError(t, conv.Fail(req.Token, nil))

	retry, err := conv.Retry()
	require.NoError(t, err)
	assert.Equal(t, req.History, retry.History)
	assert.Empty(t, conv.Snapshot().State.LatestCode())

	// the same call id may run again from the start
	again := ToolPart(ToolCall{ToolName: "run_backtest", CallID: "call-9", State: ToolInputStreaming})
	assert.NoError(t, conv.Apply(retry.Token, withReply(retry.History, "a3", again)))
}

func TestConversation_FailPlainError(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("hello")

	require.NoError(t, conv.Fail(req.Token, errors.New("boom")))
	banner := conv.Snapshot().Banner
	require.NotNil(t, banner)
	assert.Equal(t, "boom", banner.Message)
	assert.True(t, banner.Retryable)

	conv.DismissError()
	snap := conv.Snapshot()
	assert.Nil(t, snap.Banner)
	assert.Equal(t, StatusReady, snap.Status)
}

func TestConversation_FailEmptyMessage(t *testing.T) {
	for name, err := range map[string]error{
		"nil":             nil,
		"empty transport": &TransportError{Retryable: true},
		"empty plain":     errors.New(""),
	} {
		t.Run(name, func(t *testing.T) {
			conv := NewConversation("c1", nil)
			req := conv.Submit("hello")
			require.NoError(t, conv.Fail(req.Token, err))
			banner := conv.Snapshot().Banner
			require.NotNil(t, banner)
			assert.Equal(t, "request failed", banner.Message)
		})
	}
}

func TestConversation_RetryWithoutUserMessage(t *testing.T) {
	conv := NewConversation("c1", nil)
	_, err := conv.Retry()
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestConversation_BeginKeepsHistory(t *testing.T) {
	conv := NewConversation("c1", CreateTestMessages("hi", "hello"))
	req := conv.Begin()

	assert.Empty(t, req.Text)
	assert.Len(t, req.History, 2)
	assert.Len(t, conv.Messages(), 2)

	tok, inFlight := conv.Current()
	assert.True(t, inFlight)
	assert.Equal(t, req.Token, tok)
}

func TestConversation_MultiTab(t *testing.T) {
	conv := NewConversation("c1", nil, WithMultiTab(true))

	req := conv.Submit("first")
	msgs := withReply(req.History, "a1", fenced(testStrategyA))
	require.NoError(t, conv.Apply(req.Token, msgs))
	require.NoError(t, conv.Apply(req.Token, msgs))
	require.NoError(t, conv.Finish(req.Token))

	req = conv.Submit("second")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a2", fenced(testStrategyB))))
	require.NoError(t, conv.Finish(req.Token))

	arts := conv.Snapshot().Artifacts
	require.Equal(t, 2, arts.Len())
	assert.Equal(t, testStrategyB, arts.ActiveCode())

	require.NoError(t, conv.SelectArtifact(CompositeID))
	assert.Contains(t, conv.Snapshot().Artifacts.ActiveCode(), "VoteThreshold = 2;")
	assert.Error(t, conv.SelectArtifact("nope"))

	first := arts.Entries()[0].ID
	assert.True(t, conv.RemoveArtifact(first))
	assert.False(t, conv.RemoveArtifact(first))
	assert.Equal(t, 1, conv.Snapshot().Artifacts.Len())
}

func TestConversation_SingleTabKeepsCollectionEmpty(t *testing.T) {
	conv := NewConversation("c1", nil)
	req := conv.Submit("first")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", fenced(testStrategyA))))

	snap := conv.Snapshot()
	assert.Equal(t, 0, snap.Artifacts.Len())
	assert.Equal(t, testStrategyA, snap.State.LatestCode())
}

func TestConversation_SwitchResetsArtifacts(t *testing.T) {
	conv := NewConversation("c1", nil, WithMultiTab(true))
	req := conv.Submit("first")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", fenced(testStrategyA))))

	conv.Switch("c2", nil)
	snap := conv.Snapshot()
	assert.Equal(t, 0, snap.Artifacts.Len())
	assert.Nil(t, snap.State.Artifact)
}

func TestConversation_UpdateHook(t *testing.T) {
	var mu sync.Mutex
	var statuses []TransportStatus

	var conv *Conversation
	conv = NewConversation("c1", nil, WithUpdateHook(func(s ConversationSnapshot) {
		// reading back from the hook must not deadlock
		_ = conv.Snapshot()
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	}))

	req := conv.Submit("hello")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", TextPart("x"))))
	require.NoError(t, conv.Finish(req.Token))
	_ = conv.Apply(req.Token, withReply(req.History, "a1", TextPart("stale")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []TransportStatus{StatusSubmitted, StatusStreaming, StatusReady}, statuses)
}

func TestConversation_WithReducer(t *testing.T) {
	r := NewReducer(ReducerConfig{Language: "python"})
	conv := NewConversation("c1", nil, WithReducer(r))
	req := conv.Submit("script")

	reply := TextPart("```python\nprint(1)\n```")
	require.NoError(t, conv.Apply(req.Token, withReply(req.History, "a1", reply)))
	assert.Equal(t, "print(1)", conv.Snapshot().State.LatestCode())
}
