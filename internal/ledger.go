package internal

import (
	"fmt"
	"sync"
)

// ToolCallLedger remembers the last observed state of every tool call in a conversation
type ToolCallLedger struct {
	mu     sync.RWMutex
	states map[string]ToolState
}

// NewToolCallLedger creates an empty ledger
func NewToolCallLedger() *ToolCallLedger {
	return &ToolCallLedger{
		states: make(map[string]ToolState),
	}
}

// Get returns the recorded state of a call
func (l *ToolCallLedger) Get(callID string) (ToolState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	state, ok := l.states[callID]
	return state, ok
}

// Len returns the number of tracked calls
func (l *ToolCallLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.states)
}

// Terminal returns the ids of calls that reached a terminal state
func (l *ToolCallLedger) Terminal() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.states))
	for id, state := range l.states {
		if state.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Check verifies that messages never moves a call backwards or out of a terminal state
func (l *ToolCallLedger) Check(messages []Message) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range messages {
		for _, tc := range m.ToolCalls() {
			prev, ok := l.states[tc.CallID]
			if !ok {
				continue
			}
			if prev.IsTerminal() && tc.State != prev {
				return fmt.Errorf("tool call %s is %s and cannot become %s", tc.CallID, prev, tc.State)
			}
			if tc.State.rank() < prev.rank() {
				return fmt.Errorf("tool call %s cannot go back from %s to %s", tc.CallID, prev, tc.State)
			}
		}
	}
	return nil
}

// Record stores the states seen in messages
func (l *ToolCallLedger) Record(messages []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range messages {
		for _, tc := range m.ToolCalls() {
			if tc.CallID != "" {
				l.states[tc.CallID] = tc.State
			}
		}
	}
}

// Reset forgets every call
func (l *ToolCallLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = make(map[string]ToolState)
}
