package internal

import (
	"errors"
	"fmt"
)

// ErrConversationNotFound is returned when a conversation id is unknown to the store
var ErrConversationNotFound = errors.New("conversation not found")

// ErrStaleGeneration is returned when an update carries a token from a superseded request
var ErrStaleGeneration = errors.New("stale generation")

// ErrRollback is returned when an update would shrink or rewrite the message list
var ErrRollback = errors.New("message list rollback")

// ErrNothingToRetry is returned by Retry when no user message was sent yet
var ErrNothingToRetry = errors.New("no user message to retry")

// StorageError represents errors accessing the event store
type StorageError struct {
	Path string
	Op   string // "open", "migrate", "query", "exec"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors decoding stream events
type ParseError struct {
	Source string // "jsonl", "sse", "store"
	Key    string // line number, event seq or file path
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReplayError represents errors while replaying a recorded stream
type ReplayError struct {
	ConversationID string
	Err            error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay error [%s]: %v", e.ConversationID, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// TransportError is a stream-level failure surfaced once as a banner
type TransportError struct {
	Message   string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
