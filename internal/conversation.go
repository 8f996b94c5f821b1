package internal

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerationToken identifies one request against one conversation.
// Updates carrying any other token are dropped.
type GenerationToken struct {
	ConversationID string `json:"conversationId"`
	Seq            uint64 `json:"seq"`
}

func (t GenerationToken) String() string {
	return fmt.Sprintf("%s#%d", t.ConversationID, t.Seq)
}

// ErrorBanner is the single dismissible transport error shown for a conversation
type ErrorBanner struct {
	Message   string `json:"message" yaml:"message"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
}

// Request is what the transport needs to start streaming a reply
type Request struct {
	Token   GenerationToken
	Text    string
	History []Message
}

// ConversationSnapshot is a consistent read of a conversation
type ConversationSnapshot struct {
	ID        string
	Messages  []Message
	State     DerivedState
	Status    TransportStatus
	Banner    *ErrorBanner
	Artifacts ArtifactCollection
	MultiTab  bool
}

// Streaming reports whether the message at index i shows streaming affordances
func (s ConversationSnapshot) Streaming(i int) bool {
	if i < 0 || i >= len(s.Messages) {
		return false
	}
	return IsMessageStreaming(s.Messages[i], s.Status, i == len(s.Messages)-1)
}

// ConversationOption configures a Conversation
type ConversationOption func(*Conversation)

// WithReducer sets the reducer used to derive state
func WithReducer(r *Reducer) ConversationOption {
	return func(c *Conversation) {
		if r != nil {
			c.reducer = r
		}
	}
}

// WithMultiTab turns every new artifact into its own strategy tab
func WithMultiTab(enabled bool) ConversationOption {
	return func(c *Conversation) {
		c.multiTab = enabled
	}
}

// WithUpdateHook registers fn to be called after every accepted change.
// fn runs outside the conversation lock.
func WithUpdateHook(fn func(ConversationSnapshot)) ConversationOption {
	return func(c *Conversation) {
		c.onUpdate = fn
	}
}

// Conversation is the single writer of one conversation's message list
type Conversation struct {
	mu sync.Mutex

	id        string
	messages  []Message
	state     DerivedState
	status    TransportStatus
	banner    *ErrorBanner
	artifacts ArtifactCollection
	multiTab  bool

	seq      uint64
	inFlight bool
	lastText string
	// length of the history sent with the last request
	issuedLen int

	reducer  *Reducer
	ledger   *ToolCallLedger
	onUpdate func(ConversationSnapshot)
}

// NewConversation creates a controller over existing history
func NewConversation(id string, history []Message, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		reducer: defaultReducer,
		ledger:  NewToolCallLedger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.load(id, history)
	return c
}

// load resets all per-conversation state; callers hold the lock or own c exclusively
func (c *Conversation) load(id string, history []Message) {
	c.id = id
	c.messages = history
	c.status = StatusReady
	c.banner = nil
	c.inFlight = false
	c.seq++
	c.artifacts = ArtifactCollection{}
	c.lastText = lastUserText(history)
	c.issuedLen = len(history)
	c.ledger.Reset()
	c.ledger.Record(history)
	c.state = DerivedState{}
	c.derive()
}

// ID returns the current conversation id
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Messages returns the current message list. Callers must not modify it.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

// Snapshot returns a consistent copy of the conversation's observable state
func (c *Conversation) Snapshot() ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() ConversationSnapshot {
	snap := ConversationSnapshot{
		ID:        c.id,
		Messages:  c.messages,
		State:     c.state,
		Status:    c.status,
		Artifacts: c.artifacts,
		MultiTab:  c.multiTab,
	}
	if c.banner != nil {
		b := *c.banner
		snap.Banner = &b
	}
	return snap
}

// Switch makes the controller show another conversation.
// Any request still streaming into the previous one is invalidated.
func (c *Conversation) Switch(id string, history []Message) {
	c.mu.Lock()
	LogDebug("Switching conversation %s -> %s", c.id, id)
	c.load(id, history)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Submit appends a user message and issues a fresh generation token
func (c *Conversation) Submit(text string) Request {
	c.mu.Lock()
	msg := Message{ID: uuid.NewString(), Role: RoleUser, Parts: []Part{TextPart(text)}, CreatedAt: time.Now()}
	next := make([]Message, len(c.messages), len(c.messages)+1)
	copy(next, c.messages)
	c.messages = append(next, msg)
	c.lastText = text
	req := c.issueLocked(text)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return req
}

// Retry re-issues the last request with a fresh token and clears the banner.
// Anything the failed stream appended is dropped so the request carries the
// same history it was first sent with.
func (c *Conversation) Retry() (Request, error) {
	c.mu.Lock()
	if c.lastText == "" {
		c.mu.Unlock()
		return Request{}, ErrNothingToRetry
	}
	c.rewindLocked()
	req := c.issueLocked(c.lastText)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return req, nil
}

// Begin issues a token for a stream that carries its own user turns, such as a recorded replay
func (c *Conversation) Begin() Request {
	c.mu.Lock()
	req := c.issueLocked("")
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return req
}

// rewindLocked truncates the list to the history of the last request
func (c *Conversation) rewindLocked() {
	if c.issuedLen >= len(c.messages) {
		return
	}
	LogDebug("Dropping %d message(s) from the failed request in %s", len(c.messages)-c.issuedLen, c.id)
	c.messages = c.messages[:c.issuedLen:c.issuedLen]
	if text := lastUserText(c.messages); text != "" {
		c.lastText = text
	}
	c.ledger.Reset()
	c.ledger.Record(c.messages)
	// the dropped reply's artifact must not linger; tabs already opened stay
	c.state, _ = c.reducer.Derive(c.messages, DerivedState{})
}

func (c *Conversation) issueLocked(text string) Request {
	c.seq++
	c.issuedLen = len(c.messages)
	c.inFlight = true
	c.status = StatusSubmitted
	c.banner = nil
	return Request{
		Token:   GenerationToken{ConversationID: c.id, Seq: c.seq},
		Text:    text,
		History: c.messages,
	}
}

// Current returns the live token and whether a request is in flight
func (c *Conversation) Current() (GenerationToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GenerationToken{ConversationID: c.id, Seq: c.seq}, c.inFlight
}

func (c *Conversation) validLocked(token GenerationToken) bool {
	return c.inFlight && token.ConversationID == c.id && token.Seq == c.seq
}

// Apply replaces the message list with a more complete snapshot and recomputes
// derived state. Updates from stale tokens return ErrStaleGeneration; snapshots
// that would drop messages or parts, rewrite text, or move a tool call
// backwards return ErrRollback.
func (c *Conversation) Apply(token GenerationToken, messages []Message) error {
	c.mu.Lock()
	if !c.validLocked(token) {
		c.mu.Unlock()
		LogDebug("Dropping update from stale token %s", token)
		return ErrStaleGeneration
	}
	if err := c.checkGrowthLocked(messages); err != nil {
		c.mu.Unlock()
		LogWarn("Rejecting update for %s: %v", token, err)
		return err
	}
	c.messages = messages
	c.status = StatusStreaming
	if text := lastUserText(messages); text != "" {
		c.lastText = text
	}
	c.ledger.Record(messages)
	c.derive()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

func (c *Conversation) checkGrowthLocked(messages []Message) error {
	if len(messages) < len(c.messages) {
		return fmt.Errorf("%w: %d messages after %d", ErrRollback, len(messages), len(c.messages))
	}
	for i := range c.messages {
		if messages[i].ID != c.messages[i].ID || messages[i].Role != c.messages[i].Role {
			return fmt.Errorf("%w: message %d changed identity", ErrRollback, i)
		}
		if err := checkPartGrowth(c.messages[i], messages[i]); err != nil {
			return fmt.Errorf("%w: message %d: %v", ErrRollback, i, err)
		}
	}
	if err := c.ledger.Check(messages); err != nil {
		return fmt.Errorf("%w: %v", ErrRollback, err)
	}
	return nil
}

// checkPartGrowth verifies next only extends prev: parts are never removed or
// retyped and text grows by appending
func checkPartGrowth(prev, next Message) error {
	if len(next.Parts) < len(prev.Parts) {
		return fmt.Errorf("%d parts after %d", len(next.Parts), len(prev.Parts))
	}
	for j, p := range prev.Parts {
		q := next.Parts[j]
		if q.Type != p.Type {
			return fmt.Errorf("part %d changed from %s to %s", j, p.Type, q.Type)
		}
		if (p.Type == PartText || p.Type == PartReasoning) && !strings.HasPrefix(q.Content, p.Content) {
			return fmt.Errorf("part %d text was rewritten", j)
		}
	}
	return nil
}

// derive recomputes DerivedState; callers hold the lock
func (c *Conversation) derive() {
	next, isNew := c.reducer.Derive(c.messages, c.state)
	c.state = next
	if !isNew || !c.multiTab || next.Artifact == nil {
		return
	}
	art := next.Artifact
	if added, ok := c.artifacts.Add(art.Code, ArtifactMeta{Source: art.Source, MessageID: art.MessageID, ToolName: art.ToolName}); ok {
		c.artifacts = added
		LogDebug("Added artifact tab %d for message %s", added.Len(), art.MessageID)
	}
}

// Finish marks the request complete
func (c *Conversation) Finish(token GenerationToken) error {
	return c.end(token, StatusReady, nil)
}

// Stop freezes the message list as it is and ends streaming
func (c *Conversation) Stop(token GenerationToken) error {
	return c.end(token, StatusReady, nil)
}

// Fail ends the request with a single retryable banner. The message list is kept.
func (c *Conversation) Fail(token GenerationToken, err error) error {
	banner := &ErrorBanner{Retryable: true}
	if err != nil {
		banner.Message = err.Error()
		var te *TransportError
		if errors.As(err, &te) {
			banner.Message = te.Message
			banner.Retryable = te.Retryable
		}
	}
	if banner.Message == "" {
		banner.Message = "request failed"
	}
	return c.end(token, StatusError, banner)
}

func (c *Conversation) end(token GenerationToken, status TransportStatus, banner *ErrorBanner) error {
	c.mu.Lock()
	if !c.validLocked(token) {
		c.mu.Unlock()
		return ErrStaleGeneration
	}
	c.inFlight = false
	c.seq++
	c.status = status
	c.banner = banner
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// DismissError clears the banner
func (c *Conversation) DismissError() {
	c.mu.Lock()
	if c.banner == nil {
		c.mu.Unlock()
		return
	}
	c.banner = nil
	if c.status == StatusError {
		c.status = StatusReady
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// SelectArtifact changes the active strategy tab
func (c *Conversation) SelectArtifact(id string) error {
	c.mu.Lock()
	next, err := c.artifacts.Select(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.artifacts = next
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// RemoveArtifact closes a strategy tab
func (c *Conversation) RemoveArtifact(id string) bool {
	c.mu.Lock()
	next, ok := c.artifacts.Remove(id)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.artifacts = next
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

func (c *Conversation) notify(snap ConversationSnapshot) {
	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
}

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Text()
		}
	}
	return ""
}
