package internal

import (
	"fmt"
	"time"
)

// Normalizer converts replay results to Transcript format
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeReplay builds a transcript from a stored record and its replay
func (n *Normalizer) NormalizeReplay(rec ConversationRecord, res *ReplayResult) (*Transcript, error) {
	if res == nil {
		return nil, fmt.Errorf("replay result is nil")
	}
	if len(res.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	meta := Metadata{
		MessageCount: len(res.Messages),
		EventCount:   res.EventCount,
	}
	for _, m := range res.Messages {
		for _, tc := range m.ToolCalls() {
			meta.ToolCallCount++
			if tc.State == ToolOutputError {
				meta.FailedTools++
			}
		}
	}
	if !rec.CreatedAt.IsZero() {
		meta.CreatedAt = formatTimestamp(rec.CreatedAt)
	}
	if !rec.UpdatedAt.IsZero() {
		meta.UpdatedAt = formatTimestamp(rec.UpdatedAt)
	}

	title := rec.Title
	if title == "" {
		title = n.deriveTitle(res.Messages)
	}

	return &Transcript{
		ID:        rec.ID,
		Title:     title,
		Messages:  res.Messages,
		Artifact:  res.State.Artifact,
		Artifacts: res.Artifacts.Entries(),
		Status:    res.Status,
		ErrorText: res.ErrorText,
		Metadata:  meta,
	}, nil
}

// deriveTitle uses the first user line, shortened
func (n *Normalizer) deriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		text := firstLine(m.Text())
		if len([]rune(text)) > 60 {
			text = string([]rune(text)[:57]) + "..."
		}
		return text
	}
	return ""
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// formatTimestamp formats a time as ISO8601 in UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
