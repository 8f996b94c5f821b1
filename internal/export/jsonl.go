package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/analyst-stream/internal"
)

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlLine struct {
	Conversation string          `json:"conversation"`
	ID           string          `json:"id"`
	Role         internal.Role   `json:"role"`
	Text         string          `json:"text,omitempty"`
	Timestamp    string          `json:"timestamp,omitempty"`
	Parts        []internal.Part `json:"parts"`
	Tools        []string        `json:"tools,omitempty"`
}

// Export writes one line per message, followed by an artifact line when one was extracted
func (e *JSONLExporter) Export(t *internal.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range t.Messages {
		line := jsonlLine{
			Conversation: t.ID,
			ID:           msg.ID,
			Role:         msg.Role,
			Text:         msg.Text(),
			Parts:        msg.Parts,
		}
		if !msg.CreatedAt.IsZero() {
			line.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
		}
		for _, tc := range msg.ToolCalls() {
			line.Tools = append(line.Tools, tc.ToolName)
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	if t.Artifact != nil {
		art := map[string]interface{}{
			"conversation": t.ID,
			"artifact":     t.Artifact,
		}
		if err := enc.Encode(art); err != nil {
			return fmt.Errorf("failed to encode artifact: %w", err)
		}
	}
	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
