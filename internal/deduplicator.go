package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Deduplicator removes transcripts recorded more than once
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first transcript of each distinct content hash
func (d *Deduplicator) Deduplicate(transcripts []*Transcript) []*Transcript {
	seen := make(map[string]bool)
	var unique []*Transcript

	for _, t := range transcripts {
		hash := d.HashTranscript(t)
		if seen[hash] {
			LogDebug("Dropping duplicate transcript %s", t.ID)
			continue
		}
		seen[hash] = true
		unique = append(unique, t)
	}

	return unique
}

// HashTranscript hashes roles, text and tool results; ids and timestamps are ignored
func (d *Deduplicator) HashTranscript(t *Transcript) string {
	h := sha256.New()
	sep := []byte{0}

	for _, m := range t.Messages {
		h.Write([]byte(m.Role))
		h.Write(sep)
		for _, p := range m.Parts {
			h.Write([]byte(p.Type))
			h.Write(sep)
			h.Write([]byte(p.Content))
			if p.Tool != nil {
				h.Write([]byte(p.Tool.ToolName))
				h.Write([]byte(p.Tool.State))
				h.Write(p.Tool.Output)
				h.Write([]byte(p.Tool.ErrorText))
			}
			h.Write(sep)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
