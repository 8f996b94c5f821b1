package internal

// Transcript is a replayed conversation ready for display or export
type Transcript struct {
	ID        string             `json:"id" yaml:"id"`
	Title     string             `json:"title,omitempty" yaml:"title,omitempty"`
	Messages  []Message          `json:"messages" yaml:"messages"`
	Artifact  *ExtractedArtifact `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Artifacts []ArtifactEntry    `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Status    StreamStatus       `json:"status" yaml:"status"`
	ErrorText string             `json:"errorText,omitempty" yaml:"error_text,omitempty"`
	Metadata  Metadata           `json:"metadata" yaml:"metadata"`
}

// Metadata contains additional transcript information
type Metadata struct {
	CreatedAt     string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	MessageCount  int    `json:"message_count" yaml:"message_count"`
	EventCount    int    `json:"event_count" yaml:"event_count"`
	ToolCallCount int    `json:"tool_call_count" yaml:"tool_call_count"`
	FailedTools   int    `json:"failed_tools,omitempty" yaml:"failed_tools,omitempty"`
}

// Composite returns the majority-vote view of the transcript's artifacts
func (t *Transcript) Composite() string {
	return SynthesizeComposite(t.Artifacts)
}
