package internal

import (
	"regexp"
	"strings"
)

// Default reducer settings used when configuration leaves them empty
var (
	DefaultCodeTools = []string{
		"generate_afl_code",
		"generate_code",
		"debug_afl_code",
		"optimize_afl_code",
		"sanity_check_afl",
		"reverse_engineer_strategy",
	}
	DefaultCodeFields = []string{"code", "afl_code"}
	DefaultLanguage   = "afl"
)

// ReducerConfig controls artifact extraction
type ReducerConfig struct {
	CodeTools  []string `mapstructure:"code_tools" yaml:"code_tools"`
	CodeFields []string `mapstructure:"code_fields" yaml:"code_fields"`
	Language   string   `mapstructure:"language" yaml:"language"`
}

// DefaultReducerConfig returns the built-in extraction settings
func DefaultReducerConfig() ReducerConfig {
	return ReducerConfig{
		CodeTools:  append([]string(nil), DefaultCodeTools...),
		CodeFields: append([]string(nil), DefaultCodeFields...),
		Language:   DefaultLanguage,
	}
}

// ExtractedArtifact is a code block pulled out of an assistant message
type ExtractedArtifact struct {
	Code      string         `json:"code" yaml:"code"`
	Source    ArtifactSource `json:"source" yaml:"source"`
	MessageID string         `json:"messageId" yaml:"message_id"`
	ToolName  string         `json:"toolName,omitempty" yaml:"tool_name,omitempty"`
	CallID    string         `json:"callId,omitempty" yaml:"call_id,omitempty"`
}

// DerivedState is UI state computed from, but never stored with, the message list
type DerivedState struct {
	MessageID       string             `json:"messageId,omitempty" yaml:"message_id,omitempty"`
	FullText        string             `json:"fullText,omitempty" yaml:"full_text,omitempty"`
	Artifact        *ExtractedArtifact `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	ActiveToolCount int                `json:"activeToolCount" yaml:"active_tool_count"`
}

// LatestCode returns the artifact code or "" when nothing was extracted yet
func (s DerivedState) LatestCode() string {
	if s.Artifact == nil {
		return ""
	}
	return s.Artifact.Code
}

// Reducer derives DerivedState from full message snapshots
type Reducer struct {
	codeTools  map[string]bool
	codeFields []string
	language   string
	tagged     *regexp.Regexp
}

// NewReducer compiles a reducer, filling empty settings with defaults
func NewReducer(cfg ReducerConfig) *Reducer {
	def := DefaultReducerConfig()
	if len(cfg.CodeTools) == 0 {
		cfg.CodeTools = def.CodeTools
	}
	if len(cfg.CodeFields) == 0 {
		cfg.CodeFields = def.CodeFields
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = def.Language
	}

	tools := make(map[string]bool, len(cfg.CodeTools))
	for _, name := range cfg.CodeTools {
		tools[name] = true
	}
	return &Reducer{
		codeTools:  tools,
		codeFields: cfg.CodeFields,
		language:   strings.TrimSpace(cfg.Language),
		tagged:     taggedFencePattern(strings.TrimSpace(cfg.Language)),
	}
}

var defaultReducer = NewReducer(DefaultReducerConfig())

// DeriveState runs the default reducer
func DeriveState(messages []Message, prev DerivedState) (DerivedState, bool) {
	return defaultReducer.Derive(messages, prev)
}

// Derive recomputes derived state from scratch. The second result is true only
// when the extracted artifact differs from prev's; repeated calls on the same
// snapshot therefore signal at most once. messages is never modified.
func (r *Reducer) Derive(messages []Message, prev DerivedState) (DerivedState, bool) {
	idx := LastAssistantIndex(messages)
	if idx < 0 {
		return prev, false
	}
	msg := messages[idx]

	next := DerivedState{
		MessageID:       msg.ID,
		FullText:        msg.Text(),
		ActiveToolCount: countActiveTools(msg),
		Artifact:        prev.Artifact,
	}

	art, ok := r.extract(msg, next.FullText)
	if !ok {
		return next, false
	}
	if prev.Artifact != nil && prev.Artifact.Code == art.Code {
		return next, false
	}
	next.Artifact = &art
	return next, true
}

// extract applies the precedence: code tool output, tagged fence, any fence
func (r *Reducer) extract(msg Message, fullText string) (ExtractedArtifact, bool) {
	for _, p := range msg.Parts {
		if p.Type != PartToolCall || p.Tool == nil {
			continue
		}
		tc := p.Tool
		if !r.codeTools[tc.ToolName] || tc.State != ToolOutputAvailable {
			continue
		}
		if code, ok := ExtractCodeField(tc.Output, r.codeFields); ok {
			return ExtractedArtifact{
				Code:      code,
				Source:    SourceToolOutput,
				MessageID: msg.ID,
				ToolName:  tc.ToolName,
				CallID:    tc.CallID,
			}, true
		}
	}

	if code, ok := firstFence(r.tagged, fullText); ok {
		return ExtractedArtifact{Code: code, Source: SourceTaggedFence, MessageID: msg.ID}, true
	}
	if code, ok := firstFence(anyFencePattern, fullText); ok {
		return ExtractedArtifact{Code: code, Source: SourceAnyFence, MessageID: msg.ID}, true
	}
	return ExtractedArtifact{}, false
}

// Language returns the fence marker the reducer prefers
func (r *Reducer) Language() string {
	return r.language
}

// IsCodeTool reports whether toolName is in the code-producing set
func (r *Reducer) IsCodeTool(toolName string) bool {
	return r.codeTools[toolName]
}

func countActiveTools(msg Message) int {
	n := 0
	for _, p := range msg.Parts {
		if p.Type == PartToolCall && p.Tool != nil && p.Tool.State.IsPending() {
			n++
		}
	}
	return n
}
