package internal

import (
	"sort"
	"sync"
)

// TransportStatus mirrors the chat transport's request lifecycle
type TransportStatus string

const (
	StatusReady     TransportStatus = "ready"
	StatusSubmitted TransportStatus = "submitted"
	StatusStreaming TransportStatus = "streaming"
	StatusError     TransportStatus = "error"
)

// DirectiveKind says how a part should be drawn
type DirectiveKind string

const (
	DirectiveText           DirectiveKind = "plain-text-block"
	DirectiveReasoning      DirectiveKind = "reasoning-block"
	DirectiveToolLoading    DirectiveKind = "tool-loading-indicator"
	DirectiveToolResult     DirectiveKind = "tool-result"
	DirectiveToolError      DirectiveKind = "tool-error-banner"
	DirectiveSourceCitation DirectiveKind = "source-citation-chip"
	DirectiveAttachment     DirectiveKind = "attachment-preview"
	DirectiveUnknown        DirectiveKind = "unknown-fallback"
)

// GenericRenderer is the key/value dump used for tools without a registered card
const GenericRenderer = "generic-json"

// RenderDirective is the render decision for one part
type RenderDirective struct {
	Kind        DirectiveKind `json:"kind" yaml:"kind"`
	PartIndex   int           `json:"partIndex" yaml:"part_index"`
	Renderer    string        `json:"renderer,omitempty" yaml:"renderer,omitempty"`
	ToolName    string        `json:"toolName,omitempty" yaml:"tool_name,omitempty"`
	ErrorText   string        `json:"errorText,omitempty" yaml:"error_text,omitempty"`
	DefaultOpen bool          `json:"defaultOpen,omitempty" yaml:"default_open,omitempty"`
	Streaming   bool          `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Fallback    bool          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// MessagePlan is the ordered render plan for one message
type MessagePlan struct {
	MessageID   string            `json:"messageId" yaml:"message_id"`
	Role        Role              `json:"role" yaml:"role"`
	Streaming   bool              `json:"streaming" yaml:"streaming"`
	ShowActions bool              `json:"showActions" yaml:"show_actions"`
	Directives  []RenderDirective `json:"directives" yaml:"directives"`
}

// defaultRenderers maps the analyst tool set onto result cards
var defaultRenderers = map[string]string{
	"get_stock_data":            "stock-card",
	"get_stock_quote":           "stock-card",
	"get_stock_chart":           "stock-chart",
	"get_weather":               "weather-card",
	"search_news":               "news-list",
	"get_market_news":           "news-list",
	"technical_analysis":        "technical-analysis",
	"get_options_chain":         "options-chain",
	"options_analysis":          "options-chain",
	"get_company_financials":    "financials-table",
	"compare_stocks":            "comparison-table",
	"get_crypto_price":          "crypto-card",
	"get_sector_performance":    "sector-heatmap",
	"get_earnings_calendar":     "earnings-calendar",
	"create_presentation":       "presentation",
	"web_search":                "search-results",
	"generate_afl_code":         "afl-code",
	"generate_code":             "afl-code",
	"debug_afl_code":            "afl-code",
	"optimize_afl_code":         "afl-code",
	"sanity_check_afl":          "afl-validation",
	"explain_afl_code":          "afl-explanation",
	"reverse_engineer_strategy": "strategy-analysis",
	"run_backtest":              "backtest-report",
}

// RendererRegistry maps tool names to result renderer ids with a total fallback
type RendererRegistry struct {
	mu       sync.RWMutex
	entries  map[string]string
	fallback string
}

// NewRendererRegistry creates a registry seeded with the built-in cards
func NewRendererRegistry() *RendererRegistry {
	r := &RendererRegistry{
		entries:  make(map[string]string, len(defaultRenderers)),
		fallback: GenericRenderer,
	}
	for tool, renderer := range defaultRenderers {
		r.entries[tool] = renderer
	}
	return r
}

// Register adds or replaces the renderer for a tool
func (r *RendererRegistry) Register(toolName, renderer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[toolName] = renderer
}

// Lookup returns the renderer for toolName and whether it was registered
func (r *RendererRegistry) Lookup(toolName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if renderer, ok := r.entries[toolName]; ok && renderer != "" {
		return renderer, true
	}
	return r.fallback, false
}

// Tools returns the registered tool names sorted
func (r *RendererRegistry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify maps a part to exactly one directive. It never panics, whatever the part holds.
func (r *RendererRegistry) Classify(part Part, streaming bool) RenderDirective {
	switch part.Type {
	case PartText:
		return RenderDirective{Kind: DirectiveText, Streaming: streaming}
	case PartReasoning:
		return RenderDirective{Kind: DirectiveReasoning, Streaming: streaming, DefaultOpen: streaming}
	case PartSource:
		if part.Source == nil {
			break
		}
		return RenderDirective{Kind: DirectiveSourceCitation}
	case PartFile:
		if part.File == nil {
			break
		}
		return RenderDirective{Kind: DirectiveAttachment}
	case PartToolCall:
		if part.Tool == nil {
			break
		}
		return r.classifyTool(part.Tool)
	}
	return RenderDirective{Kind: DirectiveUnknown}
}

func (r *RendererRegistry) classifyTool(tc *ToolCall) RenderDirective {
	switch tc.State {
	case ToolInputStreaming, ToolInputAvailable:
		return RenderDirective{Kind: DirectiveToolLoading, ToolName: tc.ToolName}
	case ToolOutputAvailable:
		renderer, ok := r.Lookup(tc.ToolName)
		return RenderDirective{Kind: DirectiveToolResult, ToolName: tc.ToolName, Renderer: renderer, Fallback: !ok}
	case ToolOutputError:
		return RenderDirective{Kind: DirectiveToolError, ToolName: tc.ToolName, ErrorText: tc.ErrorText}
	}
	return RenderDirective{Kind: DirectiveUnknown, ToolName: tc.ToolName}
}

// Plan classifies every part of a message in order
func (r *RendererRegistry) Plan(msg Message, streaming bool) MessagePlan {
	plan := MessagePlan{
		MessageID:   msg.ID,
		Role:        msg.Role,
		Streaming:   streaming,
		ShowActions: msg.Role == RoleAssistant && !streaming,
		Directives:  make([]RenderDirective, 0, len(msg.Parts)),
	}
	for i, p := range msg.Parts {
		d := r.Classify(p, streaming)
		d.PartIndex = i
		plan.Directives = append(plan.Directives, d)
	}
	return plan
}

// PlanConversation builds plans for every message; only the last can be streaming
func (r *RendererRegistry) PlanConversation(messages []Message, status TransportStatus) []MessagePlan {
	plans := make([]MessagePlan, 0, len(messages))
	for i, msg := range messages {
		streaming := IsMessageStreaming(msg, status, i == len(messages)-1)
		plans = append(plans, r.Plan(msg, streaming))
	}
	return plans
}

// IsMessageStreaming reports whether msg should show streaming affordances
func IsMessageStreaming(msg Message, status TransportStatus, isLast bool) bool {
	if !isLast || msg.Role != RoleAssistant {
		return false
	}
	return status == StatusSubmitted || status == StatusStreaming
}
