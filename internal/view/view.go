package view

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/analyst-stream/internal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	reasoningStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Foreground(lipgloss.Color("245")).
			Italic(true).
			Padding(0, 1)

	toolStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	chipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Underline(true)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Foreground(lipgloss.Color("212")).
			Bold(true).
			Underline(true)

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#FFD700")).
			Padding(0, 1)
)

// Options configures a Renderer
type Options struct {
	Width     int
	Style     string // glamour style: auto, dark, light, notty
	CodeTheme string // chroma style name
	Language  string // lexer used for artifacts
	Plain     bool   // no ANSI output at all
}

// Renderer draws render plans to a terminal
type Renderer struct {
	opts      Options
	registry  *internal.RendererRegistry
	markdown  *glamour.TermRenderer
	formatter chroma.Formatter
}

// NewRenderer creates a terminal renderer
func NewRenderer(reg *internal.RendererRegistry, opts Options) (*Renderer, error) {
	if reg == nil {
		reg = internal.NewRendererRegistry()
	}
	if opts.Width <= 0 {
		opts.Width = 100
	}
	if opts.CodeTheme == "" {
		opts.CodeTheme = "monokai"
	}

	style := opts.Style
	if opts.Plain {
		style = "notty"
	}
	mdOpts := []glamour.TermRendererOption{glamour.WithWordWrap(opts.Width)}
	if style == "" || style == "auto" {
		mdOpts = append(mdOpts, glamour.WithAutoStyle())
	} else {
		mdOpts = append(mdOpts, glamour.WithStandardStyle(style))
	}
	md, err := glamour.NewTermRenderer(mdOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	formatter := formatters.Get("terminal256")
	if opts.Plain {
		formatter = formatters.Get("noop")
	}
	if formatter == nil {
		formatter = formatters.Fallback
	}

	return &Renderer{opts: opts, registry: reg, markdown: md, formatter: formatter}, nil
}

// Registry returns the renderer registry used for plans
func (r *Renderer) Registry() *internal.RendererRegistry {
	return r.registry
}

func (r *Renderer) style(s lipgloss.Style) lipgloss.Style {
	if r.opts.Plain {
		return lipgloss.NewStyle()
	}
	return s
}

// RenderTranscript writes a full transcript
func (r *Renderer) RenderTranscript(w io.Writer, t *internal.Transcript) {
	title := t.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintln(w, r.style(headerStyle).Render("💬 "+title))
	meta := []string{t.ID, fmt.Sprintf("Messages: %d", len(t.Messages))}
	if t.Metadata.CreatedAt != "" {
		meta = append(meta, "Created: "+t.Metadata.CreatedAt)
	}
	if t.Metadata.ToolCallCount > 0 {
		meta = append(meta, fmt.Sprintf("Tool calls: %d", t.Metadata.ToolCallCount))
	}
	fmt.Fprintln(w, r.style(metaStyle).Render(strings.Join(meta, " • ")))
	fmt.Fprintln(w)

	for i, plan := range r.registry.PlanConversation(t.Messages, internal.StatusReady) {
		r.RenderPlan(w, plan, t.Messages[i])
	}
	if t.ErrorText != "" {
		r.RenderBanner(w, &internal.ErrorBanner{Message: t.ErrorText, Retryable: true})
	}

	var artifacts internal.ArtifactCollection
	for _, a := range t.Artifacts {
		artifacts, _ = artifacts.Add(a.Code, a.Meta)
	}
	if artifacts.Len() > 1 {
		// composite selected so the merged view is shown first
		if sel, err := artifacts.Select(internal.CompositeID); err == nil {
			artifacts = sel
		}
	}
	if artifacts.Len() > 0 {
		r.RenderArtifacts(w, artifacts)
	} else if t.Artifact != nil {
		r.RenderCode(w, t.Artifact.Code)
	}
}

// RenderSnapshot draws a live conversation view
func (r *Renderer) RenderSnapshot(w io.Writer, snap internal.ConversationSnapshot) {
	for i, plan := range r.registry.PlanConversation(snap.Messages, snap.Status) {
		r.RenderPlan(w, plan, snap.Messages[i])
	}
	if snap.Banner != nil {
		r.RenderBanner(w, snap.Banner)
	}
	if snap.MultiTab && snap.Artifacts.Len() > 0 {
		r.RenderArtifacts(w, snap.Artifacts)
	} else if code := snap.State.LatestCode(); code != "" {
		r.RenderCode(w, code)
	}
	fmt.Fprintln(w, r.style(metaStyle).Render(fmt.Sprintf("status: %s • active tools: %d", snap.Status, snap.State.ActiveToolCount)))
}

// RenderPlan draws one message from its directives
func (r *Renderer) RenderPlan(w io.Writer, plan internal.MessagePlan, msg internal.Message) {
	label := r.style(assistantStyle).Render("🤖 Assistant")
	if plan.Role == internal.RoleUser {
		label = r.style(userStyle).Render("👤 User")
	}
	if plan.Streaming {
		label += " " + r.style(loadingStyle).Render("…")
	}
	fmt.Fprintln(w, label)

	for _, d := range plan.Directives {
		if d.PartIndex < 0 || d.PartIndex >= len(msg.Parts) {
			continue
		}
		fmt.Fprintln(w, r.renderDirective(d, msg.Parts[d.PartIndex]))
	}
	if plan.ShowActions {
		fmt.Fprintln(w, r.style(metaStyle).Render("[copy] [👍] [👎]"))
	}
	fmt.Fprintln(w)
}

func (r *Renderer) renderDirective(d internal.RenderDirective, p internal.Part) string {
	switch d.Kind {
	case internal.DirectiveText:
		return r.renderMarkdown(p.Content)
	case internal.DirectiveReasoning:
		if !d.DefaultOpen {
			return r.style(metaStyle).Render(fmt.Sprintf("▸ Reasoning (%d chars)", len(p.Content)))
		}
		return r.style(reasoningStyle).Width(r.opts.Width - 4).Render(strings.TrimSpace(p.Content))
	case internal.DirectiveToolLoading:
		return r.style(loadingStyle).Render(fmt.Sprintf("⏳ %s running...", d.ToolName))
	case internal.DirectiveToolResult:
		return r.style(toolStyle).Width(r.opts.Width - 4).Render(r.renderToolResult(d, p.Tool))
	case internal.DirectiveToolError:
		return r.style(bannerStyle).Render(fmt.Sprintf("✗ %s failed: %s", d.ToolName, d.ErrorText))
	case internal.DirectiveSourceCitation:
		label := p.Source.Title
		if label == "" {
			label = p.Source.URL
		}
		return r.style(chipStyle).Render("🔗 " + label)
	case internal.DirectiveAttachment:
		name := p.File.Filename
		if name == "" {
			name = p.File.MediaType
		}
		return r.style(metaStyle).Render("📎 " + name)
	}
	return r.style(metaStyle).Render(fmt.Sprintf("(unsupported content: %s)", p.Type))
}

func (r *Renderer) renderMarkdown(text string) string {
	out, err := r.markdown.Render(text)
	if err != nil {
		internal.LogDebug("Markdown render failed, using plain text: %v", err)
		return text
	}
	return strings.TrimRight(out, "\n")
}

// renderToolResult is the generic key/value card; named renderers add a heading
func (r *Renderer) renderToolResult(d internal.RenderDirective, tc *internal.ToolCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔧 %s", d.ToolName)
	if !d.Fallback {
		fmt.Fprintf(&b, " [%s]", d.Renderer)
	}
	b.WriteString("\n")

	var obj map[string]interface{}
	if err := json.Unmarshal(tc.Output, &obj); err != nil {
		b.WriteString(strings.TrimSpace(string(tc.Output)))
		return b.String()
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := obj[k]
		if s, ok := v.(string); ok {
			if strings.Contains(s, "\n") {
				fmt.Fprintf(&b, "%s:\n%s\n", k, r.highlight(s))
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", k, s)
			continue
		}
		raw, _ := json.Marshal(v)
		fmt.Fprintf(&b, "%s: %s\n", k, raw)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderBanner draws the transport error banner
func (r *Renderer) RenderBanner(w io.Writer, banner *internal.ErrorBanner) {
	msg := "⚠ " + banner.Message
	if banner.Retryable {
		msg += "  [retry] [dismiss]"
	}
	fmt.Fprintln(w, r.style(bannerStyle).Render(msg))
}

// RenderArtifacts draws the strategy tab strip and the selected tab's code
func (r *Renderer) RenderArtifacts(w io.Writer, c internal.ArtifactCollection) {
	var tabs []string
	for _, e := range c.Entries() {
		s := r.style(tabStyle)
		if e.ID == c.ActiveID() {
			s = r.style(activeTabStyle)
		}
		tabs = append(tabs, s.Render(e.Name))
	}
	if c.Len() > 1 {
		s := r.style(tabStyle)
		if c.ActiveID() == internal.CompositeID {
			s = r.style(activeTabStyle)
		}
		tabs = append(tabs, s.Render("Composite"))
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	r.RenderCode(w, c.ActiveCode())
}

// RenderCode draws a highlighted code block
func (r *Renderer) RenderCode(w io.Writer, code string) {
	if code == "" {
		return
	}
	fmt.Fprintln(w, r.style(codeStyle).Render(r.highlight(code)))
}

func (r *Renderer) highlight(code string) string {
	lexer := lexerFor(r.opts.Language)
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	style := styles.Get(r.opts.CodeTheme)
	if style == nil {
		style = styles.Fallback
	}
	var buf strings.Builder
	if err := r.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// lexerFor picks a lexer; AFL has none of its own and reads best as C
func lexerFor(lang string) chroma.Lexer {
	if lang != "" && !strings.EqualFold(lang, "afl") {
		if l := lexers.Get(lang); l != nil {
			return l
		}
	}
	if l := lexers.Get("c"); l != nil {
		return l
	}
	return lexers.Fallback
}
