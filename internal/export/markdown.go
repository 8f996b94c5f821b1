package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iksnae/analyst-stream/internal"
)

// MarkdownExporter exports transcripts in Markdown format, one section per render directive
type MarkdownExporter struct {
	Registry *internal.RendererRegistry
}

// Export exports a transcript to Markdown format
func (e *MarkdownExporter) Export(t *internal.Transcript, w io.Writer) error {
	reg := e.Registry
	if reg == nil {
		reg = internal.NewRendererRegistry()
	}

	title := t.Title
	if title == "" {
		title = "Conversation " + t.ID
	}
	_, _ = fmt.Fprintf(w, "# %s\n\n", title)
	_, _ = fmt.Fprintf(w, "**ID:** %s  \n", t.ID)
	if t.Metadata.CreatedAt != "" {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", t.Metadata.CreatedAt)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d  \n", len(t.Messages))
	_, _ = fmt.Fprintf(w, "**Tool calls:** %d\n\n", t.Metadata.ToolCallCount)
	if t.ErrorText != "" {
		_, _ = fmt.Fprintf(w, "> **Stream error:** %s\n\n", t.ErrorText)
	}

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range t.Messages {
		plan := reg.Plan(msg, false)
		_, _ = fmt.Fprintf(w, "### %s\n\n", roleHeading(msg.Role))
		for _, d := range plan.Directives {
			writeDirective(w, d, msg.Parts[d.PartIndex])
		}
		if i < len(t.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	if t.Artifact != nil {
		_, _ = fmt.Fprintf(w, "## Latest artifact\n\n")
		_, _ = fmt.Fprintf(w, "_Source: %s_\n\n", t.Artifact.Source)
		writeFence(w, "afl", t.Artifact.Code)
	}
	if len(t.Artifacts) > 1 {
		_, _ = fmt.Fprintf(w, "## Composite strategy\n\n")
		names := make([]string, 0, len(t.Artifacts))
		for _, a := range t.Artifacts {
			names = append(names, a.Name)
		}
		_, _ = fmt.Fprintf(w, "_Combines: %s_\n\n", strings.Join(names, ", "))
		writeFence(w, "afl", t.Composite())
	}
	return nil
}

func roleHeading(r internal.Role) string {
	switch r {
	case internal.RoleUser:
		return "User"
	case internal.RoleAssistant:
		return "Assistant"
	}
	return string(r)
}

func writeDirective(w io.Writer, d internal.RenderDirective, p internal.Part) {
	switch d.Kind {
	case internal.DirectiveText:
		_, _ = fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(p.Content))
	case internal.DirectiveReasoning:
		_, _ = fmt.Fprintf(w, "<details><summary>Reasoning</summary>\n\n%s\n\n</details>\n\n", strings.TrimSpace(p.Content))
	case internal.DirectiveToolLoading:
		_, _ = fmt.Fprintf(w, "_Running `%s`..._\n\n", d.ToolName)
	case internal.DirectiveToolResult:
		_, _ = fmt.Fprintf(w, "**Tool `%s`** (%s)\n\n", d.ToolName, d.Renderer)
		writeToolOutput(w, p.Tool.Output)
	case internal.DirectiveToolError:
		_, _ = fmt.Fprintf(w, "> **Tool `%s` failed:** %s\n\n", d.ToolName, d.ErrorText)
	case internal.DirectiveSourceCitation:
		label := p.Source.Title
		if label == "" {
			label = p.Source.URL
		}
		_, _ = fmt.Fprintf(w, "- [%s](%s)\n\n", label, p.Source.URL)
	case internal.DirectiveAttachment:
		name := p.File.Filename
		if name == "" {
			name = "attachment"
		}
		if p.File.URL != "" {
			_, _ = fmt.Fprintf(w, "📎 [%s](%s) (%s)\n\n", name, p.File.URL, p.File.MediaType)
		} else {
			_, _ = fmt.Fprintf(w, "📎 %s (%s)\n\n", name, p.File.MediaType)
		}
	default:
		_, _ = fmt.Fprintf(w, "_(unsupported content: %s)_\n\n", p.Type)
	}
}

// writeToolOutput prints object outputs as a key/value list and anything else as a JSON block
func writeToolOutput(w io.Writer, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		writeFence(w, "json", string(raw))
		return
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.Contains(v, "\n") {
				_, _ = fmt.Fprintf(w, "- **%s:**\n\n", k)
				writeFence(w, "", v)
				continue
			}
			_, _ = fmt.Fprintf(w, "- **%s:** %s\n", k, v)
		default:
			b, _ := json.Marshal(v)
			_, _ = fmt.Fprintf(w, "- **%s:** `%s`\n", k, b)
		}
	}
	_, _ = fmt.Fprintln(w)
}

func writeFence(w io.Writer, lang, body string) {
	_, _ = fmt.Fprintf(w, "```%s\n%s\n```\n\n", lang, strings.TrimRight(body, "\n"))
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
