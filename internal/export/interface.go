package export

import (
	"fmt"
	"io"

	"github.com/iksnae/analyst-stream/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t *internal.Transcript, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names
var Formats = []string{"jsonl", "md", "yaml", "json"}

// NewExporter creates a new exporter based on format. reg picks tool result
// renderers for markdown and may be nil.
func NewExporter(format string, reg *internal.RendererRegistry) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		if reg == nil {
			reg = internal.NewRendererRegistry()
		}
		return &MarkdownExporter{Registry: reg}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, &internal.ExportError{Format: format, Err: fmt.Errorf("unsupported format (supported: jsonl, md, yaml, json)")}
	}
}
