package export

import (
	"bytes"
	"testing"

	"github.com/iksnae/analyst-stream/internal"
	"gopkg.in/yaml.v3"
)

func TestYAMLExporter_Export(t *testing.T) {
	tests := []struct {
		name       string
		transcript *internal.Transcript
	}{
		{"basic transcript", internal.CreateTestTranscript("test1")},
		{"all part kinds", sampleTranscript()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&YAMLExporter{}).Export(tt.transcript, &buf); err != nil {
				t.Fatalf("YAMLExporter.Export() error = %v", err)
			}

			var got map[string]interface{}
			if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("output is not valid YAML: %v", err)
			}
			if got["id"] != tt.transcript.ID {
				t.Errorf("id = %v, want %q", got["id"], tt.transcript.ID)
			}
			msgs, _ := got["messages"].([]interface{})
			if len(msgs) != len(tt.transcript.Messages) {
				t.Errorf("messages = %d, want %d", len(msgs), len(tt.transcript.Messages))
			}
		})
	}
}

func TestYAMLExporter_UsesSnakeCase(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleTranscript(), &buf); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Metadata struct {
			ToolCallCount int `yaml:"tool_call_count"`
			FailedTools   int `yaml:"failed_tools"`
		} `yaml:"metadata"`
		Artifact struct {
			Code     string `yaml:"code"`
			ToolName string `yaml:"tool_name"`
		} `yaml:"artifact"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Metadata.ToolCallCount != 3 || got.Metadata.FailedTools != 1 {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if got.Artifact.Code != crossover || got.Artifact.ToolName != "generate_afl_code" {
		t.Errorf("artifact = %+v", got.Artifact)
	}
}

func TestYAMLExporter_Extension(t *testing.T) {
	if got := (&YAMLExporter{}).Extension(); got != "yaml" {
		t.Errorf("Extension() = %q, want yaml", got)
	}
}

func TestYAMLExporter_ToolPayloads(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(sampleTranscript(), &buf); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Messages []struct {
			Parts []struct {
				Tool *struct {
					ToolName string                 `yaml:"tool_name"`
					Output   map[string]interface{} `yaml:"output"`
				} `yaml:"tool"`
			} `yaml:"parts"`
		} `yaml:"messages"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	quote := got.Messages[1].Parts[1].Tool
	if quote == nil || quote.ToolName != "get_stock_data" {
		t.Fatalf("quote part = %+v", quote)
	}
	if quote.Output["symbol"] != "AAPL" || quote.Output["price"] != 101.5 {
		t.Errorf("output = %v", quote.Output)
	}
}
