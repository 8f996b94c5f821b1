package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/analyst-stream/internal"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name       string
		transcript *internal.Transcript
	}{
		{"basic transcript", internal.CreateTestTranscript("test1")},
		{"empty transcript", &internal.Transcript{ID: "test2", Messages: []internal.Message{}}},
		{"all part kinds", sampleTranscript()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&JSONExporter{}).Export(tt.transcript, &buf); err != nil {
				t.Fatalf("JSONExporter.Export() error = %v", err)
			}

			var got internal.Transcript
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if got.ID != tt.transcript.ID {
				t.Errorf("ID = %q, want %q", got.ID, tt.transcript.ID)
			}
			if len(got.Messages) != len(tt.transcript.Messages) {
				t.Errorf("Messages = %d, want %d", len(got.Messages), len(tt.transcript.Messages))
			}
			if !strings.Contains(buf.String(), "\n  ") {
				t.Error("JSON output should be indented")
			}
		})
	}
}

func TestJSONExporter_KeepsToolPayloads(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(sampleTranscript(), &buf); err != nil {
		t.Fatal(err)
	}

	var got internal.Transcript
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	calls := got.Messages[1].ToolCalls()
	if len(calls) != 3 {
		t.Fatalf("tool calls = %d, want 3", len(calls))
	}
	if calls[0].State != internal.ToolOutputAvailable || !strings.Contains(string(calls[0].Output), `"price":101.5`) {
		t.Errorf("quote call = %+v", calls[0])
	}
	if calls[2].ErrorText != "engine offline" {
		t.Errorf("failed call error = %q", calls[2].ErrorText)
	}
	if got.Artifact == nil || got.Artifact.Code != crossover || len(got.Artifacts) != 2 {
		t.Errorf("artifacts not preserved: %+v / %d", got.Artifact, len(got.Artifacts))
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	if got := (&JSONExporter{}).Extension(); got != "json" {
		t.Errorf("Extension() = %q, want json", got)
	}
}
