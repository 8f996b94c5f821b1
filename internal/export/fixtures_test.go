package export

import (
	"encoding/json"
	"time"

	"github.com/iksnae/analyst-stream/internal"
)

const (
	crossover = "Buy = Cross(MA(C, 10), MA(C, 30));\nSell = Cross(MA(C, 30), MA(C, 10));"
	meanRev   = "Buy = RSI(14) < 30;\nSell = RSI(14) > 70;"
)

// sampleTranscript covers every part kind the exporters handle
func sampleTranscript() *internal.Transcript {
	at := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	quote := internal.ToolPart(internal.ToolCall{
		ToolName: "get_stock_data",
		CallID:   "call-quote",
		State:    internal.ToolOutputAvailable,
		Input:    json.RawMessage(`{"symbol":"AAPL"}`),
		Output:   json.RawMessage(`{"symbol":"AAPL","price":101.5}`),
	})
	code := internal.ToolPart(internal.ToolCall{
		ToolName: "generate_afl_code",
		CallID:   "call-code",
		State:    internal.ToolOutputAvailable,
		Output:   json.RawMessage(`{"code":"Buy = Cross(MA(C, 10), MA(C, 30));\nSell = Cross(MA(C, 30), MA(C, 10));"}`),
	})
	failed := internal.ToolPart(internal.ToolCall{
		ToolName:  "run_backtest",
		CallID:    "call-bt",
		State:     internal.ToolOutputError,
		ErrorText: "engine offline",
	})

	var arts internal.ArtifactCollection
	arts, _ = arts.Add(crossover, internal.ArtifactMeta{Source: internal.SourceToolOutput})
	arts, _ = arts.Add(meanRev, internal.ArtifactMeta{Source: internal.SourceTaggedFence})

	return &internal.Transcript{
		ID:    "01JEXPORT",
		Title: "AAPL crossover",
		Messages: []internal.Message{
			{ID: "u1", Role: internal.RoleUser, Parts: []internal.Part{internal.TextPart("Build a crossover for AAPL")}, CreatedAt: at},
			{ID: "a1", Role: internal.RoleAssistant, CreatedAt: at.Add(time.Second), Parts: []internal.Part{
				internal.ReasoningPart("Check the quote first."),
				quote,
				internal.TextPart("Here is the strategy."),
				code,
				failed,
				internal.SourcePart("https://example.com/ma", "Moving averages"),
				internal.FilePart(internal.FileAttachment{MediaType: "text/csv", Filename: "prices.csv"}),
			}},
		},
		Artifact:  &internal.ExtractedArtifact{Code: crossover, Source: internal.SourceToolOutput, MessageID: "a1", ToolName: "generate_afl_code"},
		Artifacts: arts.Entries(),
		Status:    internal.StreamFinished,
		Metadata: internal.Metadata{
			CreatedAt:     "2025-02-03T10:00:00Z",
			MessageCount:  2,
			ToolCallCount: 3,
			FailedTools:   1,
		},
	}
}
