package internal

import "testing"

func TestDeduplicator_Deduplicate(t *testing.T) {
	a := CreateTestTranscript("a")
	b := CreateTestTranscript("b")
	c := CreateTestTranscript("c")
	c.Messages = CreateTestMessages("something else", "entirely")

	got := NewDeduplicator().Deduplicate([]*Transcript{a, b, c})
	if len(got) != 2 {
		t.Fatalf("Deduplicate() returned %d transcripts, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("Deduplicate() kept %s, %s; want a, c", got[0].ID, got[1].ID)
	}
}

func TestDeduplicator_HashTranscript(t *testing.T) {
	d := NewDeduplicator()

	a := CreateTestTranscript("a")
	b := CreateTestTranscript("b")
	b.Title = "different title"
	if d.HashTranscript(a) != d.HashTranscript(b) {
		t.Error("ids and titles should not affect the hash")
	}

	withTool := CreateTestTranscript("c")
	withTool.Messages[1].Parts = append(withTool.Messages[1].Parts,
		ToolPart(CreateTestToolCall("call-1", "get_stock_data", map[string]any{"price": 10})))
	otherOutput := CreateTestTranscript("d")
	otherOutput.Messages[1].Parts = append(otherOutput.Messages[1].Parts,
		ToolPart(CreateTestToolCall("call-2", "get_stock_data", map[string]any{"price": 11})))

	if d.HashTranscript(a) == d.HashTranscript(withTool) {
		t.Error("tool parts should change the hash")
	}
	if d.HashTranscript(withTool) == d.HashTranscript(otherOutput) {
		t.Error("tool output should change the hash")
	}
}

func TestDeduplicator_Empty(t *testing.T) {
	if got := NewDeduplicator().Deduplicate(nil); len(got) != 0 {
		t.Errorf("Deduplicate(nil) = %v", got)
	}
}
