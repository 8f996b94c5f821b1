package internal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompositeID is the reserved selection id of the synthesized composite view
const CompositeID = "composite"

// ArtifactMeta describes where an artifact came from
type ArtifactMeta struct {
	Source    ArtifactSource `json:"source,omitempty" yaml:"source,omitempty"`
	MessageID string         `json:"messageId,omitempty" yaml:"message_id,omitempty"`
	ToolName  string         `json:"toolName,omitempty" yaml:"tool_name,omitempty"`
}

// ArtifactEntry is one named strategy tab
type ArtifactEntry struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Code      string       `json:"code" yaml:"code"`
	Meta      ArtifactMeta `json:"meta" yaml:"meta"`
	CreatedAt time.Time    `json:"createdAt" yaml:"created_at"`
}

// ArtifactCollection is an ordered set of strategy tabs plus a selection.
// It has value semantics: every operation returns a new collection.
type ArtifactCollection struct {
	entries []ArtifactEntry
	active  string
}

// Entries returns a copy of the ordered entries
func (c ArtifactCollection) Entries() []ArtifactEntry {
	out := make([]ArtifactEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries
func (c ArtifactCollection) Len() int {
	return len(c.entries)
}

// ActiveID returns the selected entry id, CompositeID, or "" for an empty collection
func (c ArtifactCollection) ActiveID() string {
	return c.active
}

// Find returns the entry with the given id
func (c ArtifactCollection) Find(id string) (ArtifactEntry, bool) {
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return ArtifactEntry{}, false
}

// Contains reports whether some entry holds exactly code
func (c ArtifactCollection) Contains(code string) bool {
	for _, e := range c.entries {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Add appends code as "Strategy N" unless an entry already holds the same code.
// The new entry becomes the active selection.
func (c ArtifactCollection) Add(code string, meta ArtifactMeta) (ArtifactCollection, bool) {
	if code == "" || c.Contains(code) {
		return c, false
	}
	entry := ArtifactEntry{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("Strategy %d", len(c.entries)+1),
		Code:      code,
		Meta:      meta,
		CreatedAt: time.Now(),
	}
	next := make([]ArtifactEntry, len(c.entries), len(c.entries)+1)
	copy(next, c.entries)
	return ArtifactCollection{entries: append(next, entry), active: entry.ID}, true
}

// Remove drops the entry with id. Removing the active entry selects the composite view.
func (c ArtifactCollection) Remove(id string) (ArtifactCollection, bool) {
	next := make([]ArtifactEntry, 0, len(c.entries))
	found := false
	for _, e := range c.entries {
		if e.ID == id {
			found = true
			continue
		}
		next = append(next, e)
	}
	if !found {
		return c, false
	}
	active := c.active
	if active == id {
		active = CompositeID
	}
	if len(next) == 0 {
		active = ""
	}
	return ArtifactCollection{entries: next, active: active}, true
}

// Select changes the active tab; unknown ids are rejected
func (c ArtifactCollection) Select(id string) (ArtifactCollection, error) {
	if id == CompositeID && len(c.entries) > 0 {
		c.active = id
		return c, nil
	}
	if _, ok := c.Find(id); !ok {
		return c, fmt.Errorf("unknown artifact %q", id)
	}
	c.active = id
	return c, nil
}

// ActiveCode returns the code shown for the current selection
func (c ArtifactCollection) ActiveCode() string {
	if c.active == CompositeID {
		return SynthesizeComposite(c.entries)
	}
	if e, ok := c.Find(c.active); ok {
		return e.Code
	}
	return ""
}

// Composite synthesizes the composite view from the current entries
func (c ArtifactCollection) Composite() string {
	return SynthesizeComposite(c.entries)
}

// AFL identifiers are case-insensitive
var signalPattern = regexp.MustCompile(`(?i)\b(buy|sell|short|cover)\b`)

// signals lists the trade arrays combined by the composite, in output order
var signals = []string{"Buy", "Sell", "Short", "Cover"}

// SynthesizeComposite combines entries into a majority-vote AFL strategy.
// The result depends only on the ordered entry codes.
func SynthesizeComposite(entries []ArtifactEntry) string {
	if len(entries) == 0 {
		return ""
	}
	n := len(entries)
	threshold := n/2 + 1

	var b strings.Builder
	fmt.Fprintf(&b, "// Composite strategy: majority vote of %d strategies\n", n)
	fmt.Fprintf(&b, "// A signal fires when at least %d of %d strategies agree\n\n", threshold, n)

	used := make(map[string][]string, len(signals))
	for i, e := range entries {
		prefix := fmt.Sprintf("S%d_", i+1)
		fmt.Fprintf(&b, "// ---- %s ----\n", entryLabel(e, i))
		seen := make(map[string]bool)
		body := signalPattern.ReplaceAllStringFunc(strings.TrimSpace(e.Code), func(match string) string {
			sig := canonicalSignal(match)
			seen[sig] = true
			return prefix + sig
		})
		b.WriteString(body)
		b.WriteString("\n\n")
		for _, sig := range signals {
			if seen[sig] {
				used[sig] = append(used[sig], prefix+sig)
			}
		}
	}

	fmt.Fprintf(&b, "VoteThreshold = %d;\n", threshold)
	for _, sig := range signals {
		names := used[sig]
		if len(names) == 0 {
			fmt.Fprintf(&b, "%s = 0;\n", sig)
			continue
		}
		fmt.Fprintf(&b, "%sVotes = %s;\n", sig, strings.Join(names, " + "))
		fmt.Fprintf(&b, "%s = %sVotes >= VoteThreshold;\n", sig, sig)
	}
	b.WriteString("Buy = ExRem(Buy, Sell);\nSell = ExRem(Sell, Buy);\n")
	return b.String()
}

func canonicalSignal(match string) string {
	for _, sig := range signals {
		if strings.EqualFold(sig, match) {
			return sig
		}
	}
	return match
}

func entryLabel(e ArtifactEntry, i int) string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Strategy %d", i+1)
}
