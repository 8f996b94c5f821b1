package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectionOf(t *testing.T, codes ...string) ArtifactCollection {
	t.Helper()
	var c ArtifactCollection
	for _, code := range codes {
		next, ok := c.Add(code, ArtifactMeta{Source: SourceToolOutput})
		require.True(t, ok, "adding %q", code)
		c = next
	}
	return c
}

func TestArtifactCollection_AddDeduplicates(t *testing.T) {
	c := collectionOf(t, testStrategyA)

	again, ok := c.Add(testStrategyA, ArtifactMeta{})
	assert.False(t, ok)
	assert.Equal(t, 1, again.Len())

	_, ok = c.Add("", ArtifactMeta{})
	assert.False(t, ok)
}

func TestArtifactCollection_ValueSemantics(t *testing.T) {
	c1 := collectionOf(t, testStrategyA)
	c2, _ := c1.Add(testStrategyB, ArtifactMeta{})

	assert.Equal(t, 1, c1.Len())
	assert.Equal(t, 2, c2.Len())

	entries := c2.Entries()
	entries[0].Code = "changed"
	assert.Equal(t, testStrategyA, c2.Entries()[0].Code)
}

func TestArtifactCollection_NamesAndActive(t *testing.T) {
	c := collectionOf(t, testStrategyA, testStrategyB)
	entries := c.Entries()

	assert.Equal(t, "Strategy 1", entries[0].Name)
	assert.Equal(t, "Strategy 2", entries[1].Name)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, entries[1].ID, c.ActiveID())
	assert.Equal(t, testStrategyB, c.ActiveCode())
}

func TestArtifactCollection_RemoveActiveSelectsComposite(t *testing.T) {
	c := collectionOf(t, testStrategyA, testStrategyB, testStrategyC)
	active := c.ActiveID()

	c, ok := c.Remove(active)
	require.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, CompositeID, c.ActiveID())
	assert.Equal(t, c.Composite(), c.ActiveCode())

	for _, e := range c.Entries() {
		c, _ = c.Remove(e.ID)
	}
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "", c.ActiveID())
	assert.Equal(t, "", c.ActiveCode())

	_, ok = c.Remove("missing")
	assert.False(t, ok)
}

func TestArtifactCollection_RemoveInactiveKeepsSelection(t *testing.T) {
	c := collectionOf(t, testStrategyA, testStrategyB)
	first := c.Entries()[0].ID
	active := c.ActiveID()

	c, ok := c.Remove(first)
	require.True(t, ok)
	assert.Equal(t, active, c.ActiveID())
}

func TestArtifactCollection_Select(t *testing.T) {
	var empty ArtifactCollection
	_, err := empty.Select(CompositeID)
	assert.Error(t, err)

	c := collectionOf(t, testStrategyA, testStrategyB)
	first := c.Entries()[0].ID

	sel, err := c.Select(first)
	require.NoError(t, err)
	assert.Equal(t, testStrategyA, sel.ActiveCode())

	sel, err = sel.Select(CompositeID)
	require.NoError(t, err)
	assert.Equal(t, CompositeID, sel.ActiveID())

	same, err := sel.Select("nope")
	assert.Error(t, err)
	assert.Equal(t, CompositeID, same.ActiveID())
}

func TestSynthesizeComposite(t *testing.T) {
	assert.Equal(t, "", SynthesizeComposite(nil))

	c := collectionOf(t, testStrategyA, testStrategyB, testStrategyC)
	out := c.Composite()

	for _, want := range []string{
		"// ---- Strategy 1 ----",
		"// ---- Strategy 3 ----",
		"S1_Buy = Cross(MA(C, 10), MA(C, 30));",
		"S2_Sell = RSI(14) > 70;",
		"S3_Short = 0;",
		"VoteThreshold = 2;",
		"BuyVotes = S1_Buy + S2_Buy + S3_Buy;",
		"Buy = BuyVotes >= VoteThreshold;",
		"ShortVotes = S3_Short;",
		"Buy = ExRem(Buy, Sell);",
	} {
		assert.Contains(t, out, want)
	}
	// identifiers that merely contain a signal name are left alone
	assert.NotContains(t, out, "S1_BuyVotes")
}

func TestSynthesizeComposite_MissingSignalIsZero(t *testing.T) {
	c := collectionOf(t, "Buy = C > O;", "Buy = C > Ref(C, -1);")
	out := c.Composite()

	assert.Contains(t, out, "Sell = 0;")
	assert.Contains(t, out, "Short = 0;")
	assert.Contains(t, out, "Cover = 0;")
	assert.Contains(t, out, "VoteThreshold = 2;")
}

func TestSynthesizeComposite_Deterministic(t *testing.T) {
	c := collectionOf(t, testStrategyA, testStrategyB)
	assert.Equal(t, c.Composite(), SynthesizeComposite(c.Entries()))

	// the output depends on code and order only, not on ids or timestamps
	other := collectionOf(t, testStrategyA, testStrategyB)
	assert.Equal(t, c.Composite(), other.Composite())

	reversed := collectionOf(t, testStrategyB, testStrategyA)
	assert.NotEqual(t, c.Composite(), reversed.Composite())
	assert.True(t, strings.HasPrefix(reversed.Composite(), "// Composite strategy: majority vote of 2 strategies"))
}

func TestSynthesizeComposite_CaseInsensitiveSignals(t *testing.T) {
	c := collectionOf(t, "BUY = 1;", "SELL = Close < MA(Close,10);", "buy = C > O; Cover = 1;")
	out := c.Composite()

	for _, want := range []string{
		"S1_Buy = 1;",
		"S2_Sell = Close < MA(Close,10);",
		"S3_Buy = C > O; S3_Cover = 1;",
		"BuyVotes = S1_Buy + S3_Buy;",
		"SellVotes = S2_Sell;",
		"CoverVotes = S3_Cover;",
		"Short = 0;",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "BUY")
	assert.NotContains(t, out, "SELL")
	assert.NotContains(t, out, "Buy = 0;")
}
