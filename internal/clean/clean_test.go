package clean_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/internal/clean"
	"github.com/jack-wz/utest/internal/document"
)

func el(id, typ, text string, page int, x, y, conf float64) document.Element {
	return document.Element{
		ID:   id,
		Type: typ,
		Text: text,
		Metadata: map[string]any{
			document.MetaPageNumber:  page,
			document.MetaConfidence:  conf,
			document.MetaCoordinates: document.Coordinates{X: x, Y: y, Width: 500, Height: 200},
		},
	}
}

func TestClean(t *testing.T) {
	in := []document.Element{
		el("a", document.TypeNarrativeText, "  The   quarterly\n\treport  ", 1, 10, 10, 0.9),
		el("b", document.TypeTitle, " short \n", 1, 10, 10, 0.9),
		el("c", document.TypeTitle, "exactly10!", 1, 10, 10, 0.9),
	}

	out := clean.Clean(in, 10)
	require.Len(t, out, 2)

	assert.Equal(t, "The quarterly report", out[0].Text)
	assert.Equal(t, "  The   quarterly\n\treport  ", out[0].OriginalText)
	assert.Equal(t, true, out[0].Metadata["cleaned"])
	assert.Equal(t, 26, out[0].Metadata["original_length"])
	assert.Equal(t, 20, out[0].Metadata["cleaned_length"])
	assert.Equal(t, "c", out[1].ID)

	assert.Equal(t, "  The   quarterly\n\treport  ", in[0].Text)
	assert.NotContains(t, in[0].Metadata, "cleaned")
}

func TestClean_CountsRunes(t *testing.T) {
	out := clean.Clean([]document.Element{el("zh", document.TypeText, "季度财务报告摘要内容", 1, 0, 0, 0.9)}, 10)
	assert.Len(t, out, 1)
}

func TestMerge(t *testing.T) {
	t.Run("CloseSameType", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			el("a", document.TypeNarrativeText, "first", 1, 100, 200, 0.97),
			el("b", document.TypeNarrativeText, "second", 1, 120, 210, 0.88),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "a", out[0].ID)
		assert.Equal(t, "first second", out[0].Text)
		assert.Equal(t, 0.88, out[0].Confidence())
		assert.Equal(t, []string{"a", "b"}, out[0].Metadata[document.MetaMergedFrom])
	})

	t.Run("CleanedLengthsFollowJoinedText", func(t *testing.T) {
		cleaned := clean.Clean([]document.Element{
			el("a", document.TypeNarrativeText, "first   part", 1, 100, 200, 0.97),
			el("b", document.TypeNarrativeText, " second\tpart ", 1, 110, 205, 0.9),
		}, 1)
		require.Len(t, cleaned, 2)

		out := clean.Merge(cleaned)
		require.Len(t, out, 1)
		assert.Equal(t, "first part second part", out[0].Text)
		assert.Equal(t, "first   part  second\tpart ", out[0].OriginalText)
		assert.Equal(t, 22, out[0].Metadata["cleaned_length"])
		assert.Equal(t, 26, out[0].Metadata["original_length"])
	})

	t.Run("FarApart", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			el("a", document.TypeNarrativeText, "first", 1, 100, 200, 0.97),
			el("b", document.TypeNarrativeText, "second", 1, 300, 200, 0.88),
		})
		assert.Len(t, out, 2)
	})

	t.Run("DifferentType", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			el("a", document.TypeTitle, "first", 1, 100, 200, 0.97),
			el("b", document.TypeNarrativeText, "second", 1, 100, 200, 0.88),
		})
		assert.Len(t, out, 2)
	})

	t.Run("DifferentPage", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			el("a", document.TypeNarrativeText, "first", 1, 100, 200, 0.97),
			el("b", document.TypeNarrativeText, "second", 2, 100, 200, 0.88),
		})
		assert.Len(t, out, 2)
	})

	t.Run("KeepsOrderAroundGroup", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			el("a", document.TypeNarrativeText, "one", 1, 100, 200, 0.9),
			el("t", document.TypeTitle, "heading", 1, 100, 500, 0.9),
			el("b", document.TypeNarrativeText, "two", 1, 110, 220, 0.9),
		})
		require.Len(t, out, 2)
		assert.Equal(t, "one two", out[0].Text)
		assert.Equal(t, "t", out[1].ID)
	})

	t.Run("NoCoordinates", func(t *testing.T) {
		out := clean.Merge([]document.Element{
			{ID: "a", Type: document.TypeText, Text: "x", Metadata: map[string]any{}},
			{ID: "b", Type: document.TypeText, Text: "y", Metadata: map[string]any{}},
		})
		assert.Len(t, out, 2)
	})
}
