package visual_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/visual"
)

func sample() *document.ProcessedDocument {
	mk := func(id string, page int, c document.Coordinates, text, orig string) document.Element {
		return document.Element{
			ID:           id,
			Type:         document.TypeNarrativeText,
			Text:         text,
			OriginalText: orig,
			Metadata: map[string]any{
				document.MetaPageNumber:  page,
				document.MetaConfidence:  0.9,
				document.MetaCoordinates: c,
			},
		}
	}
	return &document.ProcessedDocument{
		ID: "doc-1",
		Elements: []document.Element{
			mk("a", 2, document.Coordinates{X: 40, Y: 60, Width: 500, Height: 200}, "clean text", "clean   text"),
			mk("b", 1, document.Coordinates{X: 600, Y: 780, Width: 500, Height: 200}, "edge", "edge"),
			mk("c", 1, document.Coordinates{X: 10, Y: 10, Width: 100, Height: 50}, "plain", ""),
		},
	}
}

func TestVisualize(t *testing.T) {
	v := visual.Visualize(sample())

	require.Len(t, v.OriginalLayout.Pages, 2)
	assert.Equal(t, 1, v.OriginalLayout.Pages[0].Number)
	assert.Equal(t, 2, v.OriginalLayout.Pages[1].Number)
	assert.Equal(t, visual.PageWidth, v.OriginalLayout.Pages[0].Width)

	edge := v.OriginalLayout.Pages[0].Elements[0]
	assert.Equal(t, "b", edge.ElementID)
	assert.Equal(t, document.Coordinates{X: 112, Y: 592, Width: 500, Height: 200}, edge.Coordinates)

	orig := v.OriginalLayout.Pages[1].Elements[0]
	proc := v.ProcessedLayout.Pages[1].Elements[0]
	assert.False(t, orig.Processed)
	assert.True(t, proc.Processed)
	assert.Equal(t, orig.Coordinates.X+2, proc.Coordinates.X)
	assert.Equal(t, orig.Coordinates.Y+1, proc.Coordinates.Y)

	for _, page := range v.ProcessedLayout.Pages {
		for _, b := range page.Elements {
			assert.LessOrEqual(t, b.Coordinates.X+b.Coordinates.Width, float64(visual.PageWidth))
			assert.LessOrEqual(t, b.Coordinates.Y+b.Coordinates.Height, float64(visual.PageHeight))
		}
	}

	assert.Equal(t, map[string]string{"a": "a", "b": "b", "c": "c"}, v.ElementMapping)
}

func TestVisualize_MissingCoordinates(t *testing.T) {
	doc := &document.ProcessedDocument{Elements: []document.Element{{ID: "x", Type: document.TypeText, Metadata: map[string]any{}}}}
	v := visual.Visualize(doc)
	require.Len(t, v.OriginalLayout.Pages, 1)
	assert.Equal(t, 1, v.OriginalLayout.Pages[0].Number)
	assert.Equal(t, 50.0, v.OriginalLayout.Pages[0].Elements[0].Coordinates.X)
}

func TestCompare(t *testing.T) {
	cmp := visual.Compare(sample())

	require.Len(t, cmp.Changes, 1)
	assert.Equal(t, visual.Change{ElementID: "a", Before: "clean   text", After: "clean text", Reason: "text_cleaning"}, cmp.Changes[0])

	require.Len(t, cmp.BeforeElements, 3)
	assert.Equal(t, "clean   text", cmp.BeforeElements[0].Text)
	assert.Equal(t, "plain", cmp.BeforeElements[2].Text)
	assert.Equal(t, "clean text", cmp.AfterElements[0].Text)
}
