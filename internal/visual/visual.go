// Package visual derives page layouts and before/after comparisons from a
// processed document.
package visual

import (
	"math"
	"sort"

	"github.com/jack-wz/utest/internal/document"
)

// US Letter in points.
const (
	PageWidth  = 612
	PageHeight = 792
)

// Offset applied to every box of the processed layout.
const (
	nudgeX = 2
	nudgeY = 1
)

const previewRunes = 120

type Box struct {
	ElementID   string               `json:"element_id"`
	Type        string               `json:"type"`
	Preview     string               `json:"text_preview"`
	Coordinates document.Coordinates `json:"coordinates"`
	Confidence  float64              `json:"confidence"`
	Processed   bool                 `json:"processed"`
}

type Page struct {
	Number   int   `json:"page_number"`
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Elements []Box `json:"elements"`
}

type Layout struct {
	Pages []Page `json:"pages"`
}

type Visualization struct {
	DocumentID      string            `json:"document_id"`
	OriginalLayout  Layout            `json:"original_layout"`
	ProcessedLayout Layout            `json:"processed_layout"`
	ElementMapping  map[string]string `json:"element_mapping"`
}

// Visualize groups elements by page and renders bounding boxes clamped into
// the page. The processed layout shifts each box slightly and marks it
// processed. Element ids map to themselves.
func Visualize(doc *document.ProcessedDocument) *Visualization {
	pages := make(map[int][]document.Element)
	for _, el := range doc.Elements {
		p := el.Page()
		if p < 1 {
			p = 1
		}
		pages[p] = append(pages[p], el)
	}
	numbers := make([]int, 0, len(pages))
	for p := range pages {
		numbers = append(numbers, p)
	}
	sort.Ints(numbers)

	v := &Visualization{
		DocumentID:      doc.ID,
		OriginalLayout:  Layout{Pages: make([]Page, 0, len(numbers))},
		ProcessedLayout: Layout{Pages: make([]Page, 0, len(numbers))},
		ElementMapping:  make(map[string]string, len(doc.Elements)),
	}

	for _, n := range numbers {
		orig := Page{Number: n, Width: PageWidth, Height: PageHeight}
		proc := Page{Number: n, Width: PageWidth, Height: PageHeight}
		for slot, el := range pages[n] {
			c, ok := el.Coords()
			if !ok {
				c = document.Coordinates{X: 50, Y: float64(50 + (slot%3)*250), Width: 500, Height: 200}
			}
			box := Box{
				ElementID:   el.ID,
				Type:        el.Type,
				Preview:     preview(el.Text),
				Coordinates: clamp(c),
				Confidence:  el.Confidence(),
			}
			orig.Elements = append(orig.Elements, box)

			nudged := box
			nudged.Coordinates = clamp(document.Coordinates{X: c.X + nudgeX, Y: c.Y + nudgeY, Width: c.Width, Height: c.Height})
			nudged.Processed = true
			proc.Elements = append(proc.Elements, nudged)

			v.ElementMapping[el.ID] = el.ID
		}
		v.OriginalLayout.Pages = append(v.OriginalLayout.Pages, orig)
		v.ProcessedLayout.Pages = append(v.ProcessedLayout.Pages, proc)
	}
	return v
}

// clamp keeps a box inside the page, shrinking it when it is larger.
func clamp(c document.Coordinates) document.Coordinates {
	c.Width = math.Min(math.Max(c.Width, 0), PageWidth)
	c.Height = math.Min(math.Max(c.Height, 0), PageHeight)
	c.X = math.Min(math.Max(c.X, 0), PageWidth-c.Width)
	c.Y = math.Min(math.Max(c.Y, 0), PageHeight-c.Height)
	return c
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
