// Package clean normalizes extracted elements and merges near-duplicates.
package clean

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jack-wz/utest/internal/document"
)

// Merge thresholds in page points between an element and its group anchor.
const (
	MaxDeltaX = 50
	MaxDeltaY = 30
)

// Clean collapses whitespace runs and drops elements whose cleaned text is
// shorter than minLength runes. Kept elements record their pre-cleaning
// text in OriginalText. The input slice is not modified.
func Clean(elements []document.Element, minLength int) []document.Element {
	out := make([]document.Element, 0, len(elements))
	for _, el := range elements {
		text := strings.Join(strings.Fields(el.Text), " ")
		if utf8.RuneCountInString(text) < minLength {
			continue
		}

		c := el.Clone()
		if c.OriginalText == "" {
			c.OriginalText = el.Text
		}
		c.Text = text
		c.Metadata["cleaned"] = true
		c.Metadata["original_length"] = utf8.RuneCountInString(c.OriginalText)
		c.Metadata["cleaned_length"] = utf8.RuneCountInString(text)
		out = append(out, c)
	}
	return out
}

// Merge folds elements into the first earlier element (the anchor) that has
// the same type, sits on the same page and whose bounding-box origin is
// within MaxDeltaX and MaxDeltaY. Merged text is space-joined in original
// order, confidence is the minimum of the group and merged_from lists every
// member id. Elements without coordinates never merge.
func Merge(elements []document.Element) []document.Element {
	type group struct {
		anchor  document.Element
		origin  document.Coordinates
		members []document.Element
	}

	var groups []*group
	for _, el := range elements {
		coords, ok := el.Coords()
		var target *group
		if ok {
			for _, g := range groups {
				if g.anchor.Type == el.Type &&
					g.anchor.Page() == el.Page() &&
					math.Abs(g.origin.X-coords.X) < MaxDeltaX &&
					math.Abs(g.origin.Y-coords.Y) < MaxDeltaY {
					target = g
					break
				}
			}
		}
		if target == nil {
			g := &group{anchor: el, members: []document.Element{el}}
			if ok {
				g.origin = coords
			} else {
				// Sentinel origin that nothing can be within range of.
				g.origin = document.Coordinates{X: math.Inf(1), Y: math.Inf(1)}
			}
			groups = append(groups, g)
			continue
		}
		target.members = append(target.members, el)
	}

	out := make([]document.Element, 0, len(groups))
	for _, g := range groups {
		if len(g.members) == 1 {
			out = append(out, g.anchor)
			continue
		}
		out = append(out, mergeGroup(g.anchor, g.members))
	}
	return out
}

func mergeGroup(anchor document.Element, members []document.Element) document.Element {
	merged := anchor.Clone()

	texts := make([]string, 0, len(members))
	originals := make([]string, 0, len(members))
	ids := make([]string, 0, len(members))
	confidence := math.Inf(1)
	hasConfidence := false
	for _, m := range members {
		texts = append(texts, m.Text)
		orig := m.OriginalText
		if orig == "" {
			orig = m.Text
		}
		originals = append(originals, orig)
		ids = append(ids, m.ID)
		if _, ok := m.Metadata[document.MetaConfidence]; ok {
			confidence = math.Min(confidence, m.Confidence())
			hasConfidence = true
		}
	}

	merged.Text = strings.Join(texts, " ")
	if anchor.OriginalText != "" {
		merged.OriginalText = strings.Join(originals, " ")
	}
	if hasConfidence {
		merged.Metadata[document.MetaConfidence] = confidence
	}
	merged.Metadata[document.MetaMergedFrom] = ids
	if _, ok := merged.Metadata["cleaned_length"]; ok {
		orig := merged.OriginalText
		if orig == "" {
			orig = merged.Text
		}
		merged.Metadata["original_length"] = utf8.RuneCountInString(orig)
		merged.Metadata["cleaned_length"] = utf8.RuneCountInString(merged.Text)
	}
	return merged
}
