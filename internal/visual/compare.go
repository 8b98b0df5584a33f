package visual

import "github.com/jack-wz/utest/internal/document"

const ReasonTextCleaning = "text_cleaning"

type Change struct {
	ElementID string `json:"element_id"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Reason    string `json:"reason"`
}

type Comparison struct {
	DocumentID     string             `json:"document_id"`
	BeforeElements []document.Element `json:"before_elements"`
	AfterElements  []document.Element `json:"after_elements"`
	Changes        []Change           `json:"changes"`
}

// Compare rebuilds the pre-cleaning elements from their original text and
// lists every element whose text changed.
func Compare(doc *document.ProcessedDocument) *Comparison {
	cmp := &Comparison{
		DocumentID:     doc.ID,
		BeforeElements: make([]document.Element, 0, len(doc.Elements)),
		AfterElements:  make([]document.Element, 0, len(doc.Elements)),
		Changes:        []Change{},
	}
	for _, el := range doc.Elements {
		before := el.Clone()
		if el.OriginalText != "" {
			before.Text = el.OriginalText
		}
		before.OriginalText = ""
		cmp.BeforeElements = append(cmp.BeforeElements, before)
		cmp.AfterElements = append(cmp.AfterElements, el)

		if el.OriginalText != "" && el.OriginalText != el.Text {
			cmp.Changes = append(cmp.Changes, Change{
				ElementID: el.ID,
				Before:    el.OriginalText,
				After:     el.Text,
				Reason:    ReasonTextCleaning,
			})
		}
	}
	return cmp
}
