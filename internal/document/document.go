// Package document defines the records produced by a pipeline run: extracted
// elements, the processed document that owns them and the chunks built from
// them.
package document

import (
	"time"
)

// Element types emitted by the extractor.
const (
	TypeTitle         = "Title"
	TypeNarrativeText = "NarrativeText"
	TypeTable         = "Table"
	TypeListItem      = "ListItem"
	TypeHeader        = "Header"
	TypeImage         = "Image"
	TypeText          = "Text"
	TypeUncategorized = "UncategorizedText"
)

// Metadata keys shared between the extractor, cleaner, chunker and visualizer.
const (
	MetaPageNumber  = "page_number"
	MetaConfidence  = "confidence"
	MetaCoordinates = "coordinates"
	MetaLanguage    = "language"
	MetaChunkIndex  = "chunk_index"
	MetaMergedFrom  = "merged_from"
	MetaDemoMode    = "demo_mode"
)

// Coordinates is an element bounding box in page points.
type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is a classified fragment of a source document.
type Element struct {
	ID           string         `json:"element_id"`
	Type         string         `json:"type"`
	Text         string         `json:"text"`
	Metadata     map[string]any `json:"metadata"`
	OriginalText string         `json:"original_text,omitempty"`
}

// Page returns the element's page number, or 0 when it has none.
func (e Element) Page() int {
	return intValue(e.Metadata[MetaPageNumber])
}

// Confidence returns the element's confidence score, or 0 when it has none.
func (e Element) Confidence() float64 {
	return floatValue(e.Metadata[MetaConfidence])
}

// Coords returns the element's bounding box. The second return is false when
// the element carries no coordinates.
func (e Element) Coords() (Coordinates, bool) {
	switch c := e.Metadata[MetaCoordinates].(type) {
	case Coordinates:
		return c, true
	case *Coordinates:
		if c == nil {
			return Coordinates{}, false
		}
		return *c, true
	case map[string]any:
		// Records decoded from JSON come back as plain maps.
		return Coordinates{
			X:      floatValue(c["x"]),
			Y:      floatValue(c["y"]),
			Width:  floatValue(c["width"]),
			Height: floatValue(c["height"]),
		}, true
	}
	return Coordinates{}, false
}

// Clone returns a copy of e with its own metadata map.
func (e Element) Clone() Element {
	out := e
	out.Metadata = make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// ProcessedDocument is the extraction output for one source file.
type ProcessedDocument struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	SourcePath  string         `json:"source_path"`
	Strategy    string         `json:"strategy"`
	Elements    []Element      `json:"elements"`
	Metadata    map[string]any `json:"metadata"`
	ExecutionID string         `json:"execution_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ElementIDs returns the set of element ids owned by the document.
func (d *ProcessedDocument) ElementIDs() map[string]bool {
	ids := make(map[string]bool, len(d.Elements))
	for _, e := range d.Elements {
		ids[e.ID] = true
	}
	return ids
}

// ChunkEdit is one entry of a chunk's append-only edit history.
type ChunkEdit struct {
	Timestamp    time.Time `json:"timestamp"`
	PreviousText string    `json:"previous_text"`
	NewText      string    `json:"new_text"`
	Reason       string    `json:"reason"`
}

// Chunk is a retrieval-sized aggregation of one or more elements.
type Chunk struct {
	ID             string         `json:"chunk_id"`
	DocumentID     string         `json:"document_id,omitempty"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata"`
	SourceElements []string       `json:"source_elements"`
	ChunkIndex     int            `json:"chunk_index"`
	TokenCount     int            `json:"token_count"`
	Embedding      []float32      `json:"embedding,omitempty"`
	IsEdited       bool           `json:"is_edited"`
	EditHistory    []ChunkEdit    `json:"edit_history"`
	// Superseded marks a chunk of an earlier chunk set. It stays readable
	// by id but is no longer listed for its document.
	Superseded bool `json:"superseded,omitempty"`
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
