package text

import (
	"strings"
	"time"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/document"
)

const DefaultEditReason = "manual_edit"

// EditChunk returns c with newText applied and one entry appended to its
// edit history. Any stored embedding no longer matches the text, so the
// chunk is flagged embedding_stale.
func EditChunk(c document.Chunk, newText, reason string, at time.Time) (document.Chunk, error) {
	if strings.TrimSpace(newText) == "" {
		return document.Chunk{}, &apperr.ValidationError{Field: "text", Msg: "must not be empty"}
	}
	if reason == "" {
		reason = DefaultEditReason
	}

	history := make([]document.ChunkEdit, len(c.EditHistory), len(c.EditHistory)+1)
	copy(history, c.EditHistory)
	history = append(history, document.ChunkEdit{
		Timestamp:    at.UTC(),
		PreviousText: c.Text,
		NewText:      newText,
		Reason:       reason,
	})

	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["embedding_stale"] = true

	c.Text = newText
	c.TokenCount = TokenCount(newText)
	c.IsEdited = true
	c.EditHistory = history
	c.Metadata = meta
	return c, nil
}
