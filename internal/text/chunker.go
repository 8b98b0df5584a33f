// Package text aggregates document elements into retrieval-sized chunks and
// maintains chunk text after creation.
package text

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/graph"
)

// ContextWindow is the number of runes borrowed from each neighbour when
// context merging is enabled.
const ContextWindow = 200

type Options struct {
	Strategy     string
	ChunkSize    int
	ContextMerge bool
}

// chunkBuilder accumulates elements until flushed into a chunk. Size is the
// rune length of the space-joined text.
type chunkBuilder struct {
	text     strings.Builder
	size     int
	elements []document.Element
}

func (b *chunkBuilder) empty() bool { return len(b.elements) == 0 }

// sizeWith returns the builder size after appending el.
func (b *chunkBuilder) sizeWith(el document.Element) int {
	n := utf8.RuneCountInString(el.Text)
	if b.empty() {
		return n
	}
	return b.size + 1 + n
}

func (b *chunkBuilder) add(el document.Element) {
	if !b.empty() {
		b.text.WriteString(" ")
	}
	b.size = b.sizeWith(el)
	b.text.WriteString(el.Text)
	b.elements = append(b.elements, el)
}

func (b *chunkBuilder) reset() {
	b.text.Reset()
	b.size = 0
	b.elements = nil
}

// Chunk groups elements into chunks under opts.Strategy. Unknown strategies
// chunk by title. Chunk order is flush order and chunk_index is dense from 0.
func Chunk(documentID string, elements []document.Element, opts Options) []document.Chunk {
	size := opts.ChunkSize
	if size <= 0 {
		size = graph.DefaultChunkSize
	}

	var chunks []document.Chunk
	switch opts.Strategy {
	case graph.ChunkByPage:
		chunks = byPage(documentID, elements)
	case graph.ChunkFixedSize:
		chunks = greedy(documentID, elements, size, graph.ChunkFixedSize, false)
	default:
		chunks = greedy(documentID, elements, size, graph.ChunkByTitle, true)
	}

	if opts.ContextMerge {
		chunks = ContextMerge(chunks)
	}
	return chunks
}

// greedy fills a chunk until the next element would overflow size. With
// titleBreaks set, a Title element also starts a new chunk.
func greedy(documentID string, elements []document.Element, size int, strategy string, titleBreaks bool) []document.Chunk {
	var chunks []document.Chunk
	var b chunkBuilder

	flush := func() {
		if b.empty() {
			return
		}
		chunks = append(chunks, newChunk(documentID, len(chunks), strategy, &b))
		b.reset()
	}

	for _, el := range elements {
		if !b.empty() {
			if (titleBreaks && el.Type == document.TypeTitle) || b.sizeWith(el) > size {
				flush()
			}
		}
		b.add(el)
	}
	flush()
	return chunks
}

func byPage(documentID string, elements []document.Element) []document.Chunk {
	var order []int
	pages := make(map[int]*chunkBuilder)
	for _, el := range elements {
		p := el.Page()
		if p == 0 {
			p = 1
		}
		b, ok := pages[p]
		if !ok {
			b = &chunkBuilder{}
			pages[p] = b
			order = append(order, p)
		}
		b.add(el)
	}

	chunks := make([]document.Chunk, 0, len(order))
	for _, p := range order {
		c := newChunk(documentID, len(chunks), graph.ChunkByPage, pages[p])
		c.Metadata[document.MetaPageNumber] = p
		chunks = append(chunks, c)
	}
	return chunks
}

func newChunk(documentID string, index int, strategy string, b *chunkBuilder) document.Chunk {
	ids := make([]string, 0, len(b.elements))
	for _, el := range b.elements {
		ids = append(ids, el.ID)
	}
	text := b.text.String()
	return document.Chunk{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		Text:           text,
		SourceElements: ids,
		ChunkIndex:     index,
		TokenCount:     TokenCount(text),
		Metadata: map[string]any{
			"chunk_strategy":        strategy,
			"chunk_size":            b.size,
			"element_count":         len(b.elements),
			document.MetaPageNumber: b.elements[0].Page(),
		},
		EditHistory: []document.ChunkEdit{},
	}
}

// TokenCount is the whitespace-delimited word count of s. It is a cheap
// proxy, not a model tokenizer.
func TokenCount(s string) int {
	return len(strings.Fields(s))
}

// ContextMerge returns copies of chunks whose text is widened with the last
// ContextWindow runes of the previous chunk and the first ContextWindow runes
// of the next. Neighbour text is taken from the input, never from already
// widened chunks. A widened chunk keeps the id of the chunk it replaces, so
// only the widened form is ever stored. A single chunk is returned unchanged.
func ContextMerge(chunks []document.Chunk) []document.Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]document.Chunk, len(chunks))
	for i, c := range chunks {
		var sb strings.Builder
		if i > 0 {
			sb.WriteString(tail(chunks[i-1].Text, ContextWindow))
			sb.WriteString(" ")
		}
		sb.WriteString(c.Text)
		if i < len(chunks)-1 {
			sb.WriteString(" ")
			sb.WriteString(head(chunks[i+1].Text, ContextWindow))
		}

		merged := c
		merged.Text = sb.String()
		merged.TokenCount = TokenCount(merged.Text)
		merged.SourceElements = append([]string(nil), c.SourceElements...)
		merged.Metadata = make(map[string]any, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			merged.Metadata[k] = v
		}
		merged.Metadata["context_merged"] = true
		merged.Metadata["context_window"] = ContextWindow
		out[i] = merged
	}
	return out
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
