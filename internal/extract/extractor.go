// Package extract turns source documents into typed, metadata-rich elements.
//
// Classification is a simulation: the source is cut into fixed-size rune
// spans and each span takes the next type of the strategy's rotation. Type
// cycling, chunk_index and page_number are deterministic in the input length
// and strategy. Confidence and coordinates are simulated signals.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/graph"
)

// Profile is the span size and type rotation of one extraction strategy.
type Profile struct {
	SpanSize int
	Types    []string
}

var profiles = map[string]Profile{
	graph.StrategyHiRes:   {800, []string{document.TypeTitle, document.TypeNarrativeText, document.TypeTable, document.TypeListItem}},
	graph.StrategyFast:    {1500, []string{document.TypeNarrativeText, document.TypeText}},
	graph.StrategyOCROnly: {500, []string{document.TypeUncategorized, document.TypeText}},
	graph.StrategyAuto:    {1000, []string{document.TypeTitle, document.TypeNarrativeText, document.TypeListItem, document.TypeTable, document.TypeHeader}},
}

// ProfileFor returns the profile of strategy, falling back to auto.
func ProfileFor(strategy string) Profile {
	if p, ok := profiles[strategy]; ok {
		return p
	}
	return profiles[graph.StrategyAuto]
}

const (
	spansPerPage   = 3
	languageWindow = 100
	spanWidth      = 500
	spanHeight     = 200
	slotHeight     = 250
)

// Options selects the strategy and optional sub-metadata of an extraction.
type Options struct {
	Strategy string
	Metadata graph.MetadataOptions
}

// SourceReader resolves a source path to its bytes.
type SourceReader interface {
	Read(name string) ([]byte, error)
}

type Extractor struct {
	sources SourceReader
}

func New(sources SourceReader) *Extractor {
	return &Extractor{sources: sources}
}

// Extract reads sourcePath and classifies its content. Read failures are
// returned unchanged; callers decide whether to substitute a placeholder.
func (x *Extractor) Extract(ctx context.Context, sourcePath string, opts Options) (*document.ProcessedDocument, error) {
	data, err := x.sources.Read(sourcePath)
	if err != nil {
		return nil, err
	}
	return x.FromBytes(ctx, sourcePath, data, opts)
}

// FromBytes classifies already-loaded content as if it were read from sourcePath.
func (x *Extractor) FromBytes(ctx context.Context, sourcePath string, data []byte, opts Options) (*document.ProcessedDocument, error) {
	strategy := opts.Strategy
	if _, ok := profiles[strategy]; !ok {
		strategy = graph.StrategyAuto
	}
	profile := profiles[strategy]

	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	runes := []rune(content)

	elements := make([]document.Element, 0, len(runes)/profile.SpanSize+1)
	for i, start := 0, 0; start < len(runes); i, start = i+1, start+profile.SpanSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+profile.SpanSize, len(runes))
		span := runes[start:end]
		elType := profile.Types[i%len(profile.Types)]

		meta := map[string]any{
			"file_path":              sourcePath,
			document.MetaChunkIndex:  i,
			"processing_strategy":    strategy,
			"element_type":           elType,
			document.MetaLanguage:    detectLanguage(span),
			document.MetaCoordinates: simulateCoordinates(i),
			document.MetaPageNumber:  i/spansPerPage + 1,
			document.MetaConfidence:  simulateConfidence(),
		}
		attachOptional(meta, elType, span, opts.Metadata)

		elements = append(elements, document.Element{
			ID:       uuid.NewString(),
			Type:     elType,
			Text:     string(span),
			Metadata: meta,
		})
	}

	pages := 0
	if n := len(elements); n > 0 {
		pages = (n-1)/spansPerPage + 1
	}

	slog.DebugContext(ctx, "extracted elements", "path", sourcePath, "strategy", strategy, "count", len(elements))

	return &document.ProcessedDocument{
		ID:         uuid.NewString(),
		Filename:   filepath.Base(sourcePath),
		SourcePath: sourcePath,
		Strategy:   strategy,
		Elements:   elements,
		Metadata: map[string]any{
			"total_elements": len(elements),
			"total_chars":    len(runes),
			"pages":          pages,
			"file_size":      len(data),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Placeholder builds the single-element document used when a datasource in
// demo mode cannot be read.
func Placeholder(sourcePath, strategy string) *document.ProcessedDocument {
	if _, ok := profiles[strategy]; !ok {
		strategy = graph.StrategyAuto
	}
	name := filepath.Base(sourcePath)
	return &document.ProcessedDocument{
		ID:         uuid.NewString(),
		Filename:   name,
		SourcePath: sourcePath,
		Strategy:   strategy,
		Elements: []document.Element{{
			ID:   uuid.NewString(),
			Type: document.TypeNarrativeText,
			Text: fmt.Sprintf("Demo content for %s processed with the %s strategy. "+
				"The platform extracts PDF, DOCX, HTML and EML documents into typed elements.", name, strategy),
			Metadata: map[string]any{
				"file_path":             sourcePath,
				document.MetaChunkIndex: 0,
				"processing_strategy":   strategy,
				"element_type":          document.TypeNarrativeText,
				document.MetaLanguage:   "en",
				document.MetaPageNumber: 1,
				document.MetaConfidence: 0.95,
				document.MetaDemoMode:   true,
			},
		}},
		Metadata:  map[string]any{"total_elements": 1, "pages": 1, document.MetaDemoMode: true},
		CreatedAt: time.Now().UTC(),
	}
}

func detectLanguage(span []rune) string {
	for _, r := range span[:min(languageWindow, len(span))] {
		if r >= 0x4E00 && r <= 0x9FFF {
			return "zh"
		}
	}
	return "en"
}

// simulateCoordinates places span i in one of three vertical slots of its page.
func simulateCoordinates(i int) document.Coordinates {
	return document.Coordinates{
		X:      float64(10 + rand.IntN(91)),
		Y:      float64(50 + (i%spansPerPage)*slotHeight + rand.IntN(41)),
		Width:  spanWidth,
		Height: spanHeight,
	}
}

func simulateConfidence() float64 {
	return math.Round((0.85+rand.Float64()*0.14)*1000) / 1000
}
