package extract

import (
	"strings"

	"github.com/jack-wz/utest/internal/document"
	"github.com/jack-wz/utest/internal/graph"
)

func attachOptional(meta map[string]any, elType string, span []rune, opts graph.MetadataOptions) {
	if opts.Font && isTextual(elType) {
		meta["font"] = fontMetadata(elType)
	}
	if opts.Table && elType == document.TypeTable {
		meta["table"] = tableMetadata(string(span))
	}
	if opts.Image && elType == document.TypeImage {
		meta["image"] = map[string]any{
			"format": "png",
			"width":  spanWidth,
			"height": spanHeight,
		}
	}
}

func isTextual(elType string) bool {
	switch elType {
	case document.TypeTable, document.TypeImage:
		return false
	}
	return true
}

func fontMetadata(elType string) map[string]any {
	size, bold := 11, false
	switch elType {
	case document.TypeTitle:
		size, bold = 18, true
	case document.TypeHeader:
		size, bold = 14, true
	}
	return map[string]any{"family": "Helvetica", "size": size, "bold": bold}
}

// tableMetadata estimates the grid of a table span: one row per non-empty
// line, columns from the widest row split on tabs, pipes or commas.
func tableMetadata(text string) map[string]any {
	rows, cols := 0, 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows++
		cells := strings.FieldsFunc(line, func(r rune) bool { return r == '\t' || r == '|' || r == ',' })
		cols = max(cols, len(cells))
	}
	return map[string]any{"rows": max(rows, 1), "columns": max(cols, 1)}
}
