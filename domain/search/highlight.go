package search

import (
	"sort"
	"strings"
)

// Default highlight markers.
const (
	DefaultMarkOpen  = "‹mark›"
	DefaultMarkClose = "‹/mark›"
)

// Highlighter wraps query terms in configurable markers. Matching is
// case- and diacritic-folded; terms shorter than two runes are ignored;
// overlapping matches merge into one span. SKU fields are never passed
// through the highlighter by the engine.
type Highlighter struct {
	terms     []string
	markOpen  string
	markClose string
}

// NewHighlighter creates a Highlighter for the query text with the default
// markers.
func NewHighlighter(queryText string) Highlighter {
	return NewHighlighterWithMarkers(queryText, DefaultMarkOpen, DefaultMarkClose)
}

// NewHighlighterWithMarkers creates a Highlighter with custom markers.
func NewHighlighterWithMarkers(queryText, markOpen, markClose string) Highlighter {
	return Highlighter{
		terms:     Terms(queryText),
		markOpen:  markOpen,
		markClose: markClose,
	}
}

// span is a half-open [start, end) rune range.
type span struct {
	start int
	end   int
}

// Apply returns the text with all term occurrences wrapped. The original
// casing is preserved; matching happens on the folded form.
func (h Highlighter) Apply(text string) string {
	if text == "" || len(h.terms) == 0 {
		return text
	}

	runes := []rune(text)
	folded := []rune(Fold(text))
	// Folding can only drop runes (combining marks); when lengths diverge
	// the rune offsets no longer line up, so fall back to unfolded matching.
	if len(folded) != len(runes) {
		folded = []rune(strings.ToLower(text))
	}

	var spans []span
	for _, term := range h.terms {
		t := []rune(term)
		for i := 0; i+len(t) <= len(folded); i++ {
			if equalRunes(folded[i:i+len(t)], t) {
				spans = append(spans, span{start: i, end: i + len(t)})
			}
		}
	}
	if len(spans) == 0 {
		return text
	}

	merged := mergeSpans(spans)
	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(string(runes[prev:s.start]))
		b.WriteString(h.markOpen)
		b.WriteString(string(runes[s.start:s.end]))
		b.WriteString(h.markClose)
		prev = s.end
	}
	b.WriteString(string(runes[prev:]))
	return b.String()
}

// Fields highlights the highlightable fields of a hit: name, description,
// and use_category. Unchanged fields are omitted.
func (h Highlighter) Fields(name, description, useCategory string) map[string]string {
	out := make(map[string]string, 3)
	if v := h.Apply(name); v != name {
		out["name"] = v
	}
	if v := h.Apply(description); v != description {
		out["description"] = v
	}
	if v := h.Apply(useCategory); v != useCategory {
		out["use_category"] = v
	}
	return out
}

func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
