package search

import (
	"fmt"
	"sort"
	"time"

	"github.com/severstroy/matcat/domain/material"
)

// Hit is one search result: a material, its score, and optional per-field
// highlighted text.
type Hit struct {
	material   material.Material
	score      float64
	highlights map[string]string
}

// NewHit creates a Hit.
func NewHit(m material.Material, score float64) Hit {
	return Hit{material: m, score: score}
}

// Material returns the matched material.
func (h Hit) Material() material.Material { return h.material }

// Score returns the final (fused) score.
func (h Hit) Score() float64 { return h.score }

// Highlights returns the per-field highlighted text, keyed by field name.
func (h Hit) Highlights() map[string]string {
	cp := make(map[string]string, len(h.highlights))
	for k, v := range h.highlights {
		cp[k] = v
	}
	return cp
}

// WithHighlights returns a copy carrying highlighted field text.
func (h Hit) WithHighlights(highlights map[string]string) Hit {
	cp := make(map[string]string, len(highlights))
	for k, v := range highlights {
		cp[k] = v
	}
	h.highlights = cp
	return h
}

// Response is the outcome of an advanced search.
type Response struct {
	hits       []Hit
	total      int64
	hasTotal   bool
	nextCursor string
	degraded   bool
	mode       Mode
	duration   time.Duration
}

// NewResponse creates a Response.
func NewResponse(hits []Hit, mode Mode) Response {
	return Response{hits: append([]Hit(nil), hits...), mode: mode}
}

// Hits returns the result page.
func (r Response) Hits() []Hit { return append([]Hit(nil), r.hits...) }

// Count returns the number of hits in this page.
func (r Response) Count() int { return len(r.hits) }

// Total returns the exact total and whether it was computed.
func (r Response) Total() (int64, bool) { return r.total, r.hasTotal }

// NextCursor returns the cursor for the next page, empty when exhausted.
func (r Response) NextCursor() string { return r.nextCursor }

// Degraded reports whether one hybrid backend was unavailable.
func (r Response) Degraded() bool { return r.degraded }

// Mode returns the mode that produced this response.
func (r Response) Mode() Mode { return r.mode }

// Duration returns the engine-side elapsed time.
func (r Response) Duration() time.Duration { return r.duration }

// WithTotal returns a copy carrying an exact total.
func (r Response) WithTotal(total int64) Response {
	r.total = total
	r.hasTotal = true
	return r
}

// WithNextCursor returns a copy carrying the next-page cursor.
func (r Response) WithNextCursor(cursor string) Response {
	r.nextCursor = cursor
	return r
}

// WithDegraded returns a copy flagged as degraded.
func (r Response) WithDegraded() Response {
	r.degraded = true
	return r
}

// WithDuration returns a copy carrying the elapsed time.
func (r Response) WithDuration(d time.Duration) Response {
	r.duration = d
	return r
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	text   string
	source SuggestionSource
}

// SuggestionSource identifies where a suggestion came from.
type SuggestionSource string

// SuggestionSource values.
const (
	SuggestionQuery    SuggestionSource = "query"
	SuggestionMaterial SuggestionSource = "material"
	SuggestionCategory SuggestionSource = "category"
)

// NewSuggestion creates a Suggestion.
func NewSuggestion(text string, source SuggestionSource) Suggestion {
	return Suggestion{text: text, source: source}
}

// Text returns the suggestion text.
func (s Suggestion) Text() string { return s.text }

// Source returns the suggestion source.
func (s Suggestion) Source() SuggestionSource { return s.source }

// SortScored orders a fused list by the given sort keys. The sort is stable
// and the final implicit key is the material id ascending.
func SortScored(items []material.Scored, sorts []Sort) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareScored(items[i], items[j], s.Field())
			if cmp == 0 {
				continue
			}
			if s.Descending() {
				return cmp > 0
			}
			return cmp < 0
		}
		return items[i].Material().ID() < items[j].Material().ID()
	})
}

// CursorFor builds the cursor marking the position after the given item.
func CursorFor(item material.Scored, sorts []Sort) Cursor {
	keys := make([]string, len(sorts))
	for i, s := range sorts {
		keys[i] = sortKeyValue(item, s.Field())
	}
	return NewCursor(keys, item.Material().ID())
}

// AfterCursor returns the suffix of a sorted list strictly after the cursor
// position. The last id is authoritative; if the row vanished between pages
// the sort key values locate the closest following position.
func AfterCursor(items []material.Scored, cur Cursor, sorts []Sort) []material.Scored {
	for i, item := range items {
		if item.Material().ID() == cur.LastID() {
			return items[i+1:]
		}
	}
	keys := cur.SortKeys()
	for i, item := range items {
		if tupleAfter(item, keys, cur.LastID(), sorts) {
			return items[i:]
		}
	}
	return nil
}

func tupleAfter(item material.Scored, keys []string, lastID string, sorts []Sort) bool {
	for i, s := range sorts {
		if i >= len(keys) {
			break
		}
		v := sortKeyValue(item, s.Field())
		if v == keys[i] {
			continue
		}
		if s.Descending() {
			return v < keys[i]
		}
		return v > keys[i]
	}
	return item.Material().ID() > lastID
}

func compareScored(a, b material.Scored, field SortField) int {
	switch field {
	case SortRelevance:
		return compareFloat(a.Score(), b.Score())
	case SortName:
		return compareString(Fold(a.Material().Name()), Fold(b.Material().Name()))
	case SortCreatedAt:
		return compareTime(a.Material().CreatedAt(), b.Material().CreatedAt())
	case SortUpdatedAt:
		return compareTime(a.Material().UpdatedAt(), b.Material().UpdatedAt())
	case SortUseCategory:
		return compareString(Fold(a.Material().UseCategory()), Fold(b.Material().UseCategory()))
	case SortUnit:
		return compareString(Fold(a.Material().Unit()), Fold(b.Material().Unit()))
	case SortSKU:
		return compareString(a.Material().SKU(), b.Material().SKU())
	default:
		return 0
	}
}

// sortKeyValue renders a sort key into a lexically sortable string for
// cursor encoding.
func sortKeyValue(item material.Scored, field SortField) string {
	switch field {
	case SortRelevance:
		return fmt.Sprintf("%016.12f", item.Score())
	case SortName:
		return Fold(item.Material().Name())
	case SortCreatedAt:
		return item.Material().CreatedAt().UTC().Format(time.RFC3339Nano)
	case SortUpdatedAt:
		return item.Material().UpdatedAt().UTC().Format(time.RFC3339Nano)
	case SortUseCategory:
		return Fold(item.Material().UseCategory())
	case SortUnit:
		return Fold(item.Material().Unit())
	case SortSKU:
		return item.Material().SKU()
	default:
		return ""
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
