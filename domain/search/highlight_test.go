package search

import (
	"testing"
)

func TestHighlightWrapsTerms(t *testing.T) {
	h := NewHighlighter("белый кирпич")
	got := h.Apply("Кирпич керамический белый")
	want := "‹mark›Кирпич‹/mark› керамический ‹mark›белый‹/mark›"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHighlightCaseInsensitive(t *testing.T) {
	h := NewHighlighter("ЦЕМЕНТ")
	if got := h.Apply("цемент М500"); got != "‹mark›цемент‹/mark› М500" {
		t.Fatalf("got %q", got)
	}
}

func TestHighlightOverlappingMatchesMerge(t *testing.T) {
	h := NewHighlighter("aba bab")
	// "ababab": "aba" at 0 and 2, "bab" at 1 and 3, all overlapping into one span.
	if got := h.Apply("ababab"); got != "‹mark›ababab‹/mark›" {
		t.Fatalf("got %q", got)
	}
}

func TestHighlightShortTermsIgnored(t *testing.T) {
	h := NewHighlighter("м цемент")
	// Single-rune term "м" is below the minimum length.
	if got := h.Apply("м цемент"); got != "м ‹mark›цемент‹/mark›" {
		t.Fatalf("got %q", got)
	}
}

func TestHighlightCustomMarkers(t *testing.T) {
	h := NewHighlighterWithMarkers("кирпич", "<em>", "</em>")
	if got := h.Apply("кирпич"); got != "<em>кирпич</em>" {
		t.Fatalf("got %q", got)
	}
}

func TestHighlightFieldsSkipUnmatched(t *testing.T) {
	h := NewHighlighter("кирпич")
	fields := h.Fields("Кирпич красный", "без совпадений", "")
	if _, ok := fields["name"]; !ok {
		t.Fatal("name should be highlighted")
	}
	if _, ok := fields["description"]; ok {
		t.Fatal("unmatched description should be omitted")
	}
}

func TestFold(t *testing.T) {
	if Fold("  ЦемЕнт  ") != "цемент" {
		t.Fatalf("fold = %q", Fold("  ЦемЕнт  "))
	}
	if Fold("Ёлка") != "елка" {
		t.Fatalf("diacritic fold = %q", Fold("Ёлка"))
	}
}

func TestTerms(t *testing.T) {
	terms := Terms("Белый, белый кирпич М5")
	want := []string{"белыи", "кирпич", "м5"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v", terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Fatalf("terms = %v, want %v", terms, want)
		}
	}
}
