package search

import (
	"testing"

	"github.com/severstroy/matcat/domain/material"
)

func TestFuzzyMisspelledQuery(t *testing.T) {
	m := material.New("m1", "Цемент М500", "кг")
	score := NewFuzzyScorer("цимент м500").Score(m)
	if score < 0.8 {
		t.Fatalf("misspelled query should still score >= 0.8, got %f", score)
	}
}

func TestFuzzyExactMatchScoresOne(t *testing.T) {
	m := material.New("m1", "Песок речной", "т")
	if score := NewFuzzyScorer("Песок речной").Score(m); score < 0.999 {
		t.Fatalf("exact match should score ~1, got %f", score)
	}
}

func TestFuzzyUnrelatedQueryScoresLow(t *testing.T) {
	m := material.New("m1", "Цемент М500", "кг")
	if score := NewFuzzyScorer("гипсокартон влагостойкий").Score(m); score >= DefaultFuzzyThreshold {
		t.Fatalf("unrelated query should fall below the default threshold, got %f", score)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1.0},
		{"abc", "abd", 2.0 / 3.0},
		{"", "", 1.0},
		{"abc", "", 0.0},
	}
	for _, tt := range tests {
		got := levenshteinSimilarity(tt.a, tt.b)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("levenshteinSimilarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLCSRatio(t *testing.T) {
	// "abcdef" vs "abdf": LCS = "abdf" (4) over longest (6).
	got := lcsRatio("abcdef", "abdf")
	want := 4.0 / 6.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("lcsRatio = %f, want %f", got, want)
	}
}
