package search

import (
	"github.com/severstroy/matcat/domain/material"
)

// FuzzyScorer scores materials against free text using a combination of
// Levenshtein-derived similarity and longest-common-subsequence ratio.
// Each field takes the max of the two measures; the record score is the
// weighted sum over fields.
type FuzzyScorer struct {
	query string
}

// NewFuzzyScorer creates a scorer for a query. The query is folded once.
func NewFuzzyScorer(query string) FuzzyScorer {
	return FuzzyScorer{query: Fold(query)}
}

// Score returns the weighted record score in [0, 1]. The weighted sum is
// normalized over the fields the record actually has, so a record with only
// a name is not penalized for empty optional fields.
func (f FuzzyScorer) Score(m material.Material) float64 {
	var score, total float64
	for _, fw := range []struct {
		value  string
		weight float64
	}{
		{m.Name(), WeightName},
		{m.Description(), WeightDescription},
		{m.UseCategory(), WeightUseCategory},
		{m.SKU(), WeightSKU},
	} {
		if fw.value == "" {
			continue
		}
		total += fw.weight
		score += fw.weight * f.fieldScore(fw.value)
	}
	if total == 0 {
		return 0
	}
	return score / total
}

// fieldScore is max(levenshtein similarity, LCS ratio) of the folded field.
func (f FuzzyScorer) fieldScore(field string) float64 {
	if field == "" || f.query == "" {
		return 0
	}
	folded := Fold(field)
	lev := levenshteinSimilarity(f.query, folded)
	lcs := lcsRatio(f.query, folded)
	if lcs > lev {
		return lcs
	}
	return lev
}

// levenshteinSimilarity converts edit distance into [0, 1]:
// 1 - distance / max(len).
func levenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	d := levenshtein(ra, rb)
	return 1 - float64(d)/float64(longest)
}

// levenshtein computes edit distance with a two-row rolling buffer.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// lcsRatio is the longest-common-subsequence length over the longer string.
func lcsRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return float64(prev[len(rb)]) / float64(longest)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
