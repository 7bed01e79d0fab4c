// Package reference defines the colors/units reference collections and the
// SKU catalog used by RAG normalization.
package reference

import (
	"sort"
	"strings"
)

// Collection names the reference set an entry belongs to.
type Collection string

// Collection values.
const (
	Colors    Collection = "colors"
	Units     Collection = "units"
	Materials Collection = "reference_materials"
)

// Entry is one reference-collection row: a canonical name, its aliases,
// and the embedding of the canonical name. Canonical names are unique per
// collection and aliases are disjoint across entries.
type Entry struct {
	canonical string
	aliases   []string
	embedding []float64
}

// NewEntry creates an Entry. Aliases are normalized (folded, deduplicated,
// sorted); the canonical name itself always counts as an alias.
func NewEntry(canonical string, aliases []string, embedding []float64) Entry {
	seen := map[string]struct{}{}
	normalized := make([]string, 0, len(aliases)+1)
	for _, a := range append([]string{canonical}, aliases...) {
		n := NormalizeKey(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}
	sort.Strings(normalized)
	cp := make([]float64, len(embedding))
	copy(cp, embedding)
	return Entry{canonical: canonical, aliases: normalized, embedding: cp}
}

// Canonical returns the canonical name.
func (e Entry) Canonical() string { return e.canonical }

// Aliases returns the normalized alias set, canonical included.
func (e Entry) Aliases() []string { return append([]string(nil), e.aliases...) }

// Embedding returns a copy of the canonical-name embedding.
func (e Entry) Embedding() []float64 {
	cp := make([]float64, len(e.embedding))
	copy(cp, e.embedding)
	return cp
}

// HasEmbedding reports whether the entry carries an embedding.
func (e Entry) HasEmbedding() bool { return len(e.embedding) > 0 }

// WithEmbedding returns a copy with the embedding replaced. Callers must
// regenerate the embedding whenever aliases change.
func (e Entry) WithEmbedding(vec []float64) Entry {
	cp := make([]float64, len(vec))
	copy(cp, vec)
	e.embedding = cp
	return e
}

// MatchesAlias reports whether the normalized input equals one of the
// entry's aliases.
func (e Entry) MatchesAlias(input string) bool {
	n := NormalizeKey(input)
	for _, a := range e.aliases {
		if a == n {
			return true
		}
	}
	return false
}

// NormalizeKey folds a free-form name for exact alias matching: lowercase
// with collapsed internal whitespace.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CatalogItem is one SKU-catalog row: the post-recall filter key is
// (normalized_unit, normalized_color).
type CatalogItem struct {
	sku               string
	name              string
	normalizedUnit    string
	normalizedColor   string
	embeddingCombined []float64
}

// NewCatalogItem creates a CatalogItem. An empty color means colorless.
func NewCatalogItem(sku, name, normalizedUnit, normalizedColor string, embeddingCombined []float64) CatalogItem {
	cp := make([]float64, len(embeddingCombined))
	copy(cp, embeddingCombined)
	return CatalogItem{
		sku:               sku,
		name:              name,
		normalizedUnit:    normalizedUnit,
		normalizedColor:   normalizedColor,
		embeddingCombined: cp,
	}
}

// SKU returns the catalog SKU.
func (c CatalogItem) SKU() string { return c.sku }

// Name returns the catalog material name.
func (c CatalogItem) Name() string { return c.name }

// NormalizedUnit returns the canonical unit.
func (c CatalogItem) NormalizedUnit() string { return c.normalizedUnit }

// NormalizedColor returns the canonical color, empty when colorless.
func (c CatalogItem) NormalizedColor() string { return c.normalizedColor }

// EmbeddingCombined returns a copy of the combined embedding.
func (c CatalogItem) EmbeddingCombined() []float64 {
	cp := make([]float64, len(c.embeddingCombined))
	copy(cp, c.embeddingCombined)
	return cp
}
