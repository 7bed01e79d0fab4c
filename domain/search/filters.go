package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
)

// Filters holds the non-text constraints of an advanced query. Empty slices
// mean no constraint; date ranges are half-open [from, to).
type Filters struct {
	categories          []string
	units               []string
	skuPattern          string
	createdFrom         *time.Time
	createdTo           *time.Time
	updatedFrom         *time.Time
	updatedTo           *time.Time
	similarityThreshold *float64
}

// FiltersOption configures Filters.
type FiltersOption func(*Filters)

// NewFilters creates Filters from options.
func NewFilters(opts ...FiltersOption) Filters {
	var f Filters
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// WithCategories constrains use_category to the given set.
func WithCategories(categories ...string) FiltersOption {
	return func(f *Filters) { f.categories = append([]string(nil), categories...) }
}

// WithUnits constrains unit to the given set.
func WithUnits(units ...string) FiltersOption {
	return func(f *Filters) { f.units = append([]string(nil), units...) }
}

// WithSKUPattern constrains sku to a wildcard pattern (* any run, ? one char).
func WithSKUPattern(pattern string) FiltersOption {
	return func(f *Filters) { f.skuPattern = pattern }
}

// WithCreatedRange constrains created_at to [from, to).
func WithCreatedRange(from, to *time.Time) FiltersOption {
	return func(f *Filters) { f.createdFrom, f.createdTo = from, to }
}

// WithUpdatedRange constrains updated_at to [from, to).
func WithUpdatedRange(from, to *time.Time) FiltersOption {
	return func(f *Filters) { f.updatedFrom, f.updatedTo = from, to }
}

// WithSimilarityThreshold overrides the per-mode default score cutoff.
func WithSimilarityThreshold(threshold float64) FiltersOption {
	return func(f *Filters) { f.similarityThreshold = &threshold }
}

// Categories returns the category constraint set.
func (f Filters) Categories() []string { return append([]string(nil), f.categories...) }

// Units returns the unit constraint set.
func (f Filters) Units() []string { return append([]string(nil), f.units...) }

// SKUPattern returns the wildcard SKU pattern.
func (f Filters) SKUPattern() string { return f.skuPattern }

// SimilarityThreshold returns the configured cutoff, or fallback when unset.
func (f Filters) SimilarityThreshold(fallback float64) float64 {
	if f.similarityThreshold != nil {
		return *f.similarityThreshold
	}
	return fallback
}

// Options translates the filters into store query options for push-down.
// The SKU wildcard becomes a LIKE pattern; similarity is not pushed down.
func (f Filters) Options() []repository.Option {
	var opts []repository.Option
	if len(f.categories) > 0 {
		opts = append(opts, repository.WithUseCategoryIn(f.categories))
	}
	if len(f.units) > 0 {
		opts = append(opts, repository.WithUnitIn(f.units))
	}
	if f.skuPattern != "" {
		opts = append(opts, repository.WithSKULike(wildcardToLike(f.skuPattern)))
	}
	if f.createdFrom != nil || f.createdTo != nil {
		opts = append(opts, repository.WithCreatedBetween(f.createdFrom, f.createdTo))
	}
	if f.updatedFrom != nil || f.updatedTo != nil {
		opts = append(opts, repository.WithUpdatedBetween(f.updatedFrom, f.updatedTo))
	}
	return opts
}

// Matches applies the filters to a material post-retrieval.
func (f Filters) Matches(m material.Material) bool {
	if len(f.categories) > 0 && !containsFold(f.categories, m.UseCategory()) {
		return false
	}
	if len(f.units) > 0 && !containsFold(f.units, m.Unit()) {
		return false
	}
	if f.skuPattern != "" && !MatchWildcard(f.skuPattern, m.SKU()) {
		return false
	}
	if !inHalfOpen(m.CreatedAt(), f.createdFrom, f.createdTo) {
		return false
	}
	if !inHalfOpen(m.UpdatedAt(), f.updatedFrom, f.updatedTo) {
		return false
	}
	return true
}

// Canonical renders the filters into a stable string for query hashing.
func (f Filters) Canonical() string {
	var b strings.Builder
	writeSet := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		fmt.Fprintf(&b, "%s=%s;", label, strings.Join(sorted, ","))
	}
	writeSet("cat", f.categories)
	writeSet("unit", f.units)
	if f.skuPattern != "" {
		fmt.Fprintf(&b, "sku=%s;", f.skuPattern)
	}
	writeRange := func(label string, from, to *time.Time) {
		if from == nil && to == nil {
			return
		}
		b.WriteString(label + "=")
		if from != nil {
			b.WriteString(from.UTC().Format(time.RFC3339))
		}
		b.WriteString("..")
		if to != nil {
			b.WriteString(to.UTC().Format(time.RFC3339))
		}
		b.WriteString(";")
	}
	writeRange("created", f.createdFrom, f.createdTo)
	writeRange("updated", f.updatedFrom, f.updatedTo)
	if f.similarityThreshold != nil {
		fmt.Fprintf(&b, "sim=%.4f;", *f.similarityThreshold)
	}
	return b.String()
}

// MatchWildcard matches s against a pattern where * matches any run and
// ? matches exactly one character. Matching is case-insensitive.
func MatchWildcard(pattern, s string) bool {
	return matchRunes([]rune(strings.ToLower(pattern)), []rune(strings.ToLower(s)))
}

func matchRunes(p, s []rune) bool {
	// Iterative wildcard match with single backtrack point for '*'.
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

func wildcardToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteRune('%')
		case '?':
			b.WriteRune('_')
		case '%', '_', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func inHalfOpen(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}
