package search

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/severstroy/matcat/domain/fault"
)

// Pagination and result-size bounds.
const (
	MaxPageSize    = 100
	DefaultPage    = 1
	DefaultSize    = 20
	MaxResults     = 500
	MaxSuggestions = 20
	// RecallMultiplier scales the requested limit into vector top-K.
	RecallMultiplier = 3
	// MaxRecallK caps the vector top-K.
	MaxRecallK = 300
)

// SortField names a sortable column.
type SortField string

// SortField values.
const (
	SortRelevance   SortField = "relevance"
	SortName        SortField = "name"
	SortCreatedAt   SortField = "created_at"
	SortUpdatedAt   SortField = "updated_at"
	SortUseCategory SortField = "use_category"
	SortUnit        SortField = "unit"
	SortSKU         SortField = "sku"
)

// ValidSortField reports whether the field is sortable.
func ValidSortField(f SortField) bool {
	switch f {
	case SortRelevance, SortName, SortCreatedAt, SortUpdatedAt, SortUseCategory, SortUnit, SortSKU:
		return true
	}
	return false
}

// Sort is one ordered sort key with a direction.
type Sort struct {
	field      SortField
	descending bool
}

// NewSort creates a Sort.
func NewSort(field SortField, descending bool) Sort {
	return Sort{field: field, descending: descending}
}

// Field returns the sort field.
func (s Sort) Field() SortField { return s.field }

// Descending reports the direction.
func (s Sort) Descending() bool { return s.descending }

// Query is the full advanced search request.
type Query struct {
	text         string
	mode         Mode
	filters      Filters
	sorts        []Sort
	page         int
	size         int
	cursor       string
	highlight    bool
	includeTotal bool
	limit        int
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// NewQuery creates a Query with defaults: hybrid mode, relevance ordering,
// page 1 of DefaultSize.
func NewQuery(text string, mode Mode, opts ...QueryOption) Query {
	q := Query{
		text:  text,
		mode:  mode,
		page:  DefaultPage,
		size:  DefaultSize,
		limit: MaxResults,
	}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// WithFilters sets the filters.
func WithFilters(f Filters) QueryOption {
	return func(q *Query) { q.filters = f }
}

// WithSorts sets the ordered sort keys.
func WithSorts(sorts ...Sort) QueryOption {
	return func(q *Query) { q.sorts = append([]Sort(nil), sorts...) }
}

// WithPage selects page-based pagination.
func WithPage(page, size int) QueryOption {
	return func(q *Query) {
		q.page = page
		q.size = size
		q.cursor = ""
	}
}

// WithCursor selects cursor-based pagination with an opaque token.
func WithCursor(token string, size int) QueryOption {
	return func(q *Query) {
		q.cursor = token
		if size > 0 {
			q.size = size
		}
	}
}

// WithHighlight enables query-term highlighting in results.
func WithHighlight() QueryOption {
	return func(q *Query) { q.highlight = true }
}

// WithTotal requests an exact total count in the response.
func WithTotal() QueryOption {
	return func(q *Query) { q.includeTotal = true }
}

// WithMaxResults caps the fused result set before pagination.
func WithMaxResults(n int) QueryOption {
	return func(q *Query) {
		if n >= 0 {
			q.limit = n
		}
	}
}

// Text returns the query text.
func (q Query) Text() string { return q.text }

// Mode returns the search mode.
func (q Query) Mode() Mode { return q.mode }

// Filters returns the filters.
func (q Query) Filters() Filters { return q.filters }

// Sorts returns the ordered sort keys; empty means relevance descending.
func (q Query) Sorts() []Sort {
	if len(q.sorts) == 0 {
		return []Sort{NewSort(SortRelevance, true)}
	}
	return append([]Sort(nil), q.sorts...)
}

// Page returns the 1-based page number.
func (q Query) Page() int { return q.page }

// Size returns the page size.
func (q Query) Size() int { return q.size }

// Cursor returns the opaque cursor token, empty for page-based requests.
func (q Query) Cursor() string { return q.cursor }

// Highlight reports whether highlighting was requested.
func (q Query) Highlight() bool { return q.highlight }

// IncludeTotal reports whether an exact total was requested.
func (q Query) IncludeTotal() bool { return q.includeTotal }

// MaxResults returns the fused result cap.
func (q Query) MaxResults() int { return q.limit }

// RecallK returns the vector top-K for this query: size x RecallMultiplier,
// capped at MaxRecallK.
func (q Query) RecallK() int {
	k := q.size * RecallMultiplier
	if k > MaxRecallK {
		k = MaxRecallK
	}
	if k <= 0 {
		k = RecallMultiplier
	}
	return k
}

// Validate checks structural invariants and returns a validation fault on
// the first violation.
func (q Query) Validate() error {
	fields := map[string]string{}
	if _, err := ParseMode(string(q.mode)); err != nil || q.mode == "" {
		fields["mode"] = "must be one of vector, sql, fuzzy, hybrid"
	}
	if q.mode == ModeVector && q.text == "" {
		fields["text"] = "required for vector mode"
	}
	if q.cursor == "" {
		if q.page < 1 {
			fields["page"] = "must be >= 1"
		}
		if q.size < 0 || q.size > MaxPageSize {
			fields["size"] = "must be between 0 and 100"
		}
	}
	if q.limit > MaxResults {
		fields["max_results"] = "must be at most 500"
	}
	for _, s := range q.sorts {
		if !ValidSortField(s.Field()) {
			fields["sort"] = "unsupported sort field " + string(s.Field())
		}
	}
	if len(fields) > 0 {
		return fault.NewValidation("invalid search query", fields)
	}
	return nil
}

// Hash returns the 16-hex-char analytics/cache key for this query:
// SHA1(mode || folded text || canonical filters) truncated.
func (q Query) Hash() string {
	h := sha1.New()
	h.Write([]byte(string(q.mode)))
	h.Write([]byte("|"))
	h.Write([]byte(Fold(q.text)))
	h.Write([]byte("|"))
	h.Write([]byte(q.filters.Canonical()))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Offset returns the page-based offset.
func (q Query) Offset() int {
	if q.page < 1 {
		return 0
	}
	return (q.page - 1) * q.size
}
