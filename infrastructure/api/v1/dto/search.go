package dto

import "time"

// SearchFilters narrow a search before scoring.
type SearchFilters struct {
	UseCategories       []string   `json:"use_categories,omitempty"`
	Units               []string   `json:"units,omitempty"`
	SKUPattern          string     `json:"sku_pattern,omitempty"`
	CreatedFrom         *time.Time `json:"created_from,omitempty"`
	CreatedTo           *time.Time `json:"created_to,omitempty"`
	UpdatedFrom         *time.Time `json:"updated_from,omitempty"`
	UpdatedTo           *time.Time `json:"updated_to,omitempty"`
	SimilarityThreshold *float64   `json:"similarity_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SearchSort is one sort key.
type SearchSort struct {
	Field string `json:"field" validate:"required"`
	Desc  bool   `json:"desc,omitempty"`
}

// SearchRequest is the advanced search payload.
type SearchRequest struct {
	Query        string         `json:"query"`
	Mode         string         `json:"mode,omitempty" validate:"omitempty,oneof=vector sql fuzzy hybrid"`
	Page         int            `json:"page,omitempty" validate:"omitempty,gte=1"`
	// Size distinguishes an absent field from an explicit zero: zero
	// returns no hits while the total is still computed on request.
	Size         *int           `json:"size,omitempty" validate:"omitempty,gte=0,lte=100"`
	Cursor       string         `json:"cursor,omitempty"`
	Highlight    bool           `json:"highlight,omitempty"`
	IncludeTotal bool           `json:"include_total,omitempty"`
	MaxResults   int            `json:"max_results,omitempty" validate:"omitempty,gte=1,lte=500"`
	Filters      *SearchFilters `json:"filters,omitempty"`
	Sorts        []SearchSort   `json:"sorts,omitempty" validate:"omitempty,max=3,dive"`
}

// SearchHit is one scored result.
type SearchHit struct {
	Material   MaterialResponse  `json:"material"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// SearchResponse is the advanced search result page.
type SearchResponse struct {
	Hits       []SearchHit `json:"hits"`
	Count      int         `json:"count"`
	Total      *int64      `json:"total,omitempty"`
	NextCursor string      `json:"next_cursor,omitempty"`
	Mode       string      `json:"mode"`
	Degraded   bool        `json:"degraded,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// SuggestionResponse is one typeahead entry.
type SuggestionResponse struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// SuggestionsResponse is the typeahead result list.
type SuggestionsResponse struct {
	Suggestions []SuggestionResponse `json:"suggestions"`
}

// AnalyticsBucket is one aggregated day of search traffic.
type AnalyticsBucket struct {
	Day        string  `json:"day"`
	Searches   int64   `json:"searches"`
	AvgLatency float64 `json:"avg_latency_ms"`
	AvgResults float64 `json:"avg_results"`
}

// AnalyticsResponse is the daily analytics report.
type AnalyticsResponse struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Buckets []AnalyticsBucket `json:"buckets"`
}
