package v1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/analytics"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/infrastructure/api/v1/dto"
	"github.com/severstroy/matcat/internal/log"
)

// AnalyticsReader serves the aggregated daily report.
type AnalyticsReader interface {
	Daily(ctx context.Context, from, to time.Time) ([]analytics.DayStat, error)
}

// SearchRouter handles search, suggestions and search analytics.
type SearchRouter struct {
	engine    *service.SearchEngine
	analytics AnalyticsReader
	logger    *log.Logger
}

// NewSearchRouter creates a SearchRouter. The analytics reader may be
// nil when no relational store is configured.
func NewSearchRouter(engine *service.SearchEngine, reader AnalyticsReader, logger *log.Logger) *SearchRouter {
	return &SearchRouter{engine: engine, analytics: reader, logger: logger}
}

// Routes returns the chi router for search endpoints.
func (rt *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/advanced", rt.Search)
	router.Get("/suggestions", rt.Suggestions)
	router.Get("/analytics", rt.Analytics)

	return router
}

// Search handles POST /api/v1/search/advanced.
func (rt *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	var body dto.SearchRequest
	if err := decodeJSON(req, &body); err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	query, err := buildQuery(body)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	result, err := rt.engine.Search(req.Context(), query)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, searchToResponse(result))
}

// Suggestions handles GET /api/v1/search/suggestions?q=&limit=.
func (rt *SearchRouter) Suggestions(w http.ResponseWriter, req *http.Request) {
	prefix := req.URL.Query().Get("q")
	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, req,
				fault.NewValidation("limit must be an integer", map[string]string{"limit": "invalid"}), rt.logger)
			return
		}
		limit = n
	}

	suggestions, err := rt.engine.Suggest(req.Context(), prefix, limit)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.SuggestionsResponse{Suggestions: make([]dto.SuggestionResponse, len(suggestions))}
	for i, s := range suggestions {
		resp.Suggestions[i] = dto.SuggestionResponse{Text: s.Text(), Source: string(s.Source())}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Analytics handles GET /api/v1/search/analytics?from=&to= with dates
// in YYYY-MM-DD. The range defaults to the last seven days.
func (rt *SearchRouter) Analytics(w http.ResponseWriter, req *http.Request) {
	if rt.analytics == nil {
		middleware.WriteError(w, req,
			fault.New(fault.BackendsUnavailable, "analytics store not configured"), rt.logger)
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	var err error
	if raw := req.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			middleware.WriteError(w, req,
				fault.NewValidation("from must be YYYY-MM-DD", map[string]string{"from": "invalid"}), rt.logger)
			return
		}
	}
	if raw := req.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			middleware.WriteError(w, req,
				fault.NewValidation("to must be YYYY-MM-DD", map[string]string{"to": "invalid"}), rt.logger)
			return
		}
	}

	buckets, err := rt.analytics.Daily(req.Context(), from, to)
	if err != nil {
		middleware.WriteError(w, req, err, rt.logger)
		return
	}

	resp := dto.AnalyticsResponse{
		From:    from.Format("2006-01-02"),
		To:      to.Format("2006-01-02"),
		Buckets: make([]dto.AnalyticsBucket, len(buckets)),
	}
	for i, b := range buckets {
		resp.Buckets[i] = dto.AnalyticsBucket{
			Day:        b.Day,
			Searches:   b.Searches,
			AvgLatency: b.AvgLatency,
			AvgResults: b.AvgResults,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func buildQuery(body dto.SearchRequest) (search.Query, error) {
	mode, err := search.ParseMode(body.Mode)
	if err != nil {
		return search.Query{}, fault.NewValidation("unknown search mode", map[string]string{"mode": body.Mode})
	}

	opts := []search.QueryOption{}

	if body.Filters != nil {
		f := body.Filters
		var filterOpts []search.FiltersOption
		if len(f.UseCategories) > 0 {
			filterOpts = append(filterOpts, search.WithCategories(f.UseCategories...))
		}
		if len(f.Units) > 0 {
			filterOpts = append(filterOpts, search.WithUnits(f.Units...))
		}
		if f.SKUPattern != "" {
			filterOpts = append(filterOpts, search.WithSKUPattern(f.SKUPattern))
		}
		if f.CreatedFrom != nil || f.CreatedTo != nil {
			filterOpts = append(filterOpts, search.WithCreatedRange(f.CreatedFrom, f.CreatedTo))
		}
		if f.UpdatedFrom != nil || f.UpdatedTo != nil {
			filterOpts = append(filterOpts, search.WithUpdatedRange(f.UpdatedFrom, f.UpdatedTo))
		}
		if f.SimilarityThreshold != nil {
			filterOpts = append(filterOpts, search.WithSimilarityThreshold(*f.SimilarityThreshold))
		}
		opts = append(opts, search.WithFilters(search.NewFilters(filterOpts...)))
	}

	if len(body.Sorts) > 0 {
		sorts := make([]search.Sort, len(body.Sorts))
		for i, s := range body.Sorts {
			field := search.SortField(s.Field)
			if !search.ValidSortField(field) {
				return search.Query{}, fault.NewValidation("unknown sort field",
					map[string]string{"sorts": s.Field})
			}
			sorts[i] = search.NewSort(field, s.Desc)
		}
		opts = append(opts, search.WithSorts(sorts...))
	}

	size := search.DefaultSize
	if body.Size != nil {
		size = *body.Size
	}
	if body.Cursor != "" {
		opts = append(opts, search.WithCursor(body.Cursor, size))
	} else {
		page := body.Page
		if page <= 0 {
			page = 1
		}
		opts = append(opts, search.WithPage(page, size))
	}

	if body.Highlight {
		opts = append(opts, search.WithHighlight())
	}
	if body.IncludeTotal {
		opts = append(opts, search.WithTotal())
	}
	if body.MaxResults > 0 {
		opts = append(opts, search.WithMaxResults(body.MaxResults))
	}

	return search.NewQuery(body.Query, mode, opts...), nil
}

func searchToResponse(result search.Response) dto.SearchResponse {
	hits := result.Hits()
	resp := dto.SearchResponse{
		Hits:       make([]dto.SearchHit, len(hits)),
		Count:      result.Count(),
		NextCursor: result.NextCursor(),
		Mode:       string(result.Mode()),
		Degraded:   result.Degraded(),
		DurationMS: result.Duration().Milliseconds(),
	}
	if total, ok := result.Total(); ok {
		resp.Total = &total
	}
	for i, hit := range hits {
		resp.Hits[i] = dto.SearchHit{
			Material:   materialToResponse(hit.Material()),
			Score:      hit.Score(),
			Highlights: hit.Highlights(),
		}
	}
	return resp
}
