package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/severstroy/matcat/domain/analytics"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"github.com/sony/gobreaker"
)

// suggestTopQueryDays is the analytics window for popular-query suggestions.
const suggestTopQueryDays = 7

// SearchEngine executes the four search modes over the configured backends
// and owns the result cache. The relational side sits behind a circuit
// breaker so a failing SQL backend degrades hybrid mode instead of slowing
// every request to its timeout.
type SearchEngine struct {
	vectors  material.VectorStore
	texts    material.TextStore
	embedder provider.Embedder
	stats    analytics.Store
	flight   *cache.Flight
	codec    search.CursorCodec
	breaker  *gobreaker.CircuitBreaker
	cfg      config.SearchConfig
	cacheCfg config.CacheConfig
	record   func(analytics.Record)
	logger   *log.Logger
}

// SearchEngineOption configures a SearchEngine.
type SearchEngineOption func(*SearchEngine)

// WithAnalyticsRecorder registers the fire-and-forget analytics hook.
func WithAnalyticsRecorder(fn func(analytics.Record)) SearchEngineOption {
	return func(e *SearchEngine) { e.record = fn }
}

// WithAnalyticsStore wires the popular-query source for suggestions.
func WithAnalyticsStore(store analytics.Store) SearchEngineOption {
	return func(e *SearchEngine) { e.stats = store }
}

// NewSearchEngine creates a SearchEngine. texts may be nil when the
// relational backend is unavailable.
func NewSearchEngine(
	vectors material.VectorStore,
	texts material.TextStore,
	embedder provider.Embedder,
	c cache.Cache,
	codec search.CursorCodec,
	cfg config.SearchConfig,
	cacheCfg config.CacheConfig,
	logger *log.Logger,
	opts ...SearchEngineOption,
) *SearchEngine {
	e := &SearchEngine{
		vectors:  vectors,
		texts:    texts,
		embedder: embedder,
		flight:   cache.NewFlight(c),
		codec:    codec,
		cfg:      cfg,
		cacheCfg: cacheCfg,
		record:   func(analytics.Record) {},
		logger:   logger,
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sql-search",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs an advanced query. Identical queries within the cache TTL
// collapse to one execution.
func (e *SearchEngine) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if err := q.Validate(); err != nil {
		return search.Response{}, err
	}
	started := time.Now()

	key := searchCacheKey(q)
	raw, err := e.flight.GetOrFill(ctx, key, e.cacheCfg.SearchTTL(), func(fillCtx context.Context) ([]byte, error) {
		resp, err := e.execute(fillCtx, q)
		if err != nil {
			return nil, err
		}
		return encodeResponse(resp)
	})
	if err != nil {
		return search.Response{}, err
	}
	resp, err := decodeResponse(raw)
	if err != nil {
		return search.Response{}, err
	}
	resp = resp.WithDuration(time.Since(started))

	e.record(analytics.NewRecord(q.Hash(), q.Text(), string(q.Mode()),
		resp.Duration(), resp.Count(), time.Now().UTC()))
	return resp, nil
}

func searchCacheKey(q search.Query) string {
	var sorts strings.Builder
	for _, s := range q.Sorts() {
		fmt.Fprintf(&sorts, "%s:%t;", s.Field(), s.Descending())
	}
	page := fmt.Sprintf("p=%d;s=%d;c=%s;h=%t;t=%t;%s",
		q.Page(), q.Size(), q.Cursor(), q.Highlight(), q.IncludeTotal(), sorts.String())
	return "search:" + q.Hash() + ":" + sha1Hex(page)[:12]
}

func (e *SearchEngine) execute(ctx context.Context, q search.Query) (search.Response, error) {
	var (
		items    []material.Scored
		degraded bool
		err      error
	)
	switch q.Mode() {
	case search.ModeVector:
		items, err = e.runVector(ctx, q)
	case search.ModeSQL:
		items, err = e.runSQL(ctx, q)
	case search.ModeFuzzy:
		items, err = e.runFuzzy(ctx, q)
	default:
		items, degraded, err = e.runHybrid(ctx, q)
	}
	if err != nil {
		return search.Response{}, err
	}

	items = postFilter(items, q.Filters())
	// The total reflects the filtered match set before the max_results
	// cap so it stays reported even when the cap empties the page.
	total := int64(len(items))
	if max := q.MaxResults(); len(items) > max {
		items = items[:max]
	}
	search.SortScored(items, q.Sorts())

	page, next, err := e.paginate(items, q)
	if err != nil {
		return search.Response{}, err
	}

	hits := make([]search.Hit, 0, len(page))
	var hl search.Highlighter
	if q.Highlight() {
		hl = search.NewHighlighter(q.Text())
	}
	for _, item := range page {
		hit := search.NewHit(item.Material(), item.Score())
		if q.Highlight() {
			m := item.Material()
			hit = hit.WithHighlights(hl.Fields(m.Name(), m.Description(), m.UseCategory()))
		}
		hits = append(hits, hit)
	}

	resp := search.NewResponse(hits, q.Mode())
	if q.IncludeTotal() {
		resp = resp.WithTotal(total)
	}
	if next != "" {
		resp = resp.WithNextCursor(next)
	}
	if degraded {
		resp = resp.WithDegraded()
	}
	return resp, nil
}

// paginate slices the sorted set by cursor when one is present, by
// page/offset otherwise. A next cursor is issued whenever results remain.
func (e *SearchEngine) paginate(items []material.Scored, q search.Query) (page []material.Scored, next string, err error) {
	// An explicit zero size yields an empty page; the total has already
	// been taken from the full set.
	size := q.Size()
	if size == 0 {
		return nil, "", nil
	}
	if size < 0 {
		size = search.DefaultSize
	}

	rest := items
	if q.Cursor() != "" {
		cur, derr := e.codec.Decode(q.Cursor())
		if derr != nil {
			return nil, "", derr
		}
		rest = search.AfterCursor(items, cur, q.Sorts())
	} else if off := q.Offset(); off > 0 {
		if off >= len(rest) {
			rest = nil
		} else {
			rest = rest[off:]
		}
	}

	if len(rest) > size {
		page = rest[:size]
		next = e.codec.Encode(search.CursorFor(page[len(page)-1], q.Sorts()))
		return page, next, nil
	}
	return rest, "", nil
}

// recallFor sizes the candidate set so later pages still have material to
// slice from.
func recallFor(q search.Query) int {
	size := q.Size()
	if size == 0 {
		// Zero-size queries still count matches, so recall as much as a
		// default page would.
		size = search.DefaultSize
	}
	k := (q.Offset() + size) * search.RecallMultiplier
	if rk := q.RecallK(); rk > k {
		k = rk
	}
	if k > search.MaxRecallK {
		k = search.MaxRecallK
	}
	return k
}

func (e *SearchEngine) runVector(ctx context.Context, q search.Query) ([]material.Scored, error) {
	vec, err := e.embedder.EmbedOne(ctx, q.Text())
	if err != nil {
		return nil, err
	}
	items, err := e.vectors.SearchNearest(ctx, vec, recallFor(q), q.Filters().Options()...)
	if err != nil {
		return nil, err
	}
	threshold := q.Filters().SimilarityThreshold(e.cfg.VectorThreshold())
	return dropBelow(items, threshold), nil
}

func (e *SearchEngine) runSQL(ctx context.Context, q search.Query) ([]material.Scored, error) {
	if e.texts == nil {
		return nil, fault.New(fault.BackendsUnavailable, "relational backend is not configured")
	}
	if q.Text() == "" {
		return e.browse(ctx, q)
	}
	result, err := e.breaker.Execute(func() (any, error) {
		return e.texts.SearchText(ctx, q.Text(), recallFor(q), q.Filters().Options()...)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fault.Wrap(fault.BackendsUnavailable, "relational backend circuit open", err)
		}
		return nil, err
	}
	return result.([]material.Scored), nil
}

func (e *SearchEngine) runFuzzy(ctx context.Context, q search.Query) ([]material.Scored, error) {
	if q.Text() == "" {
		return e.browse(ctx, q)
	}
	opts := append(q.Filters().Options(), repository.WithLimit(search.MaxResults))
	candidates, err := e.vectors.Find(ctx, opts...)
	if err != nil {
		return nil, err
	}
	scorer := search.NewFuzzyScorer(q.Text())
	threshold := q.Filters().SimilarityThreshold(e.cfg.FuzzyThreshold())
	items := make([]material.Scored, 0, len(candidates))
	for _, m := range candidates {
		if score := scorer.Score(m); score >= threshold {
			items = append(items, material.NewScored(m, score))
		}
	}
	return items, nil
}

// runHybrid executes both sides concurrently. One failed side degrades the
// response; both failing is a hard error.
func (e *SearchEngine) runHybrid(ctx context.Context, q search.Query) ([]material.Scored, bool, error) {
	if q.Text() == "" {
		items, err := e.browse(ctx, q)
		return items, false, err
	}

	type side struct {
		items []material.Scored
		err   error
	}
	var vectorSide, sqlSide side
	done := make(chan struct{})
	go func() {
		defer close(done)
		vectorSide.items, vectorSide.err = e.runVector(ctx, q)
	}()
	sqlSide.items, sqlSide.err = e.runSQL(ctx, q)
	<-done

	if vectorSide.err != nil && sqlSide.err != nil {
		return nil, false, fault.Wrap(fault.BackendsUnavailable, "all search backends failed",
			fmt.Errorf("vector: %v; sql: %w", vectorSide.err, sqlSide.err))
	}
	if vectorSide.err != nil {
		e.logger.WarnContext(ctx, "hybrid degraded to sql side", "error", vectorSide.err)
	}
	if sqlSide.err != nil {
		e.logger.WarnContext(ctx, "hybrid degraded to vector side", "error", sqlSide.err)
	}

	fusion := search.NewFusionWithWeights(e.cfg.HybridVectorWeight(), e.cfg.HybridSQLWeight())
	fused := fusion.Fuse(vectorSide.items, sqlSide.items)
	degraded := vectorSide.err != nil || sqlSide.err != nil
	return fused, degraded, nil
}

// browse is the filter-only path shared by the text modes when no query
// text is given: a plain listing from the authoritative store.
func (e *SearchEngine) browse(ctx context.Context, q search.Query) ([]material.Scored, error) {
	opts := append(q.Filters().Options(), repository.WithLimit(search.MaxResults))
	ms, err := e.vectors.Find(ctx, opts...)
	if err != nil {
		return nil, err
	}
	items := make([]material.Scored, len(ms))
	for i, m := range ms {
		items[i] = material.NewScored(m, 0)
	}
	return items, nil
}

func dropBelow(items []material.Scored, threshold float64) []material.Scored {
	if threshold <= 0 {
		return items
	}
	kept := items[:0]
	for _, item := range items {
		if item.Score() >= threshold {
			kept = append(kept, item)
		}
	}
	return kept
}

// postFilter re-applies filters on the merged set. Push-down covers each
// backend individually but fused results can carry rows from a backend
// that ignores a given filter.
func postFilter(items []material.Scored, f search.Filters) []material.Scored {
	kept := items[:0]
	for _, item := range items {
		if f.Matches(item.Material()) {
			kept = append(kept, item)
		}
	}
	return kept
}

// Suggest returns up to limit autocomplete entries for a prefix, drawn
// round-robin from popular queries, material names, and categories.
func (e *SearchEngine) Suggest(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fault.NewValidation("invalid suggest request",
			map[string]string{"prefix": "must not be empty"})
	}
	if limit <= 0 || limit > search.MaxSuggestions {
		limit = search.MaxSuggestions
	}

	key := fmt.Sprintf("suggest:%s:%d", sha1Hex(search.Fold(prefix))[:12], limit)
	raw, err := e.flight.GetOrFill(ctx, key, e.cacheCfg.SuggestTTL(), func(fillCtx context.Context) ([]byte, error) {
		suggestions := e.collectSuggestions(fillCtx, prefix, limit)
		return encodeSuggestions(suggestions)
	})
	if err != nil {
		return nil, err
	}
	return decodeSuggestions(raw)
}

func (e *SearchEngine) collectSuggestions(ctx context.Context, prefix string, limit int) []search.Suggestion {
	folded := search.Fold(prefix)
	sources := [][]search.Suggestion{
		e.suggestQueries(ctx, folded, limit),
		e.suggestField(ctx, "name", prefix, folded, limit, search.SuggestionMaterial,
			func(m material.Material) string { return m.Name() }),
		e.suggestField(ctx, "use_category", prefix, folded, limit, search.SuggestionCategory,
			func(m material.Material) string { return m.UseCategory() }),
	}

	seen := make(map[string]struct{}, limit)
	out := make([]search.Suggestion, 0, limit)
	// Round-robin keeps each source represented when one dominates.
	for i := 0; len(out) < limit; i++ {
		progressed := false
		for _, src := range sources {
			if i >= len(src) {
				continue
			}
			progressed = true
			s := src[i]
			k := search.Fold(s.Text())
			if _, dup := seen[k]; dup || k == "" {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func (e *SearchEngine) suggestQueries(ctx context.Context, foldedPrefix string, limit int) []search.Suggestion {
	if e.stats == nil {
		return nil
	}
	stats, err := e.stats.TopQueries(ctx, suggestTopQueryDays, limit*5)
	if err != nil {
		e.logger.WarnContext(ctx, "popular query suggestions unavailable", "error", err)
		return nil
	}
	var out []search.Suggestion
	for _, st := range stats {
		if strings.HasPrefix(search.Fold(st.QueryText), foldedPrefix) {
			out = append(out, search.NewSuggestion(st.QueryText, search.SuggestionQuery))
		}
	}
	return out
}

func (e *SearchEngine) suggestField(ctx context.Context, column, prefix, foldedPrefix string, limit int, source search.SuggestionSource, value func(material.Material) string) []search.Suggestion {
	ms, err := e.vectors.Find(ctx,
		repository.WithLike(column, escapeLikePrefix(prefix)+"%"),
		repository.WithLimit(limit*5))
	if err != nil {
		e.logger.WarnContext(ctx, "field suggestions unavailable", "column", column, "error", err)
		return nil
	}
	var out []search.Suggestion
	for _, m := range ms {
		v := value(m)
		if v != "" && strings.HasPrefix(search.Fold(v), foldedPrefix) {
			out = append(out, search.NewSuggestion(v, source))
		}
	}
	return out
}

func escapeLikePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type responseDoc struct {
	Hits []struct {
		Material   materialDoc       `json:"material"`
		Score      float64           `json:"score"`
		Highlights map[string]string `json:"highlights,omitempty"`
	} `json:"hits"`
	Total      *int64 `json:"total,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`
	Mode       string `json:"mode"`
}

func encodeResponse(r search.Response) ([]byte, error) {
	var doc responseDoc
	doc.Mode = string(r.Mode())
	doc.NextCursor = r.NextCursor()
	doc.Degraded = r.Degraded()
	if total, ok := r.Total(); ok {
		doc.Total = &total
	}
	for _, h := range r.Hits() {
		m := h.Material()
		doc.Hits = append(doc.Hits, struct {
			Material   materialDoc       `json:"material"`
			Score      float64           `json:"score"`
			Highlights map[string]string `json:"highlights,omitempty"`
		}{
			Material: materialDoc{
				ID:          m.ID(),
				Name:        m.Name(),
				Description: m.Description(),
				UseCategory: m.UseCategory(),
				Unit:        m.Unit(),
				SKU:         m.SKU(),
				CreatedAt:   m.CreatedAt(),
				UpdatedAt:   m.UpdatedAt(),
			},
			Score:      h.Score(),
			Highlights: h.Highlights(),
		})
	}
	return json.Marshal(doc)
}

func decodeResponse(raw []byte) (search.Response, error) {
	var doc responseDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return search.Response{}, fmt.Errorf("decode cached search response: %w", err)
	}
	hits := make([]search.Hit, 0, len(doc.Hits))
	for _, h := range doc.Hits {
		m := material.Restore(h.Material.ID, h.Material.Name, h.Material.Description,
			h.Material.UseCategory, h.Material.Unit, h.Material.SKU,
			h.Material.CreatedAt, h.Material.UpdatedAt, nil)
		hit := search.NewHit(m, h.Score)
		if len(h.Highlights) > 0 {
			hit = hit.WithHighlights(h.Highlights)
		}
		hits = append(hits, hit)
	}
	resp := search.NewResponse(hits, search.Mode(doc.Mode))
	if doc.Total != nil {
		resp = resp.WithTotal(*doc.Total)
	}
	if doc.NextCursor != "" {
		resp = resp.WithNextCursor(doc.NextCursor)
	}
	if doc.Degraded {
		resp = resp.WithDegraded()
	}
	return resp, nil
}

type suggestionDoc struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func encodeSuggestions(ss []search.Suggestion) ([]byte, error) {
	docs := make([]suggestionDoc, len(ss))
	for i, s := range ss {
		docs[i] = suggestionDoc{Text: s.Text(), Source: string(s.Source())}
	}
	return json.Marshal(docs)
}

func decodeSuggestions(raw []byte) ([]search.Suggestion, error) {
	var docs []suggestionDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode cached suggestions: %w", err)
	}
	out := make([]search.Suggestion, len(docs))
	for i, d := range docs {
		out[i] = search.NewSuggestion(d.Text, search.SuggestionSource(d.Source))
	}
	return out, nil
}
