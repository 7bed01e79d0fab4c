package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/severstroy/matcat/domain/analytics"
	"github.com/severstroy/matcat/internal/database"
)

// AnalyticsStore persists per-query analytics rows and serves the
// aggregated top-queries report.
type AnalyticsStore struct {
	db database.Database
}

// NewAnalyticsStore creates an AnalyticsStore.
func NewAnalyticsStore(db database.Database) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// Record inserts one analytics row.
func (s *AnalyticsStore) Record(ctx context.Context, r analytics.Record) error {
	row := AnalyticsRow{
		Day:         r.Day(),
		QueryHash:   r.QueryHash(),
		QueryText:   r.QueryText(),
		Mode:        r.Mode(),
		DurationMS:  r.DurationMS(),
		ResultCount: r.ResultCount(),
		At:          r.At(),
	}
	if result := s.db.Session(ctx).Create(&row); result.Error != nil {
		return fmt.Errorf("record analytics: %w", result.Error)
	}
	return nil
}

// TopQueries aggregates the most frequent queries of the last N days.
func (s *AnalyticsStore) TopQueries(ctx context.Context, days, limit int) ([]analytics.QueryStat, error) {
	if days <= 0 {
		days = 1
	}
	if limit <= 0 {
		limit = 10
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var stats []analytics.QueryStat
	result := s.db.Session(ctx).
		Model(&AnalyticsRow{}).
		Select("query_hash, MAX(query_text) AS query_text, COUNT(*) AS count, AVG(duration_ms) AS avg_latency").
		Where("at >= ?", since).
		Group("query_hash").
		Order("count DESC").
		Limit(limit).
		Scan(&stats)
	if result.Error != nil {
		return nil, fmt.Errorf("top queries: %w", result.Error)
	}
	return stats, nil
}

// Daily aggregates searches per day bucket over [from, to] inclusive.
func (s *AnalyticsStore) Daily(ctx context.Context, from, to time.Time) ([]analytics.DayStat, error) {
	if to.Before(from) {
		from, to = to, from
	}
	fromDay := from.UTC().Format("2006-01-02")
	toDay := to.UTC().Format("2006-01-02")

	var stats []analytics.DayStat
	result := s.db.Session(ctx).
		Model(&AnalyticsRow{}).
		Select("day, COUNT(*) AS searches, AVG(duration_ms) AS avg_latency, AVG(result_count) AS avg_results").
		Where("day >= ? AND day <= ?", fromDay, toDay).
		Group("day").
		Order("day ASC").
		Scan(&stats)
	if result.Error != nil {
		return nil, fmt.Errorf("daily analytics: %w", result.Error)
	}
	return stats, nil
}

// Prune deletes rows older than the retention window.
func (s *AnalyticsStore) Prune(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -analytics.RetentionDays)
	result := s.db.Session(ctx).Where("at < ?", cutoff).Delete(&AnalyticsRow{})
	if result.Error != nil {
		return fmt.Errorf("prune analytics: %w", result.Error)
	}
	return nil
}

var _ analytics.Store = (*AnalyticsStore)(nil)
