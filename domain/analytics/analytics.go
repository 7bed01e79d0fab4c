// Package analytics defines search usage records and their store contract.
package analytics

import (
	"context"
	"time"
)

// RetentionDays is how long daily buckets are kept.
const RetentionDays = 30

// Record is one observed search, bucketed by day.
type Record struct {
	day         string
	queryHash   string
	queryText   string
	mode        string
	durationMS  int64
	resultCount int
	at          time.Time
}

// NewRecord creates a Record, deriving the day bucket from the timestamp.
func NewRecord(queryHash, queryText, mode string, duration time.Duration, resultCount int, at time.Time) Record {
	return Record{
		day:         at.UTC().Format("2006-01-02"),
		queryHash:   queryHash,
		queryText:   queryText,
		mode:        mode,
		durationMS:  duration.Milliseconds(),
		resultCount: resultCount,
		at:          at.UTC(),
	}
}

// Day returns the bucket date, formatted 2006-01-02.
func (r Record) Day() string { return r.day }

// QueryHash returns the query identity hash.
func (r Record) QueryHash() string { return r.queryHash }

// QueryText returns the raw query text.
func (r Record) QueryText() string { return r.queryText }

// Mode returns the search mode used.
func (r Record) Mode() string { return r.mode }

// DurationMS returns the search latency in milliseconds.
func (r Record) DurationMS() int64 { return r.durationMS }

// ResultCount returns how many hits the search returned.
func (r Record) ResultCount() int { return r.resultCount }

// At returns the observation timestamp.
func (r Record) At() time.Time { return r.at }

// QueryStat is an aggregated popular-query row.
type QueryStat struct {
	QueryText  string
	QueryHash  string
	Count      int64
	AvgLatency float64
}

// DayStat is one aggregated daily bucket.
type DayStat struct {
	Day        string
	Searches   int64
	AvgLatency float64
	AvgResults float64
}

// Store persists analytics records in daily buckets that expire after
// RetentionDays.
type Store interface {
	// Record appends one observation.
	Record(ctx context.Context, r Record) error

	// TopQueries returns the most frequent queries over the last days,
	// most frequent first.
	TopQueries(ctx context.Context, days, limit int) ([]QueryStat, error)

	// Prune drops buckets older than the retention window.
	Prune(ctx context.Context) error
}
