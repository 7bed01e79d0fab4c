package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAnalytics records every observation it receives.
type countingAnalytics struct {
	mu      sync.Mutex
	records []analytics.Record
	pruned  int
}

func (s *countingAnalytics) Record(_ context.Context, r analytics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *countingAnalytics) TopQueries(context.Context, int, int) ([]analytics.QueryStat, error) {
	return nil, nil
}

func (s *countingAnalytics) Prune(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned++
	return nil
}

func (s *countingAnalytics) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestAnalyticsRecorderPersistsAsync(t *testing.T) {
	store := &countingAnalytics{}
	rec := service.NewAnalyticsRecorder(store, testLogger())
	rec.Start()

	for i := 0; i < 10; i++ {
		rec.Record(analytics.NewRecord("hash", "кирпич", "hybrid",
			12*time.Millisecond, 3, time.Now().UTC()))
	}
	rec.Stop()

	assert.Equal(t, 10, store.count())
}

func TestAnalyticsRecorderStopDrains(t *testing.T) {
	store := &countingAnalytics{}
	rec := service.NewAnalyticsRecorder(store, testLogger())
	rec.Start()

	rec.Record(analytics.NewRecord("h", "q", "sql", time.Millisecond, 1, time.Now().UTC()))
	rec.Stop()
	require.Equal(t, 1, store.count())

	// Records after Stop are silently dropped.
	rec.Record(analytics.NewRecord("h2", "q2", "sql", time.Millisecond, 1, time.Now().UTC()))
	assert.Equal(t, 1, store.count())
}

func TestAnalyticsRecorderQueueDepth(t *testing.T) {
	store := &countingAnalytics{}
	rec := service.NewAnalyticsRecorder(store, testLogger())
	// Not started: records accumulate in the queue.
	rec.Record(analytics.NewRecord("h", "q", "sql", time.Millisecond, 1, time.Now().UTC()))
	rec.Record(analytics.NewRecord("h", "q", "sql", time.Millisecond, 1, time.Now().UTC()))
	assert.Equal(t, 2, rec.QueueDepth())

	rec.Start()
	rec.Stop()
	assert.Equal(t, 2, store.count())
}
