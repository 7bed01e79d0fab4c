package service

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/severstroy/matcat/domain/analytics"
	"github.com/severstroy/matcat/internal/log"
)

const (
	// recorderBuffer bounds the in-flight record queue. When full the
	// oldest record is dropped so the search path never blocks.
	recorderBuffer = 10000

	pruneInterval = 24 * time.Hour
)

var analyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "matcat_analytics_dropped_total",
	Help: "Analytics records dropped because the recorder queue was full.",
})

// AnalyticsRecorder persists search analytics off the request path. Record
// is fire-and-forget; a full queue drops the oldest observation.
type AnalyticsRecorder struct {
	store  analytics.Store
	logger *log.Logger

	mu     sync.Mutex
	queue  chan analytics.Record
	closed bool

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewAnalyticsRecorder creates an AnalyticsRecorder.
func NewAnalyticsRecorder(store analytics.Store, logger *log.Logger) *AnalyticsRecorder {
	return &AnalyticsRecorder{
		store:  store,
		logger: logger,
		queue:  make(chan analytics.Record, recorderBuffer),
		stop:   make(chan struct{}),
	}
}

// Start launches the writer and the daily retention prune.
func (r *AnalyticsRecorder) Start() {
	r.wg.Add(2)
	go r.writer()
	go r.pruner()
}

// Stop drains queued records and stops the loops.
func (r *AnalyticsRecorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	close(r.stop)
	r.wg.Wait()
}

// Record enqueues one observation. Never blocks: when the queue is full
// the oldest record is evicted to make room.
func (r *AnalyticsRecorder) Record(rec analytics.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for {
		select {
		case r.queue <- rec:
			return
		default:
		}
		select {
		case <-r.queue:
			analyticsDropped.Inc()
		default:
		}
	}
}

// QueueDepth reports the number of records awaiting persistence.
func (r *AnalyticsRecorder) QueueDepth() int { return len(r.queue) }

func (r *AnalyticsRecorder) writer() {
	defer r.wg.Done()
	ctx := context.Background()
	for rec := range r.queue {
		if err := r.store.Record(ctx, rec); err != nil {
			r.logger.WarnContext(ctx, "analytics record dropped", "error", err)
			analyticsDropped.Inc()
		}
	}
}

func (r *AnalyticsRecorder) pruner() {
	defer r.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := r.store.Prune(ctx); err != nil {
				r.logger.WarnContext(ctx, "analytics prune failed", "error", err)
			}
			cancel()
		}
	}
}
