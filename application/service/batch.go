package service

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

const (
	// queueCapacity bounds the number of jobs waiting for a worker.
	queueCapacity = 100

	itemMaxAttempts = 3
	itemRetryBase   = time.Second
	itemRetryFactor = 4
	itemRetryJitter = 0.25

	// emaAlpha weights the latest per-item latency in the moving average.
	emaAlpha       = 0.2
	defaultItemEMA = 2 * time.Second
)

// Enricher runs the enrichment pipeline for one material.
type Enricher interface {
	Enrich(ctx context.Context, id, name, unit string) (EnrichmentResult, error)
}

// BatchItem is one submitted material.
type BatchItem struct {
	MaterialID string
	Name       string
	Unit       string
}

// Rejection is a per-item accept failure; the rest of the request still
// runs.
type Rejection struct {
	Index      int
	MaterialID string
	Err        error
}

// Accepted is the synchronous response to a batch submission.
type Accepted struct {
	RequestID           string
	Total               int
	Rejected            []Rejection
	EstimatedCompletion time.Time
	ResultsEphemeral    bool
}

// JobStatus pairs the job counters with its items.
type JobStatus struct {
	Job              job.Job
	Items            []job.Item
	ResultsEphemeral bool
}

type batchTask struct {
	requestID string
	items     []job.Item
}

// BatchService accepts enrichment jobs and processes them on a fixed worker
// pool. Item state lives in the job store so status survives restarts when
// the store is durable.
type BatchService struct {
	store    job.Store
	enricher Enricher
	cfg      config.BatchConfig
	logger   *log.Logger

	queue chan batchTask
	// slots is acquired before a job is persisted so a full queue rejects
	// the request without leaving an orphaned job behind.
	slots chan struct{}

	itemEMA atomic.Int64

	wg      sync.WaitGroup
	started atomic.Bool
	stop    chan struct{}
}

// NewBatchService creates a BatchService.
func NewBatchService(store job.Store, enricher Enricher, cfg config.BatchConfig, logger *log.Logger) *BatchService {
	s := &BatchService{
		store:    store,
		enricher: enricher,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan batchTask, queueCapacity),
		slots:    make(chan struct{}, queueCapacity),
		stop:     make(chan struct{}),
	}
	s.itemEMA.Store(int64(defaultItemEMA))
	return s
}

// Start launches the worker pool.
func (s *BatchService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	workers := s.cfg.Workers()
	if workers <= 0 {
		workers = config.DefaultBatchWorkers
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop drains the pool: no new jobs are accepted, queued jobs finish.
// The queue channel stays open so a Submit racing the shutdown fails
// with a rejection instead of a send on a closed channel.
func (s *BatchService) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	close(s.stop)
	s.wg.Wait()
}

// Submit validates and enqueues a batch. Individually invalid items are
// rejected without failing the rest; a full queue rejects the whole
// request.
func (s *BatchService) Submit(ctx context.Context, items []BatchItem) (Accepted, error) {
	if !s.started.Load() {
		return Accepted{}, fault.New(fault.BackpressureRejected, "service is not running")
	}
	maxItems := s.cfg.MaxItems()
	if maxItems <= 0 {
		maxItems = config.DefaultBatchMaxItems
	}
	if len(items) == 0 {
		return Accepted{}, fault.NewValidation("empty batch",
			map[string]string{"items": "must contain at least one item"})
	}
	if len(items) > maxItems {
		return Accepted{}, fault.NewValidation("batch too large",
			map[string]string{"items": "exceeds the per-request item cap"})
	}

	var (
		accepted []job.Item
		rejected []Rejection
		seen     = make(map[string]struct{}, len(items))
	)
	for i, item := range items {
		if err := validateBatchItem(item); err != nil {
			rejected = append(rejected, Rejection{Index: i, MaterialID: item.MaterialID, Err: err})
			continue
		}
		if _, dup := seen[item.MaterialID]; dup {
			rejected = append(rejected, Rejection{Index: i, MaterialID: item.MaterialID,
				Err: fault.New(fault.Conflict, "duplicate material_id in batch")})
			continue
		}
		seen[item.MaterialID] = struct{}{}
		accepted = append(accepted, job.NewItem(item.MaterialID, item.Name, item.Unit))
	}
	if len(accepted) == 0 {
		return Accepted{}, fault.NewValidation("no acceptable items",
			map[string]string{"items": "every item was rejected"})
	}

	select {
	case s.slots <- struct{}{}:
	default:
		return Accepted{}, fault.New(fault.BackpressureRejected, "batch queue is full")
	}

	requestID := uuid.NewString()
	j := job.New(requestID, len(accepted))
	if err := s.store.Create(ctx, j, accepted); err != nil {
		<-s.slots
		return Accepted{}, err
	}

	select {
	case s.queue <- batchTask{requestID: requestID, items: accepted}:
	case <-s.stop:
		<-s.slots
		return Accepted{}, fault.New(fault.BackpressureRejected, "service is shutting down")
	}

	return Accepted{
		RequestID:           requestID,
		Total:               len(accepted),
		Rejected:            rejected,
		EstimatedCompletion: s.estimateCompletion(len(accepted)),
		ResultsEphemeral:    s.store.Ephemeral(),
	}, nil
}

// Status returns the job counters and per-item rows.
func (s *BatchService) Status(ctx context.Context, requestID string) (JobStatus, error) {
	j, err := s.store.Get(ctx, requestID)
	if err != nil {
		return JobStatus{}, err
	}
	items, err := s.store.Items(ctx, requestID)
	if err != nil {
		return JobStatus{}, err
	}
	return JobStatus{Job: j, Items: items, ResultsEphemeral: j.Ephemeral() || s.store.Ephemeral()}, nil
}

// QueueDepth reports the number of jobs waiting or running.
func (s *BatchService) QueueDepth() int { return len(s.slots) }

func validateBatchItem(item BatchItem) error {
	fields := map[string]string{}
	if item.MaterialID == "" {
		fields["material_id"] = "must not be empty"
	}
	if item.Name == "" {
		fields["name"] = "must not be empty"
	}
	if item.Unit == "" {
		fields["unit"] = "must not be empty"
	}
	if len(fields) > 0 {
		return fault.NewValidation("invalid batch item", fields)
	}
	return nil
}

func (s *BatchService) worker() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.queue:
			s.processJob(task)
			<-s.slots
		case <-s.stop:
			// Finish what was queued before the stop, then exit.
			for {
				select {
				case task := <-s.queue:
					s.processJob(task)
					<-s.slots
				default:
					return
				}
			}
		}
	}
}

func (s *BatchService) processJob(task batchTask) {
	ctx := context.Background()
	chunkSize := s.cfg.ChunkSize()
	if chunkSize <= 0 {
		chunkSize = config.DefaultBatchChunkSize
	}
	for start := 0; start < len(task.items); start += chunkSize {
		end := start + chunkSize
		if end > len(task.items) {
			end = len(task.items)
		}
		for _, item := range task.items[start:end] {
			s.processItem(ctx, task.requestID, item)
		}
	}
	s.logger.InfoContext(ctx, "batch job drained",
		"request_id", task.requestID, "items", len(task.items))
}

// processItem drives one item through its attempts. Each attempt moves the
// row to processing, runs the pipeline under the per-item deadline, and
// records the outcome through a guarded transition.
func (s *BatchService) processItem(ctx context.Context, requestID string, item job.Item) {
	materialID := item.MaterialID()
	for attempt := 1; attempt <= itemMaxAttempts; attempt++ {
		if err := s.store.Transition(ctx, requestID, materialID,
			job.StatusPending, job.StatusProcessing, job.Update{}); err != nil {
			// Another worker owns the item or the job expired.
			s.logger.WarnContext(ctx, "item claim failed",
				"request_id", requestID, "material_id", materialID, "error", err)
			return
		}

		started := time.Now()
		result, err := s.enrichWithDeadline(ctx, materialID, item.Name(), item.Unit())
		s.observeItemLatency(time.Since(started))

		if err == nil {
			if terr := s.store.Transition(ctx, requestID, materialID,
				job.StatusProcessing, job.StatusCompleted,
				job.Update{
					SKU:           result.SKU,
					Similarity:    result.Similarity,
					Attempts:      attempt,
					LastAttemptAt: started.UTC(),
				}); terr != nil {
				s.logger.ErrorContext(ctx, "item completion transition failed",
					"request_id", requestID, "material_id", materialID, "error", terr)
			}
			return
		}

		update := job.Update{
			ErrMessage:    err.Error(),
			Attempts:      attempt,
			LastAttemptAt: started.UTC(),
		}
		if attempt < itemMaxAttempts && fault.Transient(err) {
			if terr := s.store.Transition(ctx, requestID, materialID,
				job.StatusProcessing, job.StatusPending, update); terr != nil {
				s.logger.ErrorContext(ctx, "item retry transition failed",
					"request_id", requestID, "material_id", materialID, "error", terr)
				return
			}
			time.Sleep(itemRetryDelay(attempt))
			continue
		}

		if terr := s.store.Transition(ctx, requestID, materialID,
			job.StatusProcessing, job.StatusFailed, update); terr != nil {
			s.logger.ErrorContext(ctx, "item failure transition failed",
				"request_id", requestID, "material_id", materialID, "error", terr)
		}
		return
	}
}

func (s *BatchService) enrichWithDeadline(ctx context.Context, id, name, unit string) (EnrichmentResult, error) {
	timeout := s.cfg.ItemTimeout()
	if timeout <= 0 {
		timeout = config.DefaultItemTimeout
	}
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.enricher.Enrich(itemCtx, id, name, unit)
}

// itemRetryDelay is 1s, 4s, 16s with +-25% jitter.
func itemRetryDelay(attempt int) time.Duration {
	d := itemRetryBase
	for i := 1; i < attempt; i++ {
		d *= itemRetryFactor
	}
	jitter := 1 + itemRetryJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

func (s *BatchService) observeItemLatency(d time.Duration) {
	for {
		prev := s.itemEMA.Load()
		next := int64(emaAlpha*float64(d) + (1-emaAlpha)*float64(prev))
		if s.itemEMA.CompareAndSwap(prev, next) {
			return
		}
	}
}

func (s *BatchService) estimateCompletion(total int) time.Time {
	workers := s.cfg.Workers()
	if workers <= 0 {
		workers = config.DefaultBatchWorkers
	}
	perItem := time.Duration(s.itemEMA.Load())
	wall := time.Duration(total) * perItem / time.Duration(workers)
	return time.Now().UTC().Add(wall)
}
