package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/infrastructure/cache"
)

// jobTTL bounds how long a cache-resident job survives. Clients polling an
// expired job get a not-found answer, which the results_ephemeral flag
// warns them about up front.
const jobTTL = 24 * time.Hour

// casAttempts bounds the optimistic-retry loop on contended transitions.
const casAttempts = 8

type jobItemDoc struct {
	MaterialID    string    `json:"material_id"`
	Name          string    `json:"name"`
	Unit          string    `json:"unit"`
	Status        string    `json:"status"`
	SKU           string    `json:"sku,omitempty"`
	Similarity    float64   `json:"similarity,omitempty"`
	ErrMessage    string    `json:"err_message,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

type jobDoc struct {
	RequestID  string       `json:"request_id"`
	CreatedAt  time.Time    `json:"created_at"`
	Total      int          `json:"total"`
	Pending    int          `json:"pending"`
	Processing int          `json:"processing"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Items      []jobItemDoc `json:"items"`
}

// CacheJobStore keeps jobs in the cache tier when the SQL side is down.
// The whole job document moves through compare-and-set so concurrent
// transitions serialize without a database.
type CacheJobStore struct {
	cache cache.Cache
}

// NewCacheJobStore creates a CacheJobStore.
func NewCacheJobStore(c cache.Cache) *CacheJobStore {
	return &CacheJobStore{cache: c}
}

func jobKey(requestID string) string { return "job:" + requestID }

// Create stores the job document, failing when the request id already
// exists.
func (s *CacheJobStore) Create(ctx context.Context, j job.Job, items []job.Item) error {
	doc := jobDoc{
		RequestID:  j.RequestID(),
		CreatedAt:  j.CreatedAt(),
		Total:      j.Total(),
		Pending:    j.Pending(),
		Processing: j.Processing(),
		Completed:  j.Completed(),
		Failed:     j.Failed(),
		Items:      make([]jobItemDoc, len(items)),
	}
	for i, it := range items {
		doc.Items[i] = itemToDoc(it)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := s.cache.CompareAndSwap(ctx, jobKey(j.RequestID()), nil, payload, jobTTL)
	if err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	if !ok {
		return fault.New(fault.Conflict, fmt.Sprintf("job %s already exists", j.RequestID()))
	}
	return nil
}

// Get returns the job counters, flagged ephemeral.
func (s *CacheJobStore) Get(ctx context.Context, requestID string) (job.Job, error) {
	doc, _, err := s.load(ctx, requestID)
	if err != nil {
		return job.Job{}, err
	}
	return docToJob(doc), nil
}

// Items returns the per-item rows in accept order.
func (s *CacheJobStore) Items(ctx context.Context, requestID string) ([]job.Item, error) {
	doc, _, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	items := make([]job.Item, len(doc.Items))
	for i, d := range doc.Items {
		items[i] = docToItem(d)
	}
	return items, nil
}

// Transition applies one item transition through a compare-and-set loop.
func (s *CacheJobStore) Transition(ctx context.Context, requestID, materialID string, from, to job.Status, update job.Update) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, prev, err := s.load(ctx, requestID)
		if err != nil {
			return err
		}

		idx := -1
		for i, d := range doc.Items {
			if d.MaterialID == materialID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fault.NewNotFound("job item", materialID)
		}
		current := docToItem(doc.Items[idx])
		if current.Status() != from {
			return fault.New(fault.Conflict,
				fmt.Sprintf("item %s of job %s is not in status %s", materialID, requestID, from))
		}

		next, err := docToJob(doc).ApplyTransition(from, to)
		if err != nil {
			return err
		}
		doc.Items[idx] = itemToDoc(current.Apply(to, update))
		doc.Pending = next.Pending()
		doc.Processing = next.Processing()
		doc.Completed = next.Completed()
		doc.Failed = next.Failed()

		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		ok, err := s.cache.CompareAndSwap(ctx, jobKey(requestID), prev, payload, jobTTL)
		if err != nil {
			return fmt.Errorf("store job: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fault.New(fault.Conflict,
		fmt.Sprintf("job %s transition lost %d compare-and-set races", requestID, casAttempts))
}

// Ephemeral reports true: cache-resident jobs expire.
func (s *CacheJobStore) Ephemeral() bool { return true }

func (s *CacheJobStore) load(ctx context.Context, requestID string) (jobDoc, []byte, error) {
	raw, err := s.cache.Get(ctx, jobKey(requestID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return jobDoc{}, nil, fault.NewNotFound("job", requestID)
		}
		return jobDoc{}, nil, fmt.Errorf("load job: %w", err)
	}
	var doc jobDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return jobDoc{}, nil, fmt.Errorf("decode job: %w", err)
	}
	return doc, raw, nil
}

func docToJob(d jobDoc) job.Job {
	return job.Restore(d.RequestID, d.CreatedAt, d.Total, d.Pending, d.Processing, d.Completed, d.Failed).
		WithEphemeral()
}

func docToItem(d jobItemDoc) job.Item {
	return job.RestoreItem(d.MaterialID, d.Name, d.Unit, job.Status(d.Status),
		d.SKU, d.Similarity, d.ErrMessage, d.Attempts, d.LastAttemptAt)
}

func itemToDoc(i job.Item) jobItemDoc {
	return jobItemDoc{
		MaterialID:    i.MaterialID(),
		Name:          i.Name(),
		Unit:          i.Unit(),
		Status:        string(i.Status()),
		SKU:           i.SKU(),
		Similarity:    i.Similarity(),
		ErrMessage:    i.ErrMessage(),
		Attempts:      i.Attempts(),
		LastAttemptAt: i.LastAttemptAt(),
	}
}

var _ job.Store = (*CacheJobStore)(nil)
