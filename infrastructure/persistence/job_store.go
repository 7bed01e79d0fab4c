package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm"
)

// SQLJobStore persists jobs and items with row-level transactions. Status
// transitions use compare-and-set on the status column so concurrent
// workers cannot double-apply one item.
type SQLJobStore struct {
	db database.Database
}

// NewSQLJobStore creates a SQLJobStore.
func NewSQLJobStore(db database.Database) *SQLJobStore {
	return &SQLJobStore{db: db}
}

// Create persists the job and all its items atomically.
func (s *SQLJobStore) Create(ctx context.Context, j job.Job, items []job.Item) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		row := JobMapper{}.ToModel(j)
		if result := tx.Create(&row); result.Error != nil {
			return fmt.Errorf("create job: %w", result.Error)
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]JobItemRow, len(items))
		for i, it := range items {
			rows[i] = JobItemMapper{}.ToModel(it)
			rows[i].RequestID = j.RequestID()
			rows[i].Seq = i
		}
		if result := tx.CreateInBatches(&rows, 500); result.Error != nil {
			return fmt.Errorf("create job items: %w", result.Error)
		}
		return nil
	})
}

// Get returns the job counters for a request id.
func (s *SQLJobStore) Get(ctx context.Context, requestID string) (job.Job, error) {
	var row JobRow
	result := s.db.Session(ctx).Where("request_id = ?", requestID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return job.Job{}, fault.NewNotFound("job", requestID)
		}
		return job.Job{}, fmt.Errorf("get job: %w", result.Error)
	}
	return JobMapper{}.ToDomain(row), nil
}

// Items returns the per-item rows in accept order.
func (s *SQLJobStore) Items(ctx context.Context, requestID string) ([]job.Item, error) {
	var rows []JobItemRow
	result := s.db.Session(ctx).
		Where("request_id = ?", requestID).
		Order("seq ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("get job items: %w", result.Error)
	}
	items := make([]job.Item, len(rows))
	for i, r := range rows {
		items[i] = JobItemMapper{}.ToDomain(r)
	}
	return items, nil
}

// Transition moves one item between statuses and adjusts the job counters
// in a single transaction. The WHERE status guard makes the item update a
// compare-and-set; zero rows affected means another worker won.
func (s *SQLJobStore) Transition(ctx context.Context, requestID, materialID string, from, to job.Status, update job.Update) error {
	if !job.CanTransition(from, to) {
		return fault.New(fault.Conflict, fmt.Sprintf("illegal status transition %s -> %s", from, to))
	}
	fromCol, err := statusColumn(from)
	if err != nil {
		return err
	}
	toCol, err := statusColumn(to)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		values := map[string]any{
			"status":      string(to),
			"sku":         update.SKU,
			"similarity":  update.Similarity,
			"err_message": update.ErrMessage,
		}
		if update.Attempts > 0 {
			values["attempts"] = update.Attempts
		}
		if !update.LastAttemptAt.IsZero() {
			values["last_attempt_at"] = update.LastAttemptAt
		}

		result := tx.Model(&JobItemRow{}).
			Where("request_id = ? AND material_id = ? AND status = ?", requestID, materialID, string(from)).
			Updates(values)
		if result.Error != nil {
			return fmt.Errorf("transition item: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fault.New(fault.Conflict,
				fmt.Sprintf("item %s of job %s is not in status %s", materialID, requestID, from))
		}

		counters := tx.Model(&JobRow{}).
			Where(fmt.Sprintf("request_id = ? AND %s > 0", fromCol), requestID).
			Updates(map[string]any{
				fromCol: gorm.Expr(fromCol+" - 1"),
				toCol:   gorm.Expr(toCol + " + 1"),
			})
		if counters.Error != nil {
			return fmt.Errorf("adjust job counters: %w", counters.Error)
		}
		if counters.RowsAffected == 0 {
			return fault.New(fault.Conflict,
				fmt.Sprintf("job %s has no items counted in status %s", requestID, from))
		}
		return nil
	})
}

// Ephemeral reports false: SQL jobs survive restarts.
func (s *SQLJobStore) Ephemeral() bool { return false }

func statusColumn(st job.Status) (string, error) {
	switch st {
	case job.StatusPending:
		return "pending", nil
	case job.StatusProcessing:
		return "processing", nil
	case job.StatusCompleted:
		return "completed", nil
	case job.StatusFailed:
		return "failed", nil
	default:
		return "", fmt.Errorf("unknown job status %q", st)
	}
}

var _ job.Store = (*SQLJobStore)(nil)
