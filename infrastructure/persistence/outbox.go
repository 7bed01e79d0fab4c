package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/severstroy/matcat/internal/database"
)

// Outbox operations recorded when the relational side of a dual write
// exhausts its retries.
const (
	OutboxOpUpsert = "upsert"
	OutboxOpDelete = "delete"
)

// OutboxEvent is one pending reconciliation: the relational write that
// still has to be replayed to converge with the vector store.
type OutboxEvent struct {
	ID         uint
	Op         string
	MaterialID string
	Payload    []byte
	CreatedAt  time.Time
}

// OutboxStore is the reconciliation queue between the vector and SQL tiers.
type OutboxStore struct {
	db database.Database
}

// NewOutboxStore creates an OutboxStore.
func NewOutboxStore(db database.Database) *OutboxStore {
	return &OutboxStore{db: db}
}

// Append records a failed relational write for later replay.
func (s *OutboxStore) Append(ctx context.Context, op, materialID string, payload []byte) error {
	row := ReconciliationEventRow{
		Op:         op,
		MaterialID: materialID,
		Payload:    string(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if result := s.db.Session(ctx).Create(&row); result.Error != nil {
		return fmt.Errorf("append reconciliation event: %w", result.Error)
	}
	return nil
}

// Pending returns the oldest queued events, bounded by limit.
func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []ReconciliationEventRow
	result := s.db.Session(ctx).
		Order("id ASC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("load reconciliation events: %w", result.Error)
	}
	events := make([]OutboxEvent, len(rows))
	for i, r := range rows {
		events[i] = OutboxEvent{
			ID:         r.ID,
			Op:         r.Op,
			MaterialID: r.MaterialID,
			Payload:    []byte(r.Payload),
			CreatedAt:  r.CreatedAt,
		}
	}
	return events, nil
}

// Resolve removes replayed events by id.
func (s *OutboxStore) Resolve(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	result := s.db.Session(ctx).Where("id IN ?", ids).Delete(&ReconciliationEventRow{})
	if result.Error != nil {
		return fmt.Errorf("resolve reconciliation events: %w", result.Error)
	}
	return nil
}

// Depth returns how many events are queued.
func (s *OutboxStore) Depth(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Session(ctx).Model(&ReconciliationEventRow{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("count reconciliation events: %w", result.Error)
	}
	return count, nil
}
