package job

import "context"

// Store persists jobs and their items. The SQL implementation uses
// row-level transactions; the cache fallback uses compare-and-set and is
// ephemeral (rows expire).
type Store interface {
	// Create persists the job and all its items atomically.
	Create(ctx context.Context, j Job, items []Item) error

	// Get returns the job counters for a request id.
	Get(ctx context.Context, requestID string) (Job, error)

	// Items returns the per-item rows in accept order.
	Items(ctx context.Context, requestID string) ([]Item, error)

	// Transition atomically moves one item from one status to another,
	// applying the update fields and adjusting the job counters. Fails
	// with a Conflict fault when the item is not in the expected status.
	Transition(ctx context.Context, requestID, materialID string, from, to Status, update Update) error

	// Ephemeral reports whether jobs in this store may expire.
	Ephemeral() bool
}
