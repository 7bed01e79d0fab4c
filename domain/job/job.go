// Package job defines the batch-processing job model and its store contract.
package job

import (
	"time"

	"github.com/severstroy/matcat/domain/fault"
)

// Status is the per-item processing state.
type Status string

// Status values.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether a status change is legal. Transitions are
// monotonic except processing -> pending, which a retry uses.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusPending
	default:
		return false
	}
}

// Item is one material inside a processing job.
type Item struct {
	materialID    string
	name          string
	unit          string
	status        Status
	sku           string
	similarity    float64
	errMessage    string
	attempts      int
	lastAttemptAt time.Time
}

// NewItem creates a pending Item from the accept-phase input.
func NewItem(materialID, name, unit string) Item {
	return Item{
		materialID: materialID,
		name:       name,
		unit:       unit,
		status:     StatusPending,
	}
}

// RestoreItem rebuilds an Item from persisted state.
func RestoreItem(materialID, name, unit string, status Status, sku string, similarity float64, errMessage string, attempts int, lastAttemptAt time.Time) Item {
	return Item{
		materialID:    materialID,
		name:          name,
		unit:          unit,
		status:        status,
		sku:           sku,
		similarity:    similarity,
		errMessage:    errMessage,
		attempts:      attempts,
		lastAttemptAt: lastAttemptAt,
	}
}

// MaterialID returns the item's material id.
func (i Item) MaterialID() string { return i.materialID }

// Name returns the raw material name.
func (i Item) Name() string { return i.name }

// Unit returns the raw unit.
func (i Item) Unit() string { return i.unit }

// Status returns the current status.
func (i Item) Status() Status { return i.status }

// SKU returns the resolved SKU, empty when none.
func (i Item) SKU() string { return i.sku }

// Similarity returns the SKU match similarity.
func (i Item) Similarity() float64 { return i.similarity }

// ErrMessage returns the failure reason, empty unless failed.
func (i Item) ErrMessage() string { return i.errMessage }

// Attempts returns how many processing attempts ran.
func (i Item) Attempts() int { return i.attempts }

// LastAttemptAt returns when the last attempt started.
func (i Item) LastAttemptAt() time.Time { return i.lastAttemptAt }

// Update carries the fields a status transition writes alongside the new
// status.
type Update struct {
	SKU           string
	Similarity    float64
	ErrMessage    string
	Attempts      int
	LastAttemptAt time.Time
}

// Apply returns a copy of the item in the new status with update fields
// applied.
func (i Item) Apply(to Status, u Update) Item {
	i.status = to
	i.sku = u.SKU
	i.similarity = u.Similarity
	i.errMessage = u.ErrMessage
	if u.Attempts > 0 {
		i.attempts = u.Attempts
	}
	if !u.LastAttemptAt.IsZero() {
		i.lastAttemptAt = u.LastAttemptAt
	}
	return i
}

// Job is the per-request aggregate: counters over its items. The invariant
// pending+processing+completed+failed == total holds at every observation.
type Job struct {
	requestID  string
	createdAt  time.Time
	total      int
	pending    int
	processing int
	completed  int
	failed     int
	ephemeral  bool
}

// New creates a Job with all items pending.
func New(requestID string, total int) Job {
	return Job{
		requestID: requestID,
		createdAt: time.Now().UTC(),
		total:     total,
		pending:   total,
	}
}

// Restore rebuilds a Job from persisted counters.
func Restore(requestID string, createdAt time.Time, total, pending, processing, completed, failed int) Job {
	return Job{
		requestID:  requestID,
		createdAt:  createdAt,
		total:      total,
		pending:    pending,
		processing: processing,
		completed:  completed,
		failed:     failed,
	}
}

// RequestID returns the job's request id.
func (j Job) RequestID() string { return j.requestID }

// CreatedAt returns the creation timestamp.
func (j Job) CreatedAt() time.Time { return j.createdAt }

// Total returns the item count.
func (j Job) Total() int { return j.total }

// Pending returns the pending count.
func (j Job) Pending() int { return j.pending }

// Processing returns the processing count.
func (j Job) Processing() int { return j.processing }

// Completed returns the completed count.
func (j Job) Completed() int { return j.completed }

// Failed returns the failed count.
func (j Job) Failed() int { return j.failed }

// Done reports whether no items remain pending or processing.
func (j Job) Done() bool { return j.pending == 0 && j.processing == 0 }

// Ephemeral reports whether the job lives in the cache fallback and may
// expire.
func (j Job) Ephemeral() bool { return j.ephemeral }

// WithEphemeral returns a copy flagged as cache-resident.
func (j Job) WithEphemeral() Job {
	j.ephemeral = true
	return j
}

// ApplyTransition moves one item between status buckets, keeping the
// counter invariant.
func (j Job) ApplyTransition(from, to Status) (Job, error) {
	if !CanTransition(from, to) {
		return j, fault.New(fault.Conflict, "illegal status transition "+string(from)+" -> "+string(to))
	}
	dec := func(n int) (int, bool) { return n - 1, n > 0 }
	var ok bool
	switch from {
	case StatusPending:
		j.pending, ok = dec(j.pending)
	case StatusProcessing:
		j.processing, ok = dec(j.processing)
	case StatusCompleted:
		j.completed, ok = dec(j.completed)
	case StatusFailed:
		j.failed, ok = dec(j.failed)
	}
	if !ok {
		return j, fault.New(fault.Conflict, "no items in status "+string(from))
	}
	switch to {
	case StatusPending:
		j.pending++
	case StatusProcessing:
		j.processing++
	case StatusCompleted:
		j.completed++
	case StatusFailed:
		j.failed++
	}
	return j, nil
}

// CheckInvariant verifies the counter conservation invariant.
func (j Job) CheckInvariant() bool {
	return j.pending+j.processing+j.completed+j.failed == j.total
}
