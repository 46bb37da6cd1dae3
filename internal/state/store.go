// Package state persists the small cross-process markers both execution
// contexts rely on: the active-task marker (the source of truth for
// preemption decisions) and the pending "Do Later" queue. Markers live in a
// key-value store precisely because the background trigger context shares no
// memory with the foreground process.
package state

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskfence/taskfence/internal/models"
)

// Store is the key-value persistence capability for cross-context markers.
// Pending markers carry an expiry: a marker past its TTL is ignored on read.
type Store interface {
	// SetActiveTask persists the active-task marker, overwriting any previous one.
	SetActiveTask(ctx context.Context, marker models.ActiveTaskMarker) error
	// ActiveTask returns the current marker, or nil when no task is active.
	ActiveTask(ctx context.Context) (*models.ActiveTaskMarker, error)
	// ClearActiveTask removes the marker. Clearing an absent marker is a no-op.
	ClearActiveTask(ctx context.Context) error

	// EnqueuePending records a deferred task with the given time-to-live.
	EnqueuePending(ctx context.Context, task models.PendingTask, ttl time.Duration) error
	// ListPending returns all non-expired pending markers.
	ListPending(ctx context.Context) ([]models.PendingTask, error)
	// RemovePending drops one pending marker. Unknown ids are a no-op.
	RemovePending(ctx context.Context, taskID uuid.UUID) error
	// ClearPending drops every pending marker.
	ClearPending(ctx context.Context) error
}
