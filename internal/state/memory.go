package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskfence/taskfence/internal/models"
)

// MemoryStore is an in-process Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.Mutex
	active  *models.ActiveTaskMarker
	pending map[uuid.UUID]pendingEntry

	// Now is swappable so tests can control expiry.
	Now func() time.Time
}

type pendingEntry struct {
	task      models.PendingTask
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory marker store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending: make(map[uuid.UUID]pendingEntry),
		Now:     time.Now,
	}
}

// SetActiveTask persists the active-task marker.
func (s *MemoryStore) SetActiveTask(ctx context.Context, marker models.ActiveTaskMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := marker
	s.active = &m
	return nil
}

// ActiveTask returns the current marker, or nil when no task is active.
func (s *MemoryStore) ActiveTask(ctx context.Context) (*models.ActiveTaskMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, nil
	}
	m := *s.active
	return &m, nil
}

// ClearActiveTask removes the marker.
func (s *MemoryStore) ClearActiveTask(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	return nil
}

// EnqueuePending records a deferred task with the given TTL.
func (s *MemoryStore) EnqueuePending(ctx context.Context, task models.PendingTask, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := pendingEntry{task: task}
	if ttl > 0 {
		entry.expiresAt = s.Now().Add(ttl)
	}
	s.pending[task.TaskID] = entry
	return nil
}

// ListPending returns all non-expired pending markers.
func (s *MemoryStore) ListPending(ctx context.Context) ([]models.PendingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var out []models.PendingTask
	for id, entry := range s.pending {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.pending, id)
			continue
		}
		out = append(out, entry.task)
	}
	return out, nil
}

// RemovePending drops one pending marker.
func (s *MemoryStore) RemovePending(ctx context.Context, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, taskID)
	return nil
}

// ClearPending drops every pending marker.
func (s *MemoryStore) ClearPending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[uuid.UUID]pendingEntry)
	return nil
}

var _ Store = (*MemoryStore)(nil)
