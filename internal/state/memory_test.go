package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/taskfence/taskfence/internal/models"
)

func TestMemoryStore_ActiveTaskLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.ActiveTask(ctx)
	if err != nil {
		t.Fatalf("ActiveTask: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no active task, got %+v", got)
	}

	marker := models.ActiveTaskMarker{TaskID: uuid.New(), StartedAt: time.Now()}
	if err := store.SetActiveTask(ctx, marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	got, err = store.ActiveTask(ctx)
	if err != nil {
		t.Fatalf("ActiveTask: %v", err)
	}
	if got == nil || got.TaskID != marker.TaskID {
		t.Errorf("ActiveTask = %+v, want marker for %s", got, marker.TaskID)
	}

	if err := store.ClearActiveTask(ctx); err != nil {
		t.Fatalf("ClearActiveTask: %v", err)
	}
	got, err = store.ActiveTask(ctx)
	if err != nil {
		t.Fatalf("ActiveTask: %v", err)
	}
	if got != nil {
		t.Error("expected marker cleared")
	}
}

func TestMemoryStore_PendingExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	fresh := models.PendingTask{TaskID: uuid.New(), TaskName: "fresh", QueuedAt: now}
	stale := models.PendingTask{TaskID: uuid.New(), TaskName: "stale", QueuedAt: now}

	if err := store.EnqueuePending(ctx, fresh, time.Hour); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}
	if err := store.EnqueuePending(ctx, stale, time.Minute); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	now = now.Add(30 * time.Minute)

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].TaskName != "fresh" {
		t.Errorf("ListPending = %+v, want only the fresh marker", pending)
	}
}

func TestMemoryStore_RemovePending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	task := models.PendingTask{TaskID: uuid.New(), TaskName: "x", QueuedAt: time.Now()}
	if err := store.EnqueuePending(ctx, task, 0); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}
	if err := store.RemovePending(ctx, task.TaskID); err != nil {
		t.Fatalf("RemovePending: %v", err)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("ListPending = %+v, want empty", pending)
	}

	// Removing again is a no-op.
	if err := store.RemovePending(ctx, task.TaskID); err != nil {
		t.Errorf("RemovePending on absent id: %v", err)
	}
}
