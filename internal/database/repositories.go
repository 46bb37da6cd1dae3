package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskfence/taskfence/internal/models"
)

// TaskRepositoryInterface defines the interface for task repository operations
// This interface enables better testability by allowing mock implementations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, includeCompleted bool) ([]*models.Task, error)
	ListActiveByGeofence(ctx context.Context, geofenceIDs []string) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Complete(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// GeofenceRepositoryInterface defines the interface for geofence repository operations
type GeofenceRepositoryInterface interface {
	Create(ctx context.Context, fence *models.Geofence) error
	GetByID(ctx context.Context, id string) (*models.Geofence, error)
	List(ctx context.Context) ([]*models.Geofence, error)
	Update(ctx context.Context, fence *models.Geofence) error
	Delete(ctx context.Context, id string) error
}

// TaskHistoryRepositoryInterface defines the interface for work-session history operations
type TaskHistoryRepositoryInterface interface {
	Open(ctx context.Context, entry *models.TaskHistoryEntry) error
	CloseOpen(ctx context.Context, taskID uuid.UUID, endedAt time.Time) (*models.TaskHistoryEntry, error)
	HasOpen(ctx context.Context, taskID uuid.UUID) (bool, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskHistoryEntry, error)
	ListByDate(ctx context.Context, date time.Time) ([]*models.TaskHistoryEntry, error)
	DeleteByTask(ctx context.Context, taskID uuid.UUID) error
}

// NotificationHistoryRepositoryInterface defines the interface for the notification audit log
type NotificationHistoryRepositoryInterface interface {
	Insert(ctx context.Context, entry *models.NotificationHistoryEntry) error
	List(ctx context.Context, limit int) ([]*models.NotificationHistoryEntry, error)
	Clear(ctx context.Context) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TaskRepositoryInterface                = (*TaskRepository)(nil)
	_ GeofenceRepositoryInterface            = (*GeofenceRepository)(nil)
	_ TaskHistoryRepositoryInterface         = (*TaskHistoryRepository)(nil)
	_ NotificationHistoryRepositoryInterface = (*NotificationHistoryRepository)(nil)
)
