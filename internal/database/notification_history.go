package database

import (
	"context"
	"fmt"
	"time"

	"github.com/taskfence/taskfence/internal/models"
	"go.uber.org/zap"
)

// NotificationHistoryRepository handles the append-only notification audit log
type NotificationHistoryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationHistoryRepository creates a new notification history repository
func NewNotificationHistoryRepository(db *DB) *NotificationHistoryRepository {
	return &NotificationHistoryRepository{db: db}
}

// SetLogger attaches a logger used by the retrying insert path.
func (r *NotificationHistoryRepository) SetLogger(logger *zap.Logger) {
	r.logger = logger
}

// Insert appends one audit record, retrying transient failures with backoff.
// The trigger handler calls this from its constrained background context, so
// lock contention with the foreground process is expected and absorbed here.
func (r *NotificationHistoryRepository) Insert(ctx context.Context, entry *models.NotificationHistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	query := `
		INSERT INTO notification_history (notification_id, geofence_id, task_name, event_type, body, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	return WithRetry(ctx, r.logger, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, query,
			entry.NotificationID,
			entry.GeofenceID,
			entry.TaskName,
			entry.EventType,
			entry.Body,
			entry.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification history: %w", err)
		}
		return nil
	})
}

// List retrieves notification history, newest first, bounded by limit
// (0 means no bound).
func (r *NotificationHistoryRepository) List(ctx context.Context, limit int) ([]*models.NotificationHistoryEntry, error) {
	query := `
		SELECT notification_id, geofence_id, task_name, event_type, body, ts
		FROM notification_history
		ORDER BY ts DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification history: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationHistoryEntry
	for rows.Next() {
		entry := &models.NotificationHistoryEntry{}
		if err := rows.Scan(
			&entry.NotificationID,
			&entry.GeofenceID,
			&entry.TaskName,
			&entry.EventType,
			&entry.Body,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification history: %w", err)
	}
	return entries, nil
}

// Clear removes all notification history. This is the only way rows leave
// the audit log.
func (r *NotificationHistoryRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notification_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notification history: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared rows: %w", err)
	}
	return rows, nil
}
