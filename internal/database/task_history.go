package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskfence/taskfence/internal/models"
)

// ErrNoOpenEntry is returned when closing a session that has no open history
// entry for the given task.
var ErrNoOpenEntry = errors.New("no open history entry for task")

// TaskHistoryRepository handles work-session history persistence
type TaskHistoryRepository struct {
	db *DB
}

// NewTaskHistoryRepository creates a new task history repository
func NewTaskHistoryRepository(db *DB) *TaskHistoryRepository {
	return &TaskHistoryRepository{db: db}
}

const historyColumns = `id, task_id, start_time, end_time, duration_seconds, completion_date, geofence_id`

// Open creates a new open entry (EndTime null) for a starting work session.
func (r *TaskHistoryRepository) Open(ctx context.Context, entry *models.TaskHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CompletionDate.IsZero() {
		s := entry.StartTime
		entry.CompletionDate = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
	}

	query := `
		INSERT INTO task_history (id, task_id, start_time, end_time, duration_seconds, completion_date, geofence_id)
		VALUES ($1, $2, $3, NULL, 0, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		nullUUID(entry.TaskID),
		entry.StartTime,
		entry.CompletionDate,
		nullString(entry.GeofenceID),
	)
	if err != nil {
		return fmt.Errorf("failed to open history entry: %w", err)
	}
	return nil
}

// CloseOpen closes the single open entry for the task, stamping the end time
// and derived duration. Returns ErrNoOpenEntry when none is open.
func (r *TaskHistoryRepository) CloseOpen(ctx context.Context, taskID uuid.UUID, endedAt time.Time) (*models.TaskHistoryEntry, error) {
	completionDate := time.Date(endedAt.Year(), endedAt.Month(), endedAt.Day(), 0, 0, 0, 0, endedAt.Location())

	query := `
		UPDATE task_history
		SET end_time = $2,
			duration_seconds = EXTRACT(EPOCH FROM ($2 - start_time))::bigint,
			completion_date = $3
		WHERE task_id = $1 AND end_time IS NULL
		RETURNING ` + historyColumns

	entry, err := scanHistoryEntry(r.db.QueryRowContext(ctx, query, taskID, endedAt, completionDate))
	if err == sql.ErrNoRows {
		return nil, ErrNoOpenEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close history entry: %w", err)
	}
	return entry, nil
}

// HasOpen reports whether the task currently has an open work session.
func (r *TaskHistoryRepository) HasOpen(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM task_history WHERE task_id = $1 AND end_time IS NULL LIMIT 1`, taskID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check open history entry: %w", err)
	}
	return true, nil
}

// ListByTask retrieves the session history for one task, newest first.
func (r *TaskHistoryRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM task_history WHERE task_id = $1 ORDER BY start_time DESC`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()
	return collectHistoryEntries(rows)
}

// ListByDate retrieves closed sessions completed on the given calendar date,
// for calendar-style aggregation.
func (r *TaskHistoryRepository) ListByDate(ctx context.Context, date time.Time) ([]*models.TaskHistoryEntry, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	query := `SELECT ` + historyColumns + ` FROM task_history
		WHERE completion_date = $1 AND end_time IS NOT NULL
		ORDER BY start_time ASC`
	rows, err := r.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query history by date: %w", err)
	}
	defer rows.Close()
	return collectHistoryEntries(rows)
}

// DeleteByTask removes all history rows for a task.
func (r *TaskHistoryRepository) DeleteByTask(ctx context.Context, taskID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM task_history WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete task history: %w", err)
	}
	return nil
}

func scanHistoryEntry(row rowScanner) (*models.TaskHistoryEntry, error) {
	entry := &models.TaskHistoryEntry{}
	var (
		taskID     sql.NullString
		endTime    sql.NullTime
		geofenceID sql.NullString
	)

	err := row.Scan(
		&entry.ID,
		&taskID,
		&entry.StartTime,
		&endTime,
		&entry.DurationSeconds,
		&entry.CompletionDate,
		&geofenceID,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		if id, parseErr := uuid.Parse(taskID.String); parseErr == nil {
			entry.TaskID = &id
		}
	}
	if endTime.Valid {
		entry.EndTime = &endTime.Time
	}
	if geofenceID.Valid {
		entry.GeofenceID = &geofenceID.String
	}
	return entry, nil
}

func collectHistoryEntries(rows *sql.Rows) ([]*models.TaskHistoryEntry, error) {
	var entries []*models.TaskHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history entries: %w", err)
	}
	return entries, nil
}
