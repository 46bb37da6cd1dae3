package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/taskfence/taskfence/internal/models"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, name, priority, scheduled_date, scheduled_time, is_recurring, recurrence,
	geofence_id, is_completed, notification_sound, enable_speech, created_at`

// Create inserts a new task, assigning its identity and creation timestamp.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	id := uuid.New()
	recurrenceJSON, err := marshalRecurrence(task.Recurrence)
	if err != nil {
		return fmt.Errorf("failed to marshal recurrence: %w", err)
	}

	query := `
		INSERT INTO tasks (id, name, priority, scheduled_date, scheduled_time, is_recurring, recurrence,
			geofence_id, is_completed, notification_sound, enable_speech, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		id,
		task.Name,
		task.Priority,
		nullTime(task.ScheduledDate),
		nullString(task.ScheduledTime),
		task.IsRecurring,
		recurrenceJSON,
		nullString(task.GeofenceID),
		task.IsCompleted,
		task.NotificationSound,
		nullBool(task.EnableSpeech),
		time.Now(),
	).Scan(&task.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.ID = &id
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List retrieves all tasks, optionally filtered by completion state.
func (r *TaskRepository) List(ctx context.Context, includeCompleted bool) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if !includeCompleted {
		query += ` WHERE NOT is_completed`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListActiveByGeofence retrieves the candidate set for a fired geofence
// event: non-completed tasks whose geofence reference is in the fired set.
func (r *TaskRepository) ListActiveByGeofence(ctx context.Context, geofenceIDs []string) ([]*models.Task, error) {
	if len(geofenceIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE NOT is_completed AND geofence_id = ANY($1)
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(geofenceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by geofence: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Update updates an existing task
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	if task.ID == nil {
		return fmt.Errorf("cannot update a task without an id")
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	recurrenceJSON, err := marshalRecurrence(task.Recurrence)
	if err != nil {
		return fmt.Errorf("failed to marshal recurrence: %w", err)
	}

	query := `
		UPDATE tasks
		SET name = $2, priority = $3, scheduled_date = $4, scheduled_time = $5, is_recurring = $6,
			recurrence = $7, geofence_id = $8, is_completed = $9, notification_sound = $10, enable_speech = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		*task.ID,
		task.Name,
		task.Priority,
		nullTime(task.ScheduledDate),
		nullString(task.ScheduledTime),
		task.IsRecurring,
		recurrenceJSON,
		nullString(task.GeofenceID),
		task.IsCompleted,
		task.NotificationSound,
		nullBool(task.EnableSpeech),
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found")
	}
	return nil
}

// Complete marks a task completed.
func (r *TaskRepository) Complete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE tasks SET is_completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check completion result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found")
	}
	return nil
}

// Delete removes a task. History rows keep a null task reference.
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var (
		id             uuid.UUID
		scheduledDate  sql.NullTime
		scheduledTime  sql.NullString
		recurrenceJSON []byte
		geofenceID     sql.NullString
		enableSpeech   sql.NullBool
	)

	err := row.Scan(
		&id,
		&task.Name,
		&task.Priority,
		&scheduledDate,
		&scheduledTime,
		&task.IsRecurring,
		&recurrenceJSON,
		&geofenceID,
		&task.IsCompleted,
		&task.NotificationSound,
		&enableSpeech,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ID = &id
	if scheduledDate.Valid {
		task.ScheduledDate = &scheduledDate.Time
	}
	if scheduledTime.Valid {
		task.ScheduledTime = &scheduledTime.String
	}
	if geofenceID.Valid {
		task.GeofenceID = &geofenceID.String
	}
	if enableSpeech.Valid {
		task.EnableSpeech = &enableSpeech.Bool
	}
	if task.IsRecurring {
		task.Recurrence = models.RecurrencePatternFromJSON(recurrenceJSON)
	}

	return task, nil
}

func collectTasks(rows *sql.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func marshalRecurrence(p *models.RecurrencePattern) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return p.ToJSON()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
