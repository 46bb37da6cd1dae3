package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskfence/taskfence/internal/models"
)

// GeofenceRepository handles geofence database operations
type GeofenceRepository struct {
	db *DB
}

// NewGeofenceRepository creates a new geofence repository
func NewGeofenceRepository(db *DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

const geofenceColumns = `id, latitude, longitude, radius_meters, fill_color, fill_opacity,
	stroke_color, stroke_width, task_name, created_at`

// Create inserts a new geofence
func (r *GeofenceRepository) Create(ctx context.Context, fence *models.Geofence) error {
	if err := fence.Validate(); err != nil {
		return fmt.Errorf("invalid geofence: %w", err)
	}

	query := `
		INSERT INTO geofences (id, latitude, longitude, radius_meters, fill_color, fill_opacity,
			stroke_color, stroke_width, task_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		fence.ID,
		fence.Latitude,
		fence.Longitude,
		fence.RadiusMeters,
		fence.FillColor,
		fence.FillOpacity,
		fence.StrokeColor,
		fence.StrokeWidth,
		nullString(fence.TaskName),
		time.Now(),
	).Scan(&fence.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create geofence: %w", err)
	}
	return nil
}

// GetByID retrieves a geofence by ID
func (r *GeofenceRepository) GetByID(ctx context.Context, id string) (*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences WHERE id = $1`
	fence, err := scanGeofence(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("geofence not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geofence: %w", err)
	}
	return fence, nil
}

// List retrieves all geofences
func (r *GeofenceRepository) List(ctx context.Context) ([]*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query geofences: %w", err)
	}
	defer rows.Close()

	var fences []*models.Geofence
	for rows.Next() {
		fence, err := scanGeofence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		fences = append(fences, fence)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating geofences: %w", err)
	}
	return fences, nil
}

// Update updates an existing geofence
func (r *GeofenceRepository) Update(ctx context.Context, fence *models.Geofence) error {
	if err := fence.Validate(); err != nil {
		return fmt.Errorf("invalid geofence: %w", err)
	}

	query := `
		UPDATE geofences
		SET latitude = $2, longitude = $3, radius_meters = $4, fill_color = $5, fill_opacity = $6,
			stroke_color = $7, stroke_width = $8, task_name = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		fence.ID,
		fence.Latitude,
		fence.Longitude,
		fence.RadiusMeters,
		fence.FillColor,
		fence.FillOpacity,
		fence.StrokeColor,
		fence.StrokeWidth,
		nullString(fence.TaskName),
	)
	if err != nil {
		return fmt.Errorf("failed to update geofence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("geofence not found")
	}
	return nil
}

// Delete removes a geofence and clears the reference from tasks that point at
// it, atomically. Tasks survive with no geofence binding.
func (r *GeofenceRepository) Delete(ctx context.Context, id string) error {
	return r.db.ExecInTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET geofence_id = NULL WHERE geofence_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear task references: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM geofences WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete geofence: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("geofence not found")
		}
		return nil
	})
}

func scanGeofence(row rowScanner) (*models.Geofence, error) {
	fence := &models.Geofence{}
	var taskName sql.NullString

	err := row.Scan(
		&fence.ID,
		&fence.Latitude,
		&fence.Longitude,
		&fence.RadiusMeters,
		&fence.FillColor,
		&fence.FillOpacity,
		&fence.StrokeColor,
		&fence.StrokeWidth,
		&taskName,
		&fence.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if taskName.Valid {
		fence.TaskName = &taskName.String
	}
	return fence, nil
}
