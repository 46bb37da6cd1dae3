package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// MinPriority is the lowest user-assignable task priority
	MinPriority = 1
	// MaxPriority is the highest user-assignable task priority
	MaxPriority = 5
)

// Task represents a reminder task, optionally bound to a geofence and/or a
// recurrence pattern. ID is nil until the store has persisted the task.
type Task struct {
	ID                *uuid.UUID         `json:"id,omitempty"`
	Name              string             `json:"name"`
	Priority          int                `json:"priority"`
	ScheduledDate     *time.Time         `json:"scheduled_date,omitempty"`
	ScheduledTime     *string            `json:"scheduled_time,omitempty"` // "HH:MM", nil means no explicit time
	IsRecurring       bool               `json:"is_recurring"`
	Recurrence        *RecurrencePattern `json:"recurrence,omitempty"`
	GeofenceID        *string            `json:"geofence_id,omitempty"` // weak reference, lookup only
	IsCompleted       bool               `json:"is_completed"`
	NotificationSound string             `json:"notification_sound,omitempty"`
	EnableSpeech      *bool              `json:"enable_speech,omitempty"` // nil inherits the app default
	CreatedAt         time.Time          `json:"created_at"`
}

// Validate checks the construction invariants that the store relies on.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return fmt.Errorf("task priority must be between %d and %d, got %d", MinPriority, MaxPriority, t.Priority)
	}
	if t.IsRecurring {
		if t.Recurrence == nil {
			return fmt.Errorf("recurring task requires a recurrence pattern")
		}
		if err := t.Recurrence.Validate(); err != nil {
			return fmt.Errorf("invalid recurrence pattern: %w", err)
		}
	}
	if t.ScheduledTime != nil {
		if _, err := time.Parse("15:04", *t.ScheduledTime); err != nil {
			return fmt.Errorf("scheduled time must be HH:MM, got %q", *t.ScheduledTime)
		}
	}
	return nil
}

// ScheduledAt combines ScheduledDate and ScheduledTime into a single instant.
// The second return value is false when the task carries no explicit schedule.
func (t *Task) ScheduledAt() (time.Time, bool) {
	if t.ScheduledDate == nil {
		return time.Time{}, false
	}
	d := *t.ScheduledDate
	if t.ScheduledTime == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()), true
	}
	clock, err := time.Parse("15:04", *t.ScheduledTime)
	if err != nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()), true
	}
	return time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, d.Location()), true
}

// CopyWithDate clones the task as a new recurrence instance for the given
// date: identity is cleared so the store assigns a fresh id, and completion
// state is reset.
func (t *Task) CopyWithDate(date time.Time) *Task {
	clone := *t
	clone.ID = nil
	clone.IsCompleted = false
	d := date
	clone.ScheduledDate = &d
	clone.CreatedAt = time.Time{}
	return &clone
}

// SpeechEnabled resolves the per-task speech override against the app default.
func (t *Task) SpeechEnabled(appDefault bool) bool {
	if t.EnableSpeech != nil {
		return *t.EnableSpeech
	}
	return appDefault
}
