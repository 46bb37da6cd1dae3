package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskHistoryEntry records one work session on a task. An entry is open while
// EndTime is nil and closed forever once EndTime and DurationSeconds are set.
// At most one open entry exists per task at a time; the arbiter enforces this.
type TaskHistoryEntry struct {
	ID              uuid.UUID  `json:"id"`
	TaskID          *uuid.UUID `json:"task_id,omitempty"` // nil for orphaned legacy entries
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"` // derived, persisted for aggregate queries
	CompletionDate  time.Time  `json:"completion_date"`  // date-only, for calendar aggregation
	GeofenceID      *string    `json:"geofence_id,omitempty"`
}

// Open reports whether the work session is still in progress.
func (e *TaskHistoryEntry) Open() bool {
	return e.EndTime == nil
}

// Close stamps the end of the session and derives the duration. Closing an
// already-closed entry is a no-op.
func (e *TaskHistoryEntry) Close(endedAt time.Time) {
	if e.EndTime != nil {
		return
	}
	t := endedAt
	e.EndTime = &t
	e.DurationSeconds = int64(endedAt.Sub(e.StartTime).Seconds())
	e.CompletionDate = time.Date(endedAt.Year(), endedAt.Month(), endedAt.Day(), 0, 0, 0, 0, endedAt.Location())
}

// NotificationEventType distinguishes geofence transitions in the audit log
type NotificationEventType string

const (
	NotificationEventEnter NotificationEventType = "enter"
	NotificationEventExit  NotificationEventType = "exit"
)

// NotificationHistoryEntry is an append-only audit record of a shown (or
// suppressed) notification. Rows are only removed by an explicit bulk clear.
type NotificationHistoryEntry struct {
	NotificationID int32                 `json:"notification_id"`
	GeofenceID     string                `json:"geofence_id"`
	TaskName       string                `json:"task_name"`
	EventType      NotificationEventType `json:"event_type"`
	Body           string                `json:"body"`
	Timestamp      time.Time             `json:"timestamp"`
}
