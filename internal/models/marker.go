package models

import (
	"time"

	"github.com/google/uuid"
)

// ActiveTaskMarker is the cross-process source of truth for "which task is
// being worked on right now". It lives in the key-value store so the
// background trigger context can read it even when the foreground process is
// not running.
type ActiveTaskMarker struct {
	TaskID    uuid.UUID `json:"task_id"`
	StartedAt time.Time `json:"started_at"`
}

// PendingTask marks a task whose alert was suppressed and deferred for later
// action ("Do Later"). A marker past its expiry is ignored on read.
type PendingTask struct {
	TaskID   uuid.UUID `json:"task_id"`
	TaskName string    `json:"task_name"`
	QueuedAt time.Time `json:"queued_at"`
}
