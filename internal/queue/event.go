package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes geofence boundary crossings.
type EventKind string

const (
	// EventEnter is a transition from outside a region to inside it.
	EventEnter EventKind = "enter"
	// EventExit is a transition from inside a region to outside it.
	EventExit EventKind = "exit"
)

// GeofenceEvent is one boundary crossing delivered to the background
// trigger process. A single crossing may involve several overlapping
// regions, so it carries a list of region identifiers.
type GeofenceEvent struct {
	ID          uuid.UUID `json:"id"`
	Kind        EventKind `json:"kind"`
	GeofenceIDs []string  `json:"geofence_ids"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewGeofenceEvent creates an event for the given regions.
func NewGeofenceEvent(kind EventKind, geofenceIDs []string) *GeofenceEvent {
	return &GeofenceEvent{
		ID:          uuid.New(),
		Kind:        kind,
		GeofenceIDs: geofenceIDs,
		Timestamp:   time.Now(),
	}
}

// Validate checks the event is well-formed enough to process.
func (e *GeofenceEvent) Validate() error {
	if e.Kind != EventEnter && e.Kind != EventExit {
		return fmt.Errorf("invalid event kind: %q", e.Kind)
	}
	if len(e.GeofenceIDs) == 0 {
		return fmt.Errorf("event carries no geofence ids")
	}
	for _, id := range e.GeofenceIDs {
		if id == "" {
			return fmt.Errorf("event carries an empty geofence id")
		}
	}
	return nil
}
