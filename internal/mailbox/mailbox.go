// Package mailbox models the one-shot, best-effort handshake between the
// background trigger context and the foreground process. The two sides share
// no memory; they find each other through a directory of named mailboxes.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/taskfence/taskfence/internal/models"
)

// AnnouncementMailbox is the well-known name of the foreground-owned mailbox
// that receives trigger announcements.
const AnnouncementMailbox = "geofence-event-port"

// ErrMailboxNotFound is returned by Lookup when no mailbox is registered
// under the requested name. For the announcement mailbox this simply means
// the foreground process is not running.
var ErrMailboxNotFound = errors.New("mailbox not found")

// Sender publishes messages into a named mailbox.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Receiver is the owning side of a mailbox: an async stream of incoming
// messages. The channel is closed when the mailbox is unregistered.
type Receiver interface {
	Messages() <-chan []byte
}

// Directory is the process-wide named-mailbox registry capability.
type Directory interface {
	// Register creates and owns a mailbox under name.
	Register(ctx context.Context, name string) (Receiver, error)
	// Lookup returns a sender for an existing mailbox, or ErrMailboxNotFound.
	Lookup(ctx context.Context, name string) (Sender, error)
	// Unregister removes a mailbox owned by this side.
	Unregister(ctx context.Context, name string) error
}

// Announcement is the background side's trigger message: which geofences
// fired, where, and which freshly registered mailbox the foreground should
// acknowledge into if it takes over user-visible handling.
type Announcement struct {
	EventType      models.NotificationEventType `json:"event_type"`
	GeofenceIDs    []string                     `json:"geofence_ids"`
	Latitude       *float64                     `json:"latitude,omitempty"`
	Longitude      *float64                     `json:"longitude,omitempty"`
	NotificationID int32                        `json:"notification_id"`
	AckMailbox     string                       `json:"ack_mailbox"`
}

// Ack is the foreground's reply. Sending it at all means "I handled or
// suppressed the alert"; not sending lets the background path show its own
// notification after the timeout.
type Ack struct {
	NotificationID int32 `json:"notification_id"`
	Handled        bool  `json:"handled"`
}

// NewNotificationID generates a uniformly random 31-bit notification id. The
// space is large enough that in-practice collisions are negligible for a
// per-event identifier.
func NewNotificationID() int32 {
	return rand.Int31()
}

// AckMailboxName derives the uniquely-named ack mailbox for one handshake.
func AckMailboxName(notificationID int32) string {
	return fmt.Sprintf("geofence-ack-%d", notificationID)
}
