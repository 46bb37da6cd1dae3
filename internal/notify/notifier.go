// Package notify is the local-notification display capability: a persistent,
// user-dismiss-only alert carrying exactly two actions, "Do Now" and
// "Do Later".
package notify

import "context"

// Action is one tappable action on a notification.
type Action struct {
	ID      string
	Label   string
	ShowsUI bool // whether activating the action brings the app to the foreground
}

// The two actions every task alert carries.
var (
	ActionDoNow   = Action{ID: "do_now", Label: "Do Now", ShowsUI: true}
	ActionDoLater = Action{ID: "do_later", Label: "Do Later", ShowsUI: false}
)

// DefaultActions returns the standard action pair for a task alert.
func DefaultActions() []Action {
	return []Action{ActionDoNow, ActionDoLater}
}

// Notifier displays and cancels notifications. Implementations are
// best-effort collaborators: callers log failures and continue.
type Notifier interface {
	Show(ctx context.Context, id int32, title, body string, actions []Action) error
	Cancel(ctx context.Context, id int32) error
}
