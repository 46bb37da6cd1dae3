package notify

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ExecNotifier shells out to a desktop notification command (notify-send by
// default). Desktop notification daemons do not expose cancellation through
// the CLI, so Cancel is a logged no-op; a replaced alert simply expires.
type ExecNotifier struct {
	command string
	logger  *zap.Logger
}

// NewExecNotifier creates a notifier that invokes the given command.
func NewExecNotifier(command string, logger *zap.Logger) *ExecNotifier {
	return &ExecNotifier{command: command, logger: logger}
}

// Show displays a persistent notification with the given actions.
func (n *ExecNotifier) Show(ctx context.Context, id int32, title, body string, actions []Action) error {
	args := []string{
		"--app-name=taskfence",
		"--urgency=critical", // persistent, user-dismiss-only
		fmt.Sprintf("--hint=int:taskfence-id:%d", id),
	}
	for _, action := range actions {
		args = append(args, fmt.Sprintf("--action=%s=%s", action.ID, action.Label))
	}
	args = append(args, title, body)

	cmd := exec.CommandContext(ctx, n.command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to run %s: %w", n.command, err)
	}
	// Action selection comes back through the UI, not this process; don't
	// block the caller on the user dismissing the notification.
	go func() {
		if err := cmd.Wait(); err != nil {
			n.logger.Warn("notification_command_exited_with_error",
				zap.Int32("notification_id", id),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Cancel is best-effort and currently a no-op for exec-based display.
func (n *ExecNotifier) Cancel(ctx context.Context, id int32) error {
	n.logger.Debug("notification_cancel_unsupported",
		zap.Int32("notification_id", id),
	)
	return nil
}

var _ Notifier = (*ExecNotifier)(nil)
