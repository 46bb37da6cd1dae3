package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultAckTimeout bounds how long the background side waits for the
// foreground to acknowledge an announcement.
const DefaultAckTimeout = 1000 * time.Millisecond

// Announce runs the background side of the handshake: register a one-shot ack
// mailbox, send the announcement to the foreground's well-known mailbox if it
// exists, and wait at most timeout for an acknowledgment.
//
// The returned bool is the only protocol outcome: true means the foreground
// acknowledged in time (it owns user-visible handling), false means it did
// not respond or is not running. A timeout is a defined branch, not an error;
// errors are reserved for context cancellation. The ack mailbox is always
// unregistered before returning, whatever the outcome.
func Announce(ctx context.Context, dir Directory, ann Announcement, timeout time.Duration, logger *zap.Logger) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	ann.AckMailbox = AckMailboxName(ann.NotificationID)

	receiver, err := dir.Register(ctx, ann.AckMailbox)
	if err != nil {
		logger.Warn("ack_mailbox_registration_failed",
			zap.String("mailbox", ann.AckMailbox),
			zap.Error(err),
		)
		return false, nil
	}
	defer func() {
		// Cleanup must run even when ctx is already cancelled.
		if unregErr := dir.Unregister(context.WithoutCancel(ctx), ann.AckMailbox); unregErr != nil {
			logger.Warn("ack_mailbox_unregister_failed",
				zap.String("mailbox", ann.AckMailbox),
				zap.Error(unregErr),
			)
		}
	}()

	sender, err := dir.Lookup(ctx, AnnouncementMailbox)
	if err != nil {
		// Foreground not running, or directory trouble. Either way the
		// protocol answer is "no ack"; the background path carries on alone.
		if err != ErrMailboxNotFound {
			logger.Warn("announcement_mailbox_lookup_failed", zap.Error(err))
		}
		return false, nil
	}

	payload, err := json.Marshal(ann)
	if err != nil {
		return false, fmt.Errorf("failed to marshal announcement: %w", err)
	}
	if err := sender.Send(ctx, payload); err != nil {
		logger.Warn("announcement_send_failed", zap.Error(err))
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		case msg, ok := <-receiver.Messages():
			if !ok {
				return false, nil
			}
			var ack Ack
			if err := json.Unmarshal(msg, &ack); err != nil {
				logger.Warn("malformed_ack_ignored", zap.Error(err))
				continue
			}
			if ack.NotificationID != ann.NotificationID {
				// Stray ack from an unrelated handshake; keep waiting.
				continue
			}
			return true, nil
		}
	}
}

// SendAck runs the foreground side's reply: look up the ack mailbox named in
// the announcement and post the acknowledgment. A missing mailbox means the
// background side already timed out and moved on; that is not an error.
func SendAck(ctx context.Context, dir Directory, ann Announcement, logger *zap.Logger) {
	sender, err := dir.Lookup(ctx, ann.AckMailbox)
	if err != nil {
		if err != ErrMailboxNotFound {
			logger.Warn("ack_mailbox_lookup_failed",
				zap.String("mailbox", ann.AckMailbox),
				zap.Error(err),
			)
		}
		return
	}

	payload, err := json.Marshal(Ack{NotificationID: ann.NotificationID, Handled: true})
	if err != nil {
		logger.Warn("failed_to_marshal_ack", zap.Error(err))
		return
	}
	if err := sender.Send(ctx, payload); err != nil {
		logger.Warn("ack_send_failed",
			zap.String("mailbox", ann.AckMailbox),
			zap.Error(err),
		)
	}
}
