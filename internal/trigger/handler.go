// Package trigger implements the background handling of one geofence
// crossing: find the tasks behind the fence, offer the foreground first
// refusal via the mailbox handshake, arbitrate against the persisted
// active-task marker, and only then alert the user.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/logger"
	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/models"
	"github.com/taskfence/taskfence/internal/notify"
	"github.com/taskfence/taskfence/internal/priority"
	"github.com/taskfence/taskfence/internal/queue"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
)

// Repositories bundles the stores one invocation works against. They all
// share the invocation's own short-lived connection.
type Repositories struct {
	Tasks   database.TaskRepositoryInterface
	History database.NotificationHistoryRepositoryInterface
}

// Connector opens a fresh set of repositories for one invocation and returns
// a close function the handler must call before exiting. The handler never
// reuses a connection across events: each crossing runs against its own
// handle so a poisoned connection dies with the invocation that poisoned it.
type Connector func(ctx context.Context) (Repositories, func() error, error)

// NewDatabaseConnector returns a Connector backed by independent Postgres
// connections.
func NewDatabaseConnector(databaseURL string, log *zap.Logger) Connector {
	return func(ctx context.Context) (Repositories, func() error, error) {
		db, err := database.OpenIndependent(databaseURL, false)
		if err != nil {
			return Repositories{}, nil, fmt.Errorf("failed to open trigger database connection: %w", err)
		}
		history := database.NewNotificationHistoryRepository(db)
		history.SetLogger(log)
		return Repositories{
			Tasks:   database.NewTaskRepository(db),
			History: history,
		}, db.Close, nil
	}
}

// Options carries the timing and speech knobs for the handler.
type Options struct {
	AckTimeout    time.Duration
	SpeechTimeout time.Duration
	SpeechPoll    time.Duration
	SpeechDefault bool
	PendingTTL    time.Duration
}

// Handler processes geofence events delivered to the background process.
type Handler struct {
	connect   Connector
	directory mailbox.Directory
	store     state.Store
	notifier  notify.Notifier
	speech    speech.Engine
	opts      Options
	logger    *zap.Logger

	now func() time.Time
}

// NewHandler creates a handler. The speech engine may be nil when speech is
// disabled entirely.
func NewHandler(
	connect Connector,
	directory mailbox.Directory,
	store state.Store,
	notifier notify.Notifier,
	engine speech.Engine,
	opts Options,
	log *zap.Logger,
) *Handler {
	return &Handler{
		connect:   connect,
		directory: directory,
		store:     store,
		notifier:  notifier,
		speech:    engine,
		opts:      opts,
		logger:    log,
		now:       time.Now,
	}
}

// Handle runs the full background sequence for one event. A non-nil error
// means the event could not be processed at all (no database) and should be
// redelivered; every later failure is absorbed, logged and audited so a
// half-broken desktop session still gets its reminder.
func (h *Handler) Handle(ctx context.Context, event *queue.GeofenceEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("dropping invalid event: %w", err)
	}
	if event.Kind == queue.EventExit {
		// Exits are observed but never alert; entering again is what matters.
		h.logger.Info("geofence_exit_observed",
			zap.Strings("geofence_ids", event.GeofenceIDs),
		)
		return nil
	}

	repos, closeRepos, err := h.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeRepos(); closeErr != nil {
			h.logger.Warn("trigger_connection_close_failed", zap.Error(closeErr))
		}
	}()

	candidates, err := repos.Tasks.ListActiveByGeofence(ctx, event.GeofenceIDs)
	if err != nil {
		return fmt.Errorf("failed to load tasks for geofences: %w", err)
	}
	if len(candidates) == 0 {
		h.logger.Debug("no_active_tasks_for_geofences",
			zap.Strings("geofence_ids", event.GeofenceIDs),
		)
		return nil
	}

	now := h.now()
	priority.Rank(candidates, now)
	notificationID := mailbox.NewNotificationID()

	ann := mailbox.Announcement{
		EventType:      models.NotificationEventEnter,
		GeofenceIDs:    event.GeofenceIDs,
		Latitude:       event.Latitude,
		Longitude:      event.Longitude,
		NotificationID: notificationID,
	}
	acked, err := mailbox.Announce(ctx, h.directory, ann, h.opts.AckTimeout, h.logger)
	if err != nil {
		return err
	}

	var queued []*models.Task
	suppressed := false
	if !acked {
		queued, suppressed = h.activeTaskSuppression(ctx, repos.Tasks, candidates, now)
	}

	var body string
	switch {
	case acked:
		body = "suppressed: handled by foreground"
		h.logger.Info("alert_suppressed_by_foreground",
			zap.Int32("notification_id", notificationID),
		)
	case suppressed:
		body = "suppressed: active task outranks trigger"
		h.logger.Info("alert_suppressed_by_active_task",
			zap.Int32("notification_id", notificationID),
			zap.Int("queued", len(queued)),
		)
		h.enqueuePending(ctx, queued)
		h.speakQueued(ctx, queued)
	default:
		title, text := alertText(candidates)
		body = text
		if err := h.notifier.Show(ctx, notificationID, title, text, notify.DefaultActions()); err != nil {
			h.logger.Error("notification_show_failed",
				zap.Int32("notification_id", notificationID),
				zap.Error(err),
			)
		}
		h.speakReminders(ctx, candidates)
	}

	h.recordHistory(ctx, repos.History, event, candidates[0].Name, notificationID, body)
	return nil
}

// activeTaskSuppression is the fallback arbitration for when the foreground
// did not answer: the persisted marker still tells us a session is running,
// and an active task that outranks (or ties) every triggered task means the
// user should not be interrupted. When the alert is suppressed the triggered
// tasks (minus the active one) come back so the caller can queue them; they
// must not vanish just because the foreground is down. Any failure along the
// way fails open so the reminder is shown rather than silently lost.
func (h *Handler) activeTaskSuppression(ctx context.Context, tasks database.TaskRepositoryInterface, candidates []*models.Task, now time.Time) ([]*models.Task, bool) {
	marker, err := h.store.ActiveTask(ctx)
	if err != nil {
		h.logger.Warn("active_marker_read_failed", zap.Error(err))
		return nil, false
	}
	if marker == nil {
		return nil, false
	}

	active, err := tasks.GetByID(ctx, marker.TaskID)
	if err != nil {
		h.logger.Warn("active_marker_task_load_failed",
			zap.String("task_id", marker.TaskID.String()),
			zap.Error(err),
		)
		return nil, false
	}

	remaining := candidates[:0:0]
	for _, t := range candidates {
		if t.ID != nil && *t.ID == marker.TaskID {
			continue
		}
		remaining = append(remaining, t)
	}
	if len(remaining) == 0 {
		// Only the active task itself fired; never re-alert it.
		return nil, true
	}

	if priority.Effective(active, now) >= priority.HighestEffective(remaining, now) {
		return remaining, true
	}
	return nil, false
}

// enqueuePending records suppressed tasks as "Do Later" markers so
// GET /pending still surfaces them once the user is free.
func (h *Handler) enqueuePending(ctx context.Context, tasks []*models.Task) {
	now := h.now()
	for _, task := range tasks {
		if task.ID == nil {
			continue
		}
		pending := models.PendingTask{TaskID: *task.ID, TaskName: task.Name, QueuedAt: now}
		if err := h.store.EnqueuePending(ctx, pending, h.opts.PendingTTL); err != nil {
			h.logger.Error("failed_to_enqueue_pending_task",
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// speakQueued announces suppressed tasks with the quieter snooze phrasing
// instead of the location reminder.
func (h *Handler) speakQueued(ctx context.Context, tasks []*models.Task) {
	if h.speech == nil || len(tasks) == 0 || !h.speech.Available(ctx) {
		return
	}
	for _, task := range tasks {
		if !task.SpeechEnabled(h.opts.SpeechDefault) {
			continue
		}
		text := logger.SanitizeSpokenText("Queued for later: " + task.Name)
		if err := h.speech.Speak(ctx, text, speech.ModeSnooze); err != nil {
			h.logger.Warn("queued_speech_failed",
				zap.String("task_name", logger.SanitizeSpokenText(task.Name)),
				zap.Error(err),
			)
			continue
		}
		if !speech.WaitUntilIdle(ctx, h.speech, h.opts.SpeechTimeout, h.opts.SpeechPoll) {
			h.logger.Warn("queued_speech_timed_out",
				zap.String("task_name", logger.SanitizeSpokenText(task.Name)),
			)
			return
		}
	}
}

func (h *Handler) speakReminders(ctx context.Context, tasks []*models.Task) {
	if h.speech == nil || !h.speech.Available(ctx) {
		return
	}
	for _, task := range tasks {
		if !task.SpeechEnabled(h.opts.SpeechDefault) {
			continue
		}
		text := logger.SanitizeSpokenText("Reminder: " + task.Name)
		if err := h.speech.Speak(ctx, text, speech.ModeLocation); err != nil {
			h.logger.Warn("reminder_speech_failed",
				zap.String("task_name", logger.SanitizeSpokenText(task.Name)),
				zap.Error(err),
			)
			continue
		}
		if !speech.WaitUntilIdle(ctx, h.speech, h.opts.SpeechTimeout, h.opts.SpeechPoll) {
			h.logger.Warn("reminder_speech_timed_out",
				zap.String("task_name", logger.SanitizeSpokenText(task.Name)),
			)
			return
		}
	}
}

// recordHistory appends one audit row per triggered geofence. When inserts
// keep failing on this invocation's connection, the handler reopens a fresh
// one and gives the remaining rows a second chance before giving up.
func (h *Handler) recordHistory(ctx context.Context, history database.NotificationHistoryRepositoryInterface, event *queue.GeofenceEvent, topTaskName string, notificationID int32, body string) {
	ts := h.now()
	var failed []*models.NotificationHistoryEntry
	for _, geofenceID := range event.GeofenceIDs {
		entry := &models.NotificationHistoryEntry{
			NotificationID: notificationID,
			GeofenceID:     geofenceID,
			TaskName:       topTaskName,
			EventType:      models.NotificationEventType(event.Kind),
			Body:           body,
			Timestamp:      ts,
		}
		if err := history.Insert(ctx, entry); err != nil {
			failed = append(failed, entry)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.logger.Warn("notification_history_retrying_on_fresh_connection",
		zap.Int("failed", len(failed)),
	)
	repos, closeRepos, err := h.connect(ctx)
	if err != nil {
		h.logger.Error("notification_history_lost",
			zap.Int("entries", len(failed)),
			zap.Error(err),
		)
		return
	}
	defer func() {
		if closeErr := closeRepos(); closeErr != nil {
			h.logger.Warn("trigger_connection_close_failed", zap.Error(closeErr))
		}
	}()
	for _, entry := range failed {
		if err := repos.History.Insert(ctx, entry); err != nil {
			h.logger.Error("notification_history_lost",
				zap.String("geofence_id", entry.GeofenceID),
				zap.Error(err),
			)
		}
	}
}

// alertText composes the notification title and body from the ranked tasks.
func alertText(ranked []*models.Task) (title, body string) {
	title = ranked[0].Name
	if len(ranked) == 1 {
		return title, fmt.Sprintf("You're near a reminder: %s", ranked[0].Name)
	}
	title = fmt.Sprintf("%s (+%d more)", ranked[0].Name, len(ranked)-1)
	names := make([]string, len(ranked))
	for i, t := range ranked {
		names[i] = t.Name
	}
	return title, fmt.Sprintf("%d reminders here: %s", len(ranked), strings.Join(names, ", "))
}
