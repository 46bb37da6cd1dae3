// Package arbiter is the foreground decision point: it owns the active work
// session and decides what happens when a geofence trigger arrives while the
// user is already working on something.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/models"
	"github.com/taskfence/taskfence/internal/priority"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
)

var (
	// ErrSessionConflict is returned when a session is started while another
	// task's marker is still persisted.
	ErrSessionConflict = errors.New("another task session is already active")
	// ErrNoOpenSession is returned when ending a session that is not active.
	ErrNoOpenSession = errors.New("no open session for task")
)

// Decision is the arbitration outcome for one announcement.
type Decision string

const (
	// DecisionBackgroundOwns: no active session, so the announcement goes
	// unacknowledged and the background path shows its own notification.
	DecisionBackgroundOwns Decision = "background_owns"
	// DecisionQueued: the active task outranks the trigger; the triggered
	// tasks were queued as pending and the alert suppressed.
	DecisionQueued Decision = "queued"
	// DecisionPreempt: the trigger outranks the active task; the user is
	// asked whether to switch, and the background notification still fires.
	DecisionPreempt Decision = "preempt"
)

// PreemptPrompt describes a higher-priority trigger the UI should surface to
// the user while their current session keeps running.
type PreemptPrompt struct {
	ActiveTaskID   uuid.UUID
	Candidates     []*models.Task
	NotificationID int32
}

// Arbiter coordinates session state, pending markers and the announcement
// handshake for the foreground process.
type Arbiter struct {
	store      state.Store
	tasks      database.TaskRepositoryInterface
	history    database.TaskHistoryRepositoryInterface
	directory  mailbox.Directory
	speech     speech.Engine
	pendingTTL time.Duration
	logger     *zap.Logger

	// OnPreempt is invoked when a trigger outranks the active session. The
	// server wires this to the UI event stream; nil means log-only.
	OnPreempt func(prompt PreemptPrompt)

	now func() time.Time
}

// New creates an arbiter.
func New(
	store state.Store,
	tasks database.TaskRepositoryInterface,
	history database.TaskHistoryRepositoryInterface,
	directory mailbox.Directory,
	engine speech.Engine,
	pendingTTL time.Duration,
	logger *zap.Logger,
) *Arbiter {
	return &Arbiter{
		store:      store,
		tasks:      tasks,
		history:    history,
		directory:  directory,
		speech:     engine,
		pendingTTL: pendingTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// StartSession marks a task as the active one and opens its history entry.
// The marker is persisted before the history row so a crash between the two
// fails safe: a marker without an open entry only suppresses notifications,
// while an open entry without a marker would leak an unclosable session.
func (a *Arbiter) StartSession(ctx context.Context, taskID uuid.UUID) error {
	current, err := a.store.ActiveTask(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active task marker: %w", err)
	}
	if current != nil {
		if current.TaskID == taskID {
			return nil
		}
		return ErrSessionConflict
	}

	task, err := a.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	startedAt := a.now()
	marker := models.ActiveTaskMarker{TaskID: taskID, StartedAt: startedAt}
	if err := a.store.SetActiveTask(ctx, marker); err != nil {
		return fmt.Errorf("failed to persist active task marker: %w", err)
	}

	entry := &models.TaskHistoryEntry{
		TaskID:     &taskID,
		StartTime:  startedAt,
		GeofenceID: task.GeofenceID,
	}
	if err := a.history.Open(ctx, entry); err != nil {
		// Roll the marker back so the system is not stuck suppressing alerts
		// for a session that never started.
		if clearErr := a.store.ClearActiveTask(context.WithoutCancel(ctx)); clearErr != nil {
			a.logger.Error("failed_to_roll_back_active_marker", zap.Error(clearErr))
		}
		return fmt.Errorf("failed to open history entry: %w", err)
	}

	// Starting work on a pending task consumes its marker.
	if err := a.store.RemovePending(ctx, taskID); err != nil {
		a.logger.Warn("failed_to_remove_pending_marker",
			zap.String("task_id", taskID.String()),
			zap.Error(err),
		)
	}

	a.logger.Info("session_started",
		zap.String("task_id", taskID.String()),
		zap.String("task_name", task.Name),
	)
	return nil
}

// EndSession closes the task's open history entry at endedAt and clears the
// marker. A zero endedAt falls back to the current time.
func (a *Arbiter) EndSession(ctx context.Context, taskID uuid.UUID, endedAt time.Time) (*models.TaskHistoryEntry, error) {
	current, err := a.store.ActiveTask(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read active task marker: %w", err)
	}
	if current == nil || current.TaskID != taskID {
		return nil, ErrNoOpenSession
	}

	if endedAt.IsZero() {
		endedAt = a.now()
	}
	entry, err := a.history.CloseOpen(ctx, taskID, endedAt)
	if err != nil {
		if errors.Is(err, database.ErrNoOpenEntry) {
			// Marker without an entry: clean the marker up anyway.
			if clearErr := a.store.ClearActiveTask(ctx); clearErr != nil {
				a.logger.Error("failed_to_clear_active_marker", zap.Error(clearErr))
			}
			return nil, ErrNoOpenSession
		}
		return nil, fmt.Errorf("failed to close history entry: %w", err)
	}

	if err := a.store.ClearActiveTask(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear active task marker: %w", err)
	}

	a.logger.Info("session_ended",
		zap.String("task_id", taskID.String()),
		zap.Int64("duration_seconds", entry.DurationSeconds),
	)
	return entry, nil
}

// ActiveSession returns the current marker, or nil.
func (a *Arbiter) ActiveSession(ctx context.Context) (*models.ActiveTaskMarker, error) {
	return a.store.ActiveTask(ctx)
}

// HandleAnnouncement runs the foreground side of the trigger handshake.
//
// With no active session the foreground stays silent and lets the background
// path alert. With an active session it compares effective priorities: a
// trigger that does not outrank the active task is acknowledged (silencing
// the background alert), queued as pending, and announced quietly by speech;
// a trigger that outranks it surfaces a preemption prompt and is left
// unacknowledged so the notification still reaches the user.
func (a *Arbiter) HandleAnnouncement(ctx context.Context, ann mailbox.Announcement) (Decision, error) {
	marker, err := a.store.ActiveTask(ctx)
	if err != nil {
		return DecisionBackgroundOwns, fmt.Errorf("failed to read active task marker: %w", err)
	}
	if marker == nil {
		a.logger.Debug("announcement_passed_to_background",
			zap.Int32("notification_id", ann.NotificationID),
		)
		return DecisionBackgroundOwns, nil
	}

	activeTask, err := a.tasks.GetByID(ctx, marker.TaskID)
	if err != nil {
		// Marker points at a deleted task; clear it and let the background
		// path handle the alert.
		a.logger.Warn("active_marker_references_missing_task",
			zap.String("task_id", marker.TaskID.String()),
			zap.Error(err),
		)
		if clearErr := a.store.ClearActiveTask(ctx); clearErr != nil {
			a.logger.Error("failed_to_clear_stale_marker", zap.Error(clearErr))
		}
		return DecisionBackgroundOwns, nil
	}

	candidates, err := a.tasks.ListActiveByGeofence(ctx, ann.GeofenceIDs)
	if err != nil {
		return DecisionBackgroundOwns, fmt.Errorf("failed to load triggered tasks: %w", err)
	}
	// Don't compete with ourselves: the active task being among the
	// candidates must not preempt its own session.
	candidates = withoutTask(candidates, marker.TaskID)
	if len(candidates) == 0 {
		// Nothing actionable behind the trigger; acknowledge so the
		// background stays quiet too.
		mailbox.SendAck(ctx, a.directory, ann, a.logger)
		return DecisionQueued, nil
	}

	now := a.now()
	activePriority := priority.Effective(activeTask, now)
	incoming := priority.HighestEffective(candidates, now)

	if incoming > activePriority {
		a.logger.Info("trigger_preempts_active_task",
			zap.String("active_task_id", marker.TaskID.String()),
			zap.Float64("active_priority", activePriority),
			zap.Float64("incoming_priority", incoming),
		)
		if a.OnPreempt != nil {
			a.OnPreempt(PreemptPrompt{
				ActiveTaskID:   marker.TaskID,
				Candidates:     candidates,
				NotificationID: ann.NotificationID,
			})
		}
		return DecisionPreempt, nil
	}

	// Active task wins: silence the background alert and queue the rest.
	mailbox.SendAck(ctx, a.directory, ann, a.logger)
	queued := 0
	for _, task := range candidates {
		if task.ID == nil {
			continue
		}
		pending := models.PendingTask{TaskID: *task.ID, TaskName: task.Name, QueuedAt: now}
		if err := a.store.EnqueuePending(ctx, pending, a.pendingTTL); err != nil {
			a.logger.Error("failed_to_enqueue_pending_task",
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	a.logger.Info("trigger_queued_behind_active_task",
		zap.String("active_task_id", marker.TaskID.String()),
		zap.Int("queued", queued),
	)
	a.speakQueued(ctx, activeTask, queued)
	return DecisionQueued, nil
}

func (a *Arbiter) speakQueued(ctx context.Context, activeTask *models.Task, queued int) {
	if a.speech == nil || queued == 0 || !a.speech.Available(ctx) {
		return
	}
	text := fmt.Sprintf("%d nearby task reminders queued while you work on %s", queued, activeTask.Name)
	if queued == 1 {
		text = fmt.Sprintf("A nearby task reminder was queued while you work on %s", activeTask.Name)
	}
	if err := a.speech.Speak(ctx, text, speech.ModeSnooze); err != nil {
		a.logger.Warn("queued_speech_failed", zap.Error(err))
	}
}

func withoutTask(tasks []*models.Task, id uuid.UUID) []*models.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != nil && *t.ID == id {
			continue
		}
		out = append(out, t)
	}
	return out
}
