package arbiter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/models"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
)

type fakeTaskRepo struct {
	tasks []*models.Task
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *models.Task) error {
	id := uuid.New()
	task.ID = &id
	task.CreatedAt = time.Now()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *fakeTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	for _, t := range r.tasks {
		if t.ID != nil && *t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %s not found", id)
}

func (r *fakeTaskRepo) List(ctx context.Context, includeCompleted bool) ([]*models.Task, error) {
	return r.tasks, nil
}

func (r *fakeTaskRepo) ListActiveByGeofence(ctx context.Context, geofenceIDs []string) ([]*models.Task, error) {
	var out []*models.Task
	for _, t := range r.tasks {
		if t.IsCompleted || t.GeofenceID == nil {
			continue
		}
		for _, id := range geofenceIDs {
			if *t.GeofenceID == id {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) Update(ctx context.Context, task *models.Task) error { return nil }
func (r *fakeTaskRepo) Complete(ctx context.Context, id uuid.UUID) error    { return nil }
func (r *fakeTaskRepo) Delete(ctx context.Context, id uuid.UUID) error      { return nil }

type fakeHistoryRepo struct {
	entries []*models.TaskHistoryEntry
}

func (r *fakeHistoryRepo) Open(ctx context.Context, entry *models.TaskHistoryEntry) error {
	entry.ID = uuid.New()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeHistoryRepo) CloseOpen(ctx context.Context, taskID uuid.UUID, endedAt time.Time) (*models.TaskHistoryEntry, error) {
	for _, e := range r.entries {
		if e.TaskID != nil && *e.TaskID == taskID && e.Open() {
			e.Close(endedAt)
			return e, nil
		}
	}
	return nil, database.ErrNoOpenEntry
}

func (r *fakeHistoryRepo) HasOpen(ctx context.Context, taskID uuid.UUID) (bool, error) {
	for _, e := range r.entries {
		if e.TaskID != nil && *e.TaskID == taskID && e.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeHistoryRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TaskHistoryEntry, error) {
	return r.entries, nil
}

func (r *fakeHistoryRepo) ListByDate(ctx context.Context, date time.Time) ([]*models.TaskHistoryEntry, error) {
	return r.entries, nil
}

func (r *fakeHistoryRepo) DeleteByTask(ctx context.Context, taskID uuid.UUID) error { return nil }

type fakeSpeech struct {
	spoken []string
}

func (f *fakeSpeech) Available(ctx context.Context) bool { return true }
func (f *fakeSpeech) Speak(ctx context.Context, text string, mode speech.Mode) error {
	f.spoken = append(f.spoken, text)
	return nil
}
func (f *fakeSpeech) Speaking(ctx context.Context) bool { return false }

type fixture struct {
	arbiter   *Arbiter
	repo      *fakeTaskRepo
	history   *fakeHistoryRepo
	store     *state.MemoryStore
	directory *mailbox.MemoryDirectory
	speech    *fakeSpeech
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      &fakeTaskRepo{},
		history:   &fakeHistoryRepo{},
		store:     state.NewMemoryStore(),
		directory: mailbox.NewMemoryDirectory(),
		speech:    &fakeSpeech{},
	}
	f.arbiter = New(f.store, f.repo, f.history, f.directory, f.speech, 12*time.Hour, zap.NewNop())
	return f
}

func (f *fixture) addTask(t *testing.T, name string, prio int, geofenceID string) *models.Task {
	t.Helper()
	task := &models.Task{Name: name, Priority: prio}
	if geofenceID != "" {
		g := geofenceID
		task.GeofenceID = &g
	}
	if err := f.repo.Create(context.Background(), task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

// registerAckMailbox registers the ack mailbox for the announcement the way
// the background side would, so tests can observe whether an ack arrived.
func registerAckMailbox(t *testing.T, dir *mailbox.MemoryDirectory, ann mailbox.Announcement) mailbox.Receiver {
	t.Helper()
	receiver, err := dir.Register(context.Background(), ann.AckMailbox)
	if err != nil {
		t.Fatalf("Register ack mailbox: %v", err)
	}
	return receiver
}

func ackArrived(receiver mailbox.Receiver) bool {
	select {
	case _, ok := <-receiver.Messages():
		return ok
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestStartSessionConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	first := f.addTask(t, "write report", 3, "")
	second := f.addTask(t, "buy milk", 2, "store")

	if err := f.arbiter.StartSession(ctx, *first.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := f.arbiter.StartSession(ctx, *second.ID); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("StartSession(second) error = %v, want ErrSessionConflict", err)
	}
	// Restarting the same task is a no-op, not a conflict.
	if err := f.arbiter.StartSession(ctx, *first.ID); err != nil {
		t.Fatalf("StartSession(same) error = %v, want nil", err)
	}

	open, err := f.history.HasOpen(ctx, *first.ID)
	if err != nil || !open {
		t.Errorf("HasOpen = (%v, %v), want open entry", open, err)
	}
}

func TestEndSessionClosesEntryAndClearsMarker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	task := f.addTask(t, "write report", 3, "")

	if err := f.arbiter.StartSession(ctx, *task.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	endedAt := time.Now().Add(45 * time.Minute)
	entry, err := f.arbiter.EndSession(ctx, *task.ID, endedAt)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if entry.Open() {
		t.Error("entry should be closed")
	}
	if entry.EndTime == nil || !entry.EndTime.Equal(endedAt) {
		t.Errorf("end time = %v, want the caller-supplied %v", entry.EndTime, endedAt)
	}

	marker, err := f.store.ActiveTask(ctx)
	if err != nil {
		t.Fatalf("ActiveTask: %v", err)
	}
	if marker != nil {
		t.Errorf("marker should be cleared, got %+v", marker)
	}

	if _, err := f.arbiter.EndSession(ctx, *task.ID, time.Now()); !errors.Is(err, ErrNoOpenSession) {
		t.Errorf("second EndSession error = %v, want ErrNoOpenSession", err)
	}
}

func TestHandleAnnouncementNoActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTask(t, "buy milk", 2, "store")

	ann := mailbox.Announcement{
		EventType:      models.NotificationEventEnter,
		GeofenceIDs:    []string{"store"},
		NotificationID: mailbox.NewNotificationID(),
	}
	ann.AckMailbox = mailbox.AckMailboxName(ann.NotificationID)
	receiver := registerAckMailbox(t, f.directory, ann)

	decision, err := f.arbiter.HandleAnnouncement(context.Background(), ann)
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}
	if decision != DecisionBackgroundOwns {
		t.Errorf("decision = %v, want DecisionBackgroundOwns", decision)
	}
	if ackArrived(receiver) {
		t.Error("no ack should be sent when the background owns the alert")
	}
}

func TestHandleAnnouncementQueuesLowerPriorityTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	active := f.addTask(t, "write report", 5, "")
	triggered := f.addTask(t, "buy milk", 2, "store")

	if err := f.arbiter.StartSession(ctx, *active.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	ann := mailbox.Announcement{
		EventType:      models.NotificationEventEnter,
		GeofenceIDs:    []string{"store"},
		NotificationID: mailbox.NewNotificationID(),
	}
	ann.AckMailbox = mailbox.AckMailboxName(ann.NotificationID)
	receiver := registerAckMailbox(t, f.directory, ann)

	decision, err := f.arbiter.HandleAnnouncement(ctx, ann)
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}
	if decision != DecisionQueued {
		t.Errorf("decision = %v, want DecisionQueued", decision)
	}
	if !ackArrived(receiver) {
		t.Error("expected ack to suppress the background alert")
	}

	pending, err := f.store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].TaskID != *triggered.ID {
		t.Errorf("pending = %+v, want the triggered task", pending)
	}
	if len(f.speech.spoken) != 1 {
		t.Errorf("spoken = %v, want one queued announcement", f.speech.spoken)
	}
}

func TestHandleAnnouncementPreemptsForHigherPriority(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	active := f.addTask(t, "tidy desk", 1, "")
	urgent := f.addTask(t, "pick up prescription", 5, "pharmacy")

	// Imminent schedule pushes the urgent task's effective priority higher
	// still.
	today := time.Now()
	urgent.ScheduledDate = &today

	if err := f.arbiter.StartSession(ctx, *active.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	ann := mailbox.Announcement{
		EventType:      models.NotificationEventEnter,
		GeofenceIDs:    []string{"pharmacy"},
		NotificationID: mailbox.NewNotificationID(),
	}
	ann.AckMailbox = mailbox.AckMailboxName(ann.NotificationID)
	receiver := registerAckMailbox(t, f.directory, ann)

	var prompt *PreemptPrompt
	f.arbiter.OnPreempt = func(p PreemptPrompt) { prompt = &p }

	decision, err := f.arbiter.HandleAnnouncement(ctx, ann)
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}
	if decision != DecisionPreempt {
		t.Errorf("decision = %v, want DecisionPreempt", decision)
	}
	if ackArrived(receiver) {
		t.Error("preempting trigger must stay unacknowledged so the alert shows")
	}
	if prompt == nil {
		t.Fatal("expected preempt prompt")
	}
	if prompt.ActiveTaskID != *active.ID || len(prompt.Candidates) != 1 {
		t.Errorf("prompt = %+v", prompt)
	}

	// The active session keeps running.
	marker, err := f.store.ActiveTask(ctx)
	if err != nil || marker == nil || marker.TaskID != *active.ID {
		t.Errorf("marker = %+v, %v; want active task still marked", marker, err)
	}
}

func TestHandleAnnouncementIgnoresOwnActiveTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	active := f.addTask(t, "stock shelves", 3, "store")

	if err := f.arbiter.StartSession(ctx, *active.ID); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	ann := mailbox.Announcement{
		EventType:      models.NotificationEventEnter,
		GeofenceIDs:    []string{"store"},
		NotificationID: mailbox.NewNotificationID(),
	}
	ann.AckMailbox = mailbox.AckMailboxName(ann.NotificationID)
	receiver := registerAckMailbox(t, f.directory, ann)

	decision, err := f.arbiter.HandleAnnouncement(ctx, ann)
	if err != nil {
		t.Fatalf("HandleAnnouncement: %v", err)
	}
	if decision != DecisionQueued {
		t.Errorf("decision = %v, want DecisionQueued", decision)
	}
	if !ackArrived(receiver) {
		t.Error("expected ack: re-triggering the active task must not alert")
	}

	pending, err := f.store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %+v, want empty", pending)
	}
}
