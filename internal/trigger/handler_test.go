package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/mailbox"
	"github.com/taskfence/taskfence/internal/models"
	"github.com/taskfence/taskfence/internal/notify"
	"github.com/taskfence/taskfence/internal/queue"
	"github.com/taskfence/taskfence/internal/speech"
	"github.com/taskfence/taskfence/internal/state"
)

type fakeTaskRepo struct {
	tasks []*models.Task
}

func (r *fakeTaskRepo) add(name string, prio int, geofenceID string) *models.Task {
	id := uuid.New()
	task := &models.Task{ID: &id, Name: name, Priority: prio, CreatedAt: time.Now()}
	if geofenceID != "" {
		g := geofenceID
		task.GeofenceID = &g
	}
	r.tasks = append(r.tasks, task)
	return task
}

func (r *fakeTaskRepo) Create(ctx context.Context, task *models.Task) error { return nil }

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
	entries   []*models.NotificationHistoryEntry
	insertErr error
}

func (r *fakeHistoryRepo) Insert(ctx context.Context, entry *models.NotificationHistoryEntry) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeHistoryRepo) List(ctx context.Context, limit int) ([]*models.NotificationHistoryEntry, error) {
	return r.entries, nil
}

func (r *fakeHistoryRepo) Clear(ctx context.Context) (int64, error) {
	n := int64(len(r.entries))
	r.entries = nil
	return n, nil
}

type shownAlert struct {
	id      int32
	title   string
	body    string
	actions []notify.Action
}

type fakeNotifier struct {
	shown []shownAlert
}

func (n *fakeNotifier) Show(ctx context.Context, id int32, title, body string, actions []notify.Action) error {
	n.shown = append(n.shown, shownAlert{id: id, title: title, body: body, actions: actions})
	return nil
}

func (n *fakeNotifier) Cancel(ctx context.Context, id int32) error { return nil }

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
	handler   *Handler
	repo      *fakeTaskRepo
	history   *fakeHistoryRepo
	store     *state.MemoryStore
	directory *mailbox.MemoryDirectory
	notifier  *fakeNotifier
	speech    *fakeSpeech
	connects  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      &fakeTaskRepo{},
		history:   &fakeHistoryRepo{},
		store:     state.NewMemoryStore(),
		directory: mailbox.NewMemoryDirectory(),
		notifier:  &fakeNotifier{},
		speech:    &fakeSpeech{},
	}
	connect := func(ctx context.Context) (Repositories, func() error, error) {
		f.connects++
		return Repositories{Tasks: f.repo, History: f.history}, func() error { return nil }, nil
	}
	opts := Options{
		AckTimeout:    50 * time.Millisecond,
		SpeechTimeout: time.Second,
		SpeechPoll:    5 * time.Millisecond,
		SpeechDefault: true,
		PendingTTL:    time.Hour,
	}
	f.handler = NewHandler(connect, f.directory, f.store, f.notifier, f.speech, opts, zap.NewNop())
	return f
}

// runForeground registers the announcement mailbox and answers every
// announcement the way a live foreground process would. Stop by cancelling
// the context.
func (f *fixture) runForeground(t *testing.T, ctx context.Context, ack bool) {
	t.Helper()
	receiver, err := f.directory.Register(ctx, mailbox.AnnouncementMailbox)
	if err != nil {
		t.Fatalf("Register announcement mailbox: %v", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-receiver.Messages():
				if !ok {
					return
				}
				if !ack {
					continue
				}
				var ann mailbox.Announcement
				if err := json.Unmarshal(msg, &ann); err != nil {
					continue
				}
				mailbox.SendAck(ctx, f.directory, ann, zap.NewNop())
			}
		}
	}()
}

func enterEvent(geofenceIDs ...string) *queue.GeofenceEvent {
	return queue.NewGeofenceEvent(queue.EventEnter, geofenceIDs)
}

func TestHandleAlertsWhenForegroundAbsent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.add("buy milk", 2, "store")

	if err := f.handler.Handle(context.Background(), enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(f.notifier.shown) != 1 {
		t.Fatalf("shown = %d alerts, want 1", len(f.notifier.shown))
	}
	alert := f.notifier.shown[0]
	if alert.title != "buy milk" {
		t.Errorf("title = %q", alert.title)
	}
	if len(alert.actions) != 2 || alert.actions[0].ID != "do_now" || alert.actions[1].ID != "do_later" {
		t.Errorf("actions = %+v, want do_now and do_later", alert.actions)
	}
	if len(f.speech.spoken) != 1 || !strings.Contains(f.speech.spoken[0], "buy milk") {
		t.Errorf("spoken = %v", f.speech.spoken)
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("history = %d entries, want 1", len(f.history.entries))
	}
	entry := f.history.entries[0]
	if entry.GeofenceID != "store" || entry.EventType != models.NotificationEventEnter || entry.NotificationID != alert.id {
		t.Errorf("history entry = %+v", entry)
	}
}

func TestHandleSuppressedByForegroundAck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.add("buy milk", 2, "store")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runForeground(t, ctx, true)

	if err := f.handler.Handle(ctx, enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(f.notifier.shown) != 0 {
		t.Errorf("shown = %+v, want none after foreground ack", f.notifier.shown)
	}
	if len(f.speech.spoken) != 0 {
		t.Errorf("spoken = %v, want none", f.speech.spoken)
	}
	if len(f.history.entries) != 1 || !strings.Contains(f.history.entries[0].Body, "handled by foreground") {
		t.Errorf("history = %+v, want suppression audit row", f.history.entries)
	}
}

func TestHandleSuppressedByPersistedMarker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.repo.add("write report", 5, "")
	f.repo.add("buy milk", 2, "store")

	// Foreground is running but too wedged to answer; only the marker speaks
	// for it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runForeground(t, ctx, false)

	marker := models.ActiveTaskMarker{TaskID: *active.ID, StartedAt: time.Now()}
	if err := f.store.SetActiveTask(ctx, marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	if err := f.handler.Handle(ctx, enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(f.notifier.shown) != 0 {
		t.Errorf("shown = %+v, want suppression by marker", f.notifier.shown)
	}
	if len(f.history.entries) != 1 || !strings.Contains(f.history.entries[0].Body, "active task outranks") {
		t.Errorf("history = %+v", f.history.entries)
	}
}

func TestHandleSuppressedTasksAreQueuedAndSpoken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.repo.add("write report", 5, "")
	milk := f.repo.add("buy milk", 2, "store")

	ctx := context.Background()
	marker := models.ActiveTaskMarker{TaskID: *active.ID, StartedAt: time.Now()}
	if err := f.store.SetActiveTask(ctx, marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	// No foreground at all: the marker alone suppresses, and the task must
	// still land in the pending queue rather than vanish.
	if err := f.handler.Handle(ctx, enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	pending, err := f.store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].TaskID != *milk.ID {
		t.Fatalf("pending = %+v, want the suppressed task queued", pending)
	}
	if pending[0].TaskName != "buy milk" {
		t.Errorf("pending name = %q", pending[0].TaskName)
	}

	if len(f.speech.spoken) != 1 || !strings.Contains(f.speech.spoken[0], "Queued for later") ||
		!strings.Contains(f.speech.spoken[0], "buy milk") {
		t.Errorf("spoken = %v, want queued phrasing for the suppressed task", f.speech.spoken)
	}
	if len(f.notifier.shown) != 0 {
		t.Errorf("shown = %+v, want no visible alert", f.notifier.shown)
	}
}

func TestHandleActiveTaskOwnFenceQueuesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.repo.add("stock shelves", 3, "store")

	ctx := context.Background()
	marker := models.ActiveTaskMarker{TaskID: *active.ID, StartedAt: time.Now()}
	if err := f.store.SetActiveTask(ctx, marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	if err := f.handler.Handle(ctx, enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	pending, err := f.store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %+v, the active task must not queue itself", pending)
	}
	if len(f.speech.spoken) != 0 {
		t.Errorf("spoken = %v, want silence", f.speech.spoken)
	}
}

func TestHandleAlertsWhenTriggerOutranksActiveTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.repo.add("tidy desk", 1, "")
	urgent := f.repo.add("pick up prescription", 5, "pharmacy")
	today := time.Now()
	urgent.ScheduledDate = &today

	marker := models.ActiveTaskMarker{TaskID: *active.ID, StartedAt: time.Now()}
	if err := f.store.SetActiveTask(context.Background(), marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	if err := f.handler.Handle(context.Background(), enterEvent("pharmacy")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(f.notifier.shown) != 1 {
		t.Fatalf("shown = %d, want the outranking trigger to alert", len(f.notifier.shown))
	}
	if f.notifier.shown[0].title != "pick up prescription" {
		t.Errorf("title = %q", f.notifier.shown[0].title)
	}
}

func TestHandleNeverReAlertsTheActiveTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	active := f.repo.add("stock shelves", 3, "store")

	marker := models.ActiveTaskMarker{TaskID: *active.ID, StartedAt: time.Now()}
	if err := f.store.SetActiveTask(context.Background(), marker); err != nil {
		t.Fatalf("SetActiveTask: %v", err)
	}

	if err := f.handler.Handle(context.Background(), enterEvent("store")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(f.notifier.shown) != 0 {
		t.Errorf("shown = %+v, want none for the task already being worked", f.notifier.shown)
	}
}

func TestHandleHistoryRetriesOnFreshConnection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.add("buy milk", 2, "store")
	f.repo.add("post letter", 2, "postoffice")

	// First connection's history writes fail; the reopened connection works.
	firstHistory := &fakeHistoryRepo{insertErr: fmt.Errorf("connection poisoned")}
	secondHistory := f.history
	calls := 0
	f.handler.connect = func(ctx context.Context) (Repositories, func() error, error) {
		calls++
		if calls == 1 {
			return Repositories{Tasks: f.repo, History: firstHistory}, func() error { return nil }, nil
		}
		return Repositories{Tasks: f.repo, History: secondHistory}, func() error { return nil }, nil
	}

	if err := f.handler.Handle(context.Background(), enterEvent("store", "postoffice")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if calls != 2 {
		t.Errorf("connects = %d, want reopen for the history retry", calls)
	}
	if len(secondHistory.entries) != 2 {
		t.Errorf("history = %d entries on fresh connection, want 2", len(secondHistory.entries))
	}
}

func TestHandleExitEventIsObserveOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.repo.add("buy milk", 2, "store")

	event := queue.NewGeofenceEvent(queue.EventExit, []string{"store"})
	if err := f.handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if f.connects != 0 {
		t.Errorf("connects = %d, exit events should not touch storage", f.connects)
	}
	if len(f.notifier.shown) != 0 {
		t.Errorf("shown = %+v, want none", f.notifier.shown)
	}
}

func TestHandleNoCandidatesIsQuiet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if err := f.handler.Handle(context.Background(), enterEvent("nowhere")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.notifier.shown) != 0 || len(f.history.entries) != 0 {
		t.Errorf("expected no alert and no audit rows, got %+v / %+v", f.notifier.shown, f.history.entries)
	}
}

func TestHandleRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	event := &queue.GeofenceEvent{Kind: "dwell", GeofenceIDs: []string{"x"}}
	if err := f.handler.Handle(context.Background(), event); err == nil {
		t.Fatal("expected error for invalid event")
	}
}
