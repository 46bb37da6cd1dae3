package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestTask_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid minimal", Task{Name: "water plants", Priority: 3}, false},
		{"missing name", Task{Priority: 3}, true},
		{"priority too low", Task{Name: "x", Priority: 0}, true},
		{"priority too high", Task{Name: "x", Priority: 6}, true},
		{"recurring without pattern", Task{Name: "x", Priority: 1, IsRecurring: true}, true},
		{
			"recurring with valid pattern",
			Task{Name: "x", Priority: 1, IsRecurring: true, Recurrence: &RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{1}}},
			false,
		},
		{"bad scheduled time", Task{Name: "x", Priority: 1, ScheduledTime: strPtr("25:99")}, true},
		{"good scheduled time", Task{Name: "x", Priority: 1, ScheduledTime: strPtr("09:30")}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTask_ScheduledAt(t *testing.T) {
	t.Parallel()

	d := date(2026, time.April, 10)

	t.Run("no schedule", func(t *testing.T) {
		t.Parallel()
		task := Task{Name: "x", Priority: 1}
		if _, ok := task.ScheduledAt(); ok {
			t.Error("expected no scheduled instant")
		}
	})

	t.Run("date only defaults to midnight", func(t *testing.T) {
		t.Parallel()
		task := Task{Name: "x", Priority: 1, ScheduledDate: &d}
		at, ok := task.ScheduledAt()
		if !ok {
			t.Fatal("expected a scheduled instant")
		}
		if at.Hour() != 0 || at.Minute() != 0 {
			t.Errorf("ScheduledAt = %v, want midnight", at)
		}
	})

	t.Run("date plus time", func(t *testing.T) {
		t.Parallel()
		task := Task{Name: "x", Priority: 1, ScheduledDate: &d, ScheduledTime: strPtr("14:45")}
		at, ok := task.ScheduledAt()
		if !ok {
			t.Fatal("expected a scheduled instant")
		}
		if at.Hour() != 14 || at.Minute() != 45 {
			t.Errorf("ScheduledAt = %v, want 14:45", at)
		}
	})
}

func TestTask_CopyWithDate(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	gf := "home"
	original := Task{
		ID:          &id,
		Name:        "take out trash",
		Priority:    4,
		IsRecurring: true,
		Recurrence:  &RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{2}},
		GeofenceID:  &gf,
		IsCompleted: true,
		CreatedAt:   time.Now(),
	}

	next := date(2026, time.April, 14)
	clone := original.CopyWithDate(next)

	if clone.ID != nil {
		t.Error("clone must not carry the original identity")
	}
	if clone.IsCompleted {
		t.Error("clone must reset completion state")
	}
	if clone.ScheduledDate == nil || !clone.ScheduledDate.Equal(next) {
		t.Errorf("clone scheduled date = %v, want %v", clone.ScheduledDate, next)
	}
	if clone.Name != original.Name || clone.Priority != original.Priority {
		t.Error("clone must keep task attributes")
	}
	if clone.GeofenceID == nil || *clone.GeofenceID != gf {
		t.Error("clone must keep the geofence reference")
	}
	if !original.IsCompleted || original.ID == nil {
		t.Error("original task must be untouched")
	}
}

func TestTask_SpeechEnabled(t *testing.T) {
	t.Parallel()

	on := true
	off := false

	tests := []struct {
		name       string
		override   *bool
		appDefault bool
		want       bool
	}{
		{"inherits default on", nil, true, true},
		{"inherits default off", nil, false, false},
		{"override on beats default off", &on, false, true},
		{"override off beats default on", &off, true, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task := Task{Name: "x", Priority: 1, EnableSpeech: tt.override}
			if got := task.SpeechEnabled(tt.appDefault); got != tt.want {
				t.Errorf("SpeechEnabled(%v) = %v, want %v", tt.appDefault, got, tt.want)
			}
		})
	}
}

func TestGeofence_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fence   Geofence
		wantErr bool
	}{
		{"valid", Geofence{ID: "home", Latitude: 52.52, Longitude: 13.405, RadiusMeters: 100}, false},
		{"missing id", Geofence{Latitude: 0, Longitude: 0, RadiusMeters: 100}, true},
		{"radius too small", Geofence{ID: "x", RadiusMeters: 0.5}, true},
		{"radius too large", Geofence{ID: "x", RadiusMeters: 1001}, true},
		{"latitude out of range", Geofence{ID: "x", Latitude: 91, RadiusMeters: 10}, true},
		{"longitude out of range", Geofence{ID: "x", Longitude: -181, RadiusMeters: 10}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.fence.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTaskHistoryEntry_Close(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC)
	entry := TaskHistoryEntry{ID: uuid.New(), StartTime: start}

	if !entry.Open() {
		t.Fatal("new entry should be open")
	}

	end := start.Add(90 * time.Minute)
	entry.Close(end)

	if entry.Open() {
		t.Error("closed entry should not be open")
	}
	if entry.DurationSeconds != 5400 {
		t.Errorf("DurationSeconds = %d, want 5400", entry.DurationSeconds)
	}
	if entry.CompletionDate.Day() != 10 {
		t.Errorf("CompletionDate = %v, want April 10", entry.CompletionDate)
	}

	// Closing again must not rewrite the record.
	entry.Close(end.Add(time.Hour))
	if entry.DurationSeconds != 5400 {
		t.Error("second Close must be a no-op")
	}
}
