package models

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecurrencePattern_ShouldOccurOn(t *testing.T) {
	t.Parallel()

	end := date(2026, time.March, 15)

	tests := []struct {
		name    string
		pattern *RecurrencePattern
		date    time.Time
		want    bool
	}{
		{"none never occurs", &RecurrencePattern{Type: RecurrenceNone}, date(2026, time.March, 2), false},
		{"nil pattern never occurs", nil, date(2026, time.March, 2), false},
		{
			"weekly on matching weekday",
			&RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{1, 3}}, // Mon, Wed
			date(2026, time.March, 2),                                         // a Monday
			true,
		},
		{
			"weekly on non-matching weekday",
			&RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{1, 3}},
			date(2026, time.March, 3), // a Tuesday
			false,
		},
		{
			"daily occurs on sunday",
			&RecurrencePattern{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}},
			date(2026, time.March, 8), // a Sunday
			true,
		},
		{
			"weekdays_only skips saturday",
			&RecurrencePattern{Type: RecurrenceWeekdaysOnly, Weekdays: []int{1, 2, 3, 4, 5}},
			date(2026, time.March, 7), // a Saturday
			false,
		},
		{
			"end date is inclusive",
			&RecurrencePattern{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}, EndDate: &end},
			date(2026, time.March, 15),
			true,
		},
		{
			"inactive after end date",
			&RecurrencePattern{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}, EndDate: &end},
			date(2026, time.March, 16),
			false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.pattern.ShouldOccurOn(tt.date); got != tt.want {
				t.Errorf("ShouldOccurOn(%v) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestRecurrencePattern_NextOccurrence(t *testing.T) {
	t.Parallel()

	t.Run("returns the next matching weekday", func(t *testing.T) {
		t.Parallel()
		p := &RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{5}} // Friday
		after := date(2026, time.March, 2)                                  // Monday
		got := p.NextOccurrence(after)
		if got == nil {
			t.Fatal("expected an occurrence, got nil")
		}
		want := date(2026, time.March, 6)
		if !got.Equal(want) {
			t.Errorf("NextOccurrence = %v, want %v", got, want)
		}
	})

	t.Run("never returns a date at or before after", func(t *testing.T) {
		t.Parallel()
		p := &RecurrencePattern{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}}
		after := date(2026, time.March, 2)
		got := p.NextOccurrence(after)
		if got == nil {
			t.Fatal("expected an occurrence, got nil")
		}
		if !got.After(after) {
			t.Errorf("NextOccurrence = %v, not after %v", got, after)
		}
	})

	t.Run("bounded to fourteen days", func(t *testing.T) {
		t.Parallel()
		end := date(2026, time.March, 1)
		p := &RecurrencePattern{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}, EndDate: &end}
		// Pattern already expired, nothing inside the window can match.
		if got := p.NextOccurrence(date(2026, time.March, 2)); got != nil {
			t.Errorf("NextOccurrence past end date = %v, want nil", got)
		}
	})

	t.Run("window upper bound", func(t *testing.T) {
		t.Parallel()
		p := &RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{3}}
		after := date(2026, time.March, 2)
		got := p.NextOccurrence(after)
		if got == nil {
			t.Fatal("expected an occurrence, got nil")
		}
		if got.Sub(after) > 14*24*time.Hour {
			t.Errorf("NextOccurrence = %v, more than 14 days after %v", got, after)
		}
	})

	t.Run("none pattern has no occurrence", func(t *testing.T) {
		t.Parallel()
		p := &RecurrencePattern{Type: RecurrenceNone}
		if got := p.NextOccurrence(date(2026, time.March, 2)); got != nil {
			t.Errorf("NextOccurrence = %v, want nil", got)
		}
	})
}

func TestRecurrencePattern_OccurrencesInRange(t *testing.T) {
	t.Parallel()

	p := &RecurrencePattern{Type: RecurrenceWeekly, Weekdays: []int{1}} // Mondays
	got := p.OccurrencesInRange(date(2026, time.March, 1), date(2026, time.March, 31))
	want := []time.Time{
		date(2026, time.March, 2),
		date(2026, time.March, 9),
		date(2026, time.March, 16),
		date(2026, time.March, 23),
		date(2026, time.March, 30),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRecurrencePattern_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	end := date(2026, time.June, 30)
	patterns := []*RecurrencePattern{
		{Type: RecurrenceNone},
		{Type: RecurrenceDaily, Weekdays: []int{1, 2, 3, 4, 5, 6, 7}},
		{Type: RecurrenceWeekly, Weekdays: []int{2, 4}},
		{Type: RecurrenceWeekdaysOnly, Weekdays: []int{1, 2, 3, 4, 5}, EndDate: &end},
	}

	for _, p := range patterns {
		data, err := p.ToJSON()
		if err != nil {
			t.Fatalf("ToJSON(%v): %v", p.Type, err)
		}
		got := RecurrencePatternFromJSON(data)
		if got.Type != p.Type {
			t.Errorf("round-trip type = %v, want %v", got.Type, p.Type)
		}
		if len(got.Weekdays) != len(p.Weekdays) {
			t.Errorf("round-trip weekdays = %v, want %v", got.Weekdays, p.Weekdays)
		}
		if (got.EndDate == nil) != (p.EndDate == nil) {
			t.Errorf("round-trip end date = %v, want %v", got.EndDate, p.EndDate)
		}
	}
}

func TestRecurrencePatternFromJSON_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("{not json")},
		{"wrong shape", []byte(`{"type": 42}`)},
		{"invalid weekdays", []byte(`{"type":"weekly","weekdays":[0,8]}`)},
		{"unknown type", []byte(`{"type":"fortnightly"}`)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RecurrencePatternFromJSON(tt.data)
			if got == nil {
				t.Fatal("expected a pattern, got nil")
			}
			if got.Type != RecurrenceNone {
				t.Errorf("malformed input decoded to %v, want none", got.Type)
			}
		})
	}
}

func TestNewRecurrencePattern_Normalization(t *testing.T) {
	t.Parallel()

	daily, err := NewRecurrencePattern(RecurrenceDaily, nil, nil)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(daily.Weekdays) != 7 {
		t.Errorf("daily weekdays = %v, want full week", daily.Weekdays)
	}

	wk, err := NewRecurrencePattern(RecurrenceWeekdaysOnly, nil, nil)
	if err != nil {
		t.Fatalf("weekdays_only: %v", err)
	}
	if len(wk.Weekdays) != 5 || wk.Weekdays[0] != 1 || wk.Weekdays[4] != 5 {
		t.Errorf("weekdays_only weekdays = %v, want Mon-Fri", wk.Weekdays)
	}

	if _, err := NewRecurrencePattern(RecurrenceWeekly, nil, nil); err == nil {
		t.Error("weekly with empty weekday set should be rejected")
	}
}
