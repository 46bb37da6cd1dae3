package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecurrenceType represents how a task repeats
type RecurrenceType string

const (
	RecurrenceNone         RecurrenceType = "none"
	RecurrenceDaily        RecurrenceType = "daily"
	RecurrenceWeekly       RecurrenceType = "weekly"
	RecurrenceWeekdaysOnly RecurrenceType = "weekdays_only"
)

// nextOccurrenceWindowDays bounds the forward scan of NextOccurrence. Callers
// needing a longer horizon must re-invoke with a later `after`.
const nextOccurrenceWindowDays = 14

// RecurrencePattern is an immutable value object describing when a task
// recurs. Weekdays use ISO numbering: Monday=1 .. Sunday=7.
type RecurrencePattern struct {
	Type     RecurrenceType `json:"type"`
	Weekdays []int          `json:"weekdays,omitempty"`
	EndDate  *time.Time     `json:"end_date,omitempty"` // inclusive: pattern inactive after this date
}

// NewRecurrencePattern builds a pattern with the weekday set normalized for
// the given type: daily covers the full week, weekdays_only covers Mon-Fri,
// weekly keeps the caller's selection.
func NewRecurrencePattern(t RecurrenceType, weekdays []int, endDate *time.Time) (*RecurrencePattern, error) {
	p := &RecurrencePattern{Type: t, EndDate: endDate}
	switch t {
	case RecurrenceNone:
	case RecurrenceDaily:
		p.Weekdays = []int{1, 2, 3, 4, 5, 6, 7}
	case RecurrenceWeekdaysOnly:
		p.Weekdays = []int{1, 2, 3, 4, 5}
	case RecurrenceWeekly:
		p.Weekdays = append([]int(nil), weekdays...)
	default:
		return nil, fmt.Errorf("invalid recurrence type %q", t)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the weekday-set invariants for the pattern type.
func (p *RecurrencePattern) Validate() error {
	switch p.Type {
	case RecurrenceNone:
		return nil
	case RecurrenceDaily:
		if len(p.Weekdays) != 7 {
			return fmt.Errorf("daily pattern requires the full week, got %d weekdays", len(p.Weekdays))
		}
	case RecurrenceWeekly:
		if len(p.Weekdays) == 0 {
			return fmt.Errorf("weekly pattern requires at least one weekday")
		}
	case RecurrenceWeekdaysOnly:
		if len(p.Weekdays) != 5 {
			return fmt.Errorf("weekdays_only pattern requires Monday through Friday, got %d weekdays", len(p.Weekdays))
		}
	default:
		return fmt.Errorf("invalid recurrence type %q", p.Type)
	}
	for _, d := range p.Weekdays {
		if d < 1 || d > 7 {
			return fmt.Errorf("weekday out of range 1-7: %d", d)
		}
	}
	return nil
}

// ShouldOccurOn reports whether the pattern produces an occurrence on the
// given calendar date. Inactive patterns (past EndDate) and none-typed
// patterns never occur.
func (p *RecurrencePattern) ShouldOccurOn(date time.Time) bool {
	if p == nil || p.Type == RecurrenceNone {
		return false
	}
	if p.EndDate != nil && dateOnly(date).After(dateOnly(*p.EndDate)) {
		return false
	}
	wd := isoWeekday(date)
	for _, d := range p.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// NextOccurrence scans forward day-by-day starting the day after `after`, for
// at most 14 days, returning the first matching date. Returns nil when no
// occurrence falls inside the window.
func (p *RecurrencePattern) NextOccurrence(after time.Time) *time.Time {
	if p == nil || p.Type == RecurrenceNone {
		return nil
	}
	probe := dateOnly(after)
	for i := 0; i < nextOccurrenceWindowDays; i++ {
		probe = probe.AddDate(0, 0, 1)
		if p.ShouldOccurOn(probe) {
			d := probe
			return &d
		}
	}
	return nil
}

// OccurrencesInRange returns every occurrence date in [start, end] inclusive.
func (p *RecurrencePattern) OccurrencesInRange(start, end time.Time) []time.Time {
	var out []time.Time
	if p == nil || p.Type == RecurrenceNone {
		return out
	}
	for probe := dateOnly(start); !probe.After(dateOnly(end)); probe = probe.AddDate(0, 0, 1) {
		if p.ShouldOccurOn(probe) {
			out = append(out, probe)
		}
	}
	return out
}

// ToJSON serializes the pattern for storage as a blob column.
func (p *RecurrencePattern) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// RecurrencePatternFromJSON decodes a stored pattern blob. Malformed input
// decodes to the none pattern rather than failing, so a corrupt row degrades
// to a non-recurring task instead of breaking reads.
func RecurrencePatternFromJSON(data []byte) *RecurrencePattern {
	none := &RecurrencePattern{Type: RecurrenceNone}
	if len(data) == 0 {
		return none
	}
	var p RecurrencePattern
	if err := json.Unmarshal(data, &p); err != nil {
		return none
	}
	if err := p.Validate(); err != nil {
		return none
	}
	return &p
}

// isoWeekday maps time.Weekday to ISO numbering (Monday=1 .. Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
