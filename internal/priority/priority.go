// Package priority computes the effective priority used to arbitrate between
// competing tasks: the user-assigned base priority plus a time-urgency bonus
// for geofenced, time-bound tasks.
package priority

import (
	"sort"
	"time"

	"github.com/taskfence/taskfence/internal/models"
)

// Effective returns the effective priority of a task at the given instant.
//
// Pure time/alarm tasks (no geofence) return the base priority unmodified:
// the firing time already encodes their urgency, so adding a bonus would
// double-count it. Geofenced tasks without an explicit schedule also return
// the base. Otherwise a monotonically decreasing bonus is added by
// whole-hours-until-schedule threshold.
func Effective(task *models.Task, now time.Time) float64 {
	base := float64(task.Priority)
	if task.GeofenceID == nil {
		return base
	}
	at, ok := task.ScheduledAt()
	if !ok {
		return base
	}
	hoursUntil := int(at.Sub(now).Hours())
	switch {
	case hoursUntil <= 0:
		return base + 2.0
	case hoursUntil <= 1:
		return base + 1.5
	case hoursUntil <= 3:
		return base + 1.0
	case hoursUntil <= 24:
		return base + 0.5
	default:
		return base
	}
}

// Rank sorts tasks descending by effective priority, in place. Ties break
// deterministically: the lexicographically smaller task id wins, and tasks
// without an id sort after persisted ones.
func Rank(tasks []*models.Task, now time.Time) {
	sort.SliceStable(tasks, func(i, j int) bool {
		pi, pj := Effective(tasks[i], now), Effective(tasks[j], now)
		if pi != pj {
			return pi > pj
		}
		return lessByID(tasks[i], tasks[j])
	})
}

// HighestEffective returns the maximum effective priority over the given
// tasks, or 0 for an empty set.
func HighestEffective(tasks []*models.Task, now time.Time) float64 {
	var highest float64
	for _, t := range tasks {
		if p := Effective(t, now); p > highest {
			highest = p
		}
	}
	return highest
}

func lessByID(a, b *models.Task) bool {
	switch {
	case a.ID == nil:
		return false
	case b.ID == nil:
		return true
	default:
		return a.ID.String() < b.ID.String()
	}
}
