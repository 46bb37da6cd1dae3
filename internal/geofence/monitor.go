// Package geofence tracks which circular regions the device is inside and
// emits boundary-crossing events when that set changes.
package geofence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/queue"
)

// earthRadiusMeters is the mean Earth radius used for great-circle distance.
const earthRadiusMeters = 6371000.0

// Publisher is where the monitor sends boundary events.
type Publisher interface {
	Publish(ctx context.Context, event *queue.GeofenceEvent) error
}

// Region is one monitored circle.
type Region struct {
	ID           string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Monitor evaluates location updates against the registered regions.
// Containment state is tracked per region so each crossing produces exactly
// one event; a location update inside a region the device was already inside
// of is silent.
type Monitor struct {
	mu        sync.Mutex
	regions   map[string]Region
	inside    map[string]bool
	publisher Publisher
	logger    *zap.Logger
}

// NewMonitor creates a monitor publishing crossings to the given publisher.
func NewMonitor(publisher Publisher, logger *zap.Logger) *Monitor {
	return &Monitor{
		regions:   make(map[string]Region),
		inside:    make(map[string]bool),
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRegion adds or replaces a monitored region. Replacing a region
// resets its containment state so the next update re-evaluates from scratch.
func (m *Monitor) RegisterRegion(region Region) error {
	if region.ID == "" {
		return fmt.Errorf("region id is required")
	}
	if region.RadiusMeters <= 0 {
		return fmt.Errorf("region %s has non-positive radius", region.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[region.ID] = region
	delete(m.inside, region.ID)
	return nil
}

// UnregisterRegion stops monitoring a region. Unknown ids are a no-op.
func (m *Monitor) UnregisterRegion(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, id)
	delete(m.inside, id)
}

// Regions returns the ids currently monitored, sorted.
func (m *Monitor) Regions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.regions))
	for id := range m.regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProcessLocation evaluates one location fix. Regions entered since the last
// fix are batched into a single enter event, regions exited into a single
// exit event. Publish failures are returned but containment state is already
// updated; the next fix will not re-emit the lost crossing.
func (m *Monitor) ProcessLocation(ctx context.Context, lat, lng float64) error {
	m.mu.Lock()
	var entered, exited []string
	for id, region := range m.regions {
		contains := Distance(lat, lng, region.Latitude, region.Longitude) <= region.RadiusMeters
		if contains && !m.inside[id] {
			m.inside[id] = true
			entered = append(entered, id)
		} else if !contains && m.inside[id] {
			delete(m.inside, id)
			exited = append(exited, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(entered)
	sort.Strings(exited)

	if err := m.emit(ctx, queue.EventEnter, entered, lat, lng); err != nil {
		return err
	}
	return m.emit(ctx, queue.EventExit, exited, lat, lng)
}

func (m *Monitor) emit(ctx context.Context, kind queue.EventKind, ids []string, lat, lng float64) error {
	if len(ids) == 0 {
		return nil
	}

	event := queue.NewGeofenceEvent(kind, ids)
	event.Latitude = &lat
	event.Longitude = &lng

	if err := m.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	m.logger.Info("geofence_crossing_published",
		zap.String("kind", string(kind)),
		zap.Strings("geofence_ids", ids),
	)
	return nil
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180.0

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lng2 - lng1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
