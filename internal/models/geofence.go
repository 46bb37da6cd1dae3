package models

import (
	"fmt"
	"time"
)

const (
	// MinRadiusMeters is the smallest monitorable geofence radius
	MinRadiusMeters = 1.0
	// MaxRadiusMeters is the largest monitorable geofence radius
	MaxRadiusMeters = 1000.0
)

// Geofence is a circular monitored region. Styling fields are passed through
// to rendering clients untouched; the core only uses identity, center and
// radius.
type Geofence struct {
	ID          string    `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters"`
	FillColor   string    `json:"fill_color,omitempty"`
	FillOpacity float64   `json:"fill_opacity,omitempty"`
	StrokeColor string    `json:"stroke_color,omitempty"`
	StrokeWidth float64   `json:"stroke_width,omitempty"`
	TaskName    *string   `json:"task_name,omitempty"` // legacy single-task binding by name
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the geofence invariants enforced at construction.
func (g *Geofence) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("geofence id is required")
	}
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", g.Longitude)
	}
	if g.RadiusMeters < MinRadiusMeters || g.RadiusMeters > MaxRadiusMeters {
		return fmt.Errorf("radius must be between %.0f and %.0f meters, got %f", MinRadiusMeters, MaxRadiusMeters, g.RadiusMeters)
	}
	return nil
}
