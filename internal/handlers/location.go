package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/geofence"
	"github.com/taskfence/taskfence/internal/validation"
)

// LocationHandler accepts location fixes from the companion UI and feeds them
// to the region monitor.
type LocationHandler struct {
	monitor *geofence.Monitor
	logger  *zap.Logger
}

// NewLocationHandler creates a location handler.
func NewLocationHandler(monitor *geofence.Monitor, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{monitor: monitor, logger: logger}
}

// LocationUpdate is one reported fix.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// UpdateLocation handles POST /location.
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var update LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	if err := validation.Validate.Struct(&update); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Coordinates out of range")
		return
	}

	if err := h.monitor.ProcessLocation(r.Context(), update.Latitude, update.Longitude); err != nil {
		h.logger.Error("failed_to_process_location", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to process location")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"monitored_regions": h.monitor.Regions(),
	})
}
