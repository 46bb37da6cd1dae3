package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/geofence"
	"github.com/taskfence/taskfence/internal/models"
)

// GeofenceHandler handles geofence CRUD and keeps the region monitor in sync
// with the store.
type GeofenceHandler struct {
	fences  database.GeofenceRepositoryInterface
	monitor *geofence.Monitor
	logger  *zap.Logger
}

// NewGeofenceHandler creates a geofence handler. The monitor may be nil in
// processes that do not evaluate locations.
func NewGeofenceHandler(fences database.GeofenceRepositoryInterface, monitor *geofence.Monitor, logger *zap.Logger) *GeofenceHandler {
	return &GeofenceHandler{fences: fences, monitor: monitor, logger: logger}
}

// RegisterRoutes registers geofence routes. The router should already carry
// the /geofences prefix.
func (h *GeofenceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListGeofences).Methods("GET")
	r.HandleFunc("", h.CreateGeofence).Methods("POST")
	r.HandleFunc("/{id}", h.GetGeofence).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateGeofence).Methods("PUT")
	r.HandleFunc("/{id}", h.DeleteGeofence).Methods("DELETE")
}

// ListGeofences lists all geofences.
func (h *GeofenceHandler) ListGeofences(w http.ResponseWriter, r *http.Request) {
	fences, err := h.fences.List(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_geofences", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list geofences")
		return
	}
	respondJSON(w, http.StatusOK, fences)
}

// CreateGeofence creates a geofence and starts monitoring it.
func (h *GeofenceHandler) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	var fence models.Geofence
	if err := json.NewDecoder(r.Body).Decode(&fence); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	if err := fence.Validate(); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.fences.Create(r.Context(), &fence); err != nil {
		h.logger.Error("failed_to_create_geofence",
			zap.String("geofence_id", fence.ID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create geofence")
		return
	}
	h.syncMonitor(&fence)
	respondJSON(w, http.StatusCreated, &fence)
}

// GetGeofence fetches one geofence by id.
func (h *GeofenceHandler) GetGeofence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	fence, err := h.fences.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Geofence not found")
		return
	}
	respondJSON(w, http.StatusOK, fence)
}

// UpdateGeofence replaces a geofence and refreshes its monitored region.
func (h *GeofenceHandler) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var fence models.Geofence
	if err := json.NewDecoder(r.Body).Decode(&fence); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	fence.ID = id
	if err := fence.Validate(); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.fences.Update(r.Context(), &fence); err != nil {
		h.logger.Error("failed_to_update_geofence",
			zap.String("geofence_id", id),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update geofence")
		return
	}
	h.syncMonitor(&fence)
	respondJSON(w, http.StatusOK, &fence)
}

// DeleteGeofence removes a geofence, clears task references to it and stops
// monitoring it.
func (h *GeofenceHandler) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.fences.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed_to_delete_geofence",
			zap.String("geofence_id", id),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete geofence")
		return
	}
	if h.monitor != nil {
		h.monitor.UnregisterRegion(id)
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *GeofenceHandler) syncMonitor(fence *models.Geofence) {
	if h.monitor == nil {
		return
	}
	err := h.monitor.RegisterRegion(geofence.Region{
		ID:           fence.ID,
		Latitude:     fence.Latitude,
		Longitude:    fence.Longitude,
		RadiusMeters: fence.RadiusMeters,
	})
	if err != nil {
		h.logger.Error("failed_to_register_region",
			zap.String("geofence_id", fence.ID),
			zap.Error(err),
		)
	}
}
