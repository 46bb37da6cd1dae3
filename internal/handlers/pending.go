package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/state"
)

// PendingHandler exposes the "Do Later" queue.
type PendingHandler struct {
	store  state.Store
	logger *zap.Logger
}

// NewPendingHandler creates a pending-queue handler.
func NewPendingHandler(store state.Store, logger *zap.Logger) *PendingHandler {
	return &PendingHandler{store: store, logger: logger}
}

// RegisterRoutes registers pending-queue routes. The router should already
// carry the /pending prefix.
func (h *PendingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPending).Methods("GET")
	r.HandleFunc("", h.ClearPending).Methods("DELETE")
	r.HandleFunc("/{task_id}", h.RemovePending).Methods("DELETE")
}

// ListPending returns non-expired deferred tasks.
func (h *PendingHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_pending", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list pending tasks")
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

// RemovePending dismisses one deferred task.
func (h *PendingHandler) RemovePending(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["task_id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task id")
		return
	}

	if err := h.store.RemovePending(r.Context(), taskID); err != nil {
		h.logger.Error("failed_to_remove_pending",
			zap.String("task_id", taskID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to remove pending task")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"task_id": taskID.String()})
}

// ClearPending dismisses the whole queue.
func (h *PendingHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearPending(r.Context()); err != nil {
		h.logger.Error("failed_to_clear_pending", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to clear pending tasks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": "cleared"})
}
