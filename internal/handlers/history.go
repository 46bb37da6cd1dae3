package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
)

// HistoryHandler exposes work-session history and the notification audit log.
type HistoryHandler struct {
	sessions      database.TaskHistoryRepositoryInterface
	notifications database.NotificationHistoryRepositoryInterface
	logger        *zap.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(sessions database.TaskHistoryRepositoryInterface, notifications database.NotificationHistoryRepositoryInterface, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{sessions: sessions, notifications: notifications, logger: logger}
}

// RegisterRoutes registers history routes. The router should already carry
// the /history prefix.
func (h *HistoryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks/{task_id}", h.ListByTask).Methods("GET")
	r.HandleFunc("/date/{date}", h.ListByDate).Methods("GET")
	r.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	r.HandleFunc("/notifications", h.ClearNotifications).Methods("DELETE")
}

// ListByTask lists the work sessions recorded for one task.
func (h *HistoryHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["task_id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task id")
		return
	}

	entries, err := h.sessions.ListByTask(r.Context(), taskID)
	if err != nil {
		h.logger.Error("failed_to_list_task_history",
			zap.String("task_id", taskID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list task history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// ListByDate lists the sessions closed on a calendar day (YYYY-MM-DD).
func (h *HistoryHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", mux.Vars(r)["date"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Date must be YYYY-MM-DD")
		return
	}

	entries, err := h.sessions.ListByDate(r.Context(), date)
	if err != nil {
		h.logger.Error("failed_to_list_history_by_date", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// ListNotifications returns the notification audit log, newest first.
func (h *HistoryHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := h.notifications.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed_to_list_notification_history", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list notification history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// ClearNotifications wipes the audit log and reports how many rows went.
func (h *HistoryHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.notifications.Clear(r.Context())
	if err != nil {
		h.logger.Error("failed_to_clear_notification_history", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to clear notification history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"cleared": cleared})
}
