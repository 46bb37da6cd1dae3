package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/arbiter"
)

// SessionHandler exposes work-session control: starting, ending and
// inspecting the single active task session.
type SessionHandler struct {
	arbiter *arbiter.Arbiter
	logger  *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(arb *arbiter.Arbiter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{arbiter: arb, logger: logger}
}

// RegisterRoutes registers session routes. The router should already carry
// the /sessions prefix.
func (h *SessionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/start", h.StartSession).Methods("POST")
	r.HandleFunc("/end", h.EndSession).Methods("POST")
	r.HandleFunc("/active", h.ActiveSession).Methods("GET")
}

// SessionRequest selects the task a session operation applies to. EndedAt
// lets a client backdate the session end, for example after reconnecting;
// omitted means now.
type SessionRequest struct {
	TaskID  uuid.UUID  `json:"task_id"`
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// StartSession begins working on a task. Exactly one session can be active;
// a second start returns 409.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == uuid.Nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "task_id is required")
		return
	}

	if err := h.arbiter.StartSession(r.Context(), req.TaskID); err != nil {
		if errors.Is(err, arbiter.ErrSessionConflict) {
			respondJSONError(w, http.StatusConflict, "Conflict", "Another task session is already active")
			return
		}
		h.logger.Error("failed_to_start_session",
			zap.String("task_id", req.TaskID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to start session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"task_id": req.TaskID.String(), "state": "active"})
}

// EndSession finishes the active session and returns its closed history entry.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == uuid.Nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "task_id is required")
		return
	}

	endedAt := time.Now()
	if req.EndedAt != nil {
		endedAt = *req.EndedAt
	}
	entry, err := h.arbiter.EndSession(r.Context(), req.TaskID, endedAt)
	if err != nil {
		if errors.Is(err, arbiter.ErrNoOpenSession) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "No open session for this task")
			return
		}
		h.logger.Error("failed_to_end_session",
			zap.String("task_id", req.TaskID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to end session")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// ActiveSession reports the current marker, or data: null when idle.
func (h *SessionHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	marker, err := h.arbiter.ActiveSession(r.Context())
	if err != nil {
		h.logger.Error("failed_to_read_active_session", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to read active session")
		return
	}
	respondJSON(w, http.StatusOK, marker)
}
