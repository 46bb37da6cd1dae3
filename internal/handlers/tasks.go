package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskfence/taskfence/internal/database"
	"github.com/taskfence/taskfence/internal/models"
	"github.com/taskfence/taskfence/internal/validation"
)

// TaskHandler handles task CRUD and completion.
type TaskHandler struct {
	tasks  database.TaskRepositoryInterface
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks database.TaskRepositoryInterface, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// RegisterRoutes registers task routes on the given router. The router should
// already carry the /tasks prefix.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListTasks).Methods("GET")
	r.HandleFunc("", h.CreateTask).Methods("POST")
	r.HandleFunc("/{id}", h.GetTask).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateTask).Methods("PUT")
	r.HandleFunc("/{id}", h.DeleteTask).Methods("DELETE")
	r.HandleFunc("/{id}/complete", h.CompleteTask).Methods("POST")
}

// CompleteTaskResponse carries the completed task plus the next recurrence
// instance, when one was spawned.
type CompleteTaskResponse struct {
	Completed *models.Task `json:"completed"`
	Next      *models.Task `json:"next,omitempty"`
}

// ListTasks lists tasks, hiding completed ones unless asked. An optional
// ?recurrence= filter narrows to one recurrence type.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	var recurrenceFilter *models.RecurrenceType
	if rt := r.URL.Query().Get("recurrence"); rt != "" {
		if err := validation.ValidateRecurrenceType(rt); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		filter := models.RecurrenceType(rt)
		recurrenceFilter = &filter
	}

	tasks, err := h.tasks.List(r.Context(), includeCompleted)
	if err != nil {
		h.logger.Error("failed_to_list_tasks", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list tasks")
		return
	}

	if recurrenceFilter != nil {
		filtered := tasks[:0:0]
		for _, task := range tasks {
			taskType := models.RecurrenceNone
			if task.Recurrence != nil {
				taskType = task.Recurrence.Type
			}
			if taskType == *recurrenceFilter {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CreateTask creates a task.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	task.Name = validation.SanitizeText(task.Name)
	if err := task.Validate(); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.tasks.Create(r.Context(), &task); err != nil {
		h.logger.Error("failed_to_create_task", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}
	respondJSON(w, http.StatusCreated, &task)
}

// GetTask fetches one task by id.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// UpdateTask replaces a task's mutable fields.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	task.Name = validation.SanitizeText(task.Name)
	task.ID = &id
	if err := task.Validate(); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.tasks.Update(r.Context(), &task); err != nil {
		h.logger.Error("failed_to_update_task",
			zap.String("task_id", id.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update task")
		return
	}
	respondJSON(w, http.StatusOK, &task)
}

// DeleteTask removes a task.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed_to_delete_task",
			zap.String("task_id", id.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete task")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

// CompleteTask marks a task done. Completing a recurring task spawns the next
// occurrence as a fresh task so the series keeps going.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	task, err := h.tasks.GetByID(ctx, id)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
		return
	}
	if task.IsCompleted {
		respondJSONError(w, http.StatusConflict, "Conflict", "Task is already completed")
		return
	}

	if err := h.tasks.Complete(ctx, id); err != nil {
		h.logger.Error("failed_to_complete_task",
			zap.String("task_id", id.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to complete task")
		return
	}
	task.IsCompleted = true

	response := CompleteTaskResponse{Completed: task}
	if next := h.spawnNextOccurrence(r, task); next != nil {
		response.Next = next
	}
	respondJSON(w, http.StatusOK, response)
}

// spawnNextOccurrence creates the follow-up instance of a recurring task.
// Failure to spawn never fails the completion itself.
func (h *TaskHandler) spawnNextOccurrence(r *http.Request, task *models.Task) *models.Task {
	if !task.IsRecurring || task.Recurrence == nil {
		return nil
	}

	after := time.Now()
	if task.ScheduledDate != nil && task.ScheduledDate.After(after) {
		after = *task.ScheduledDate
	}
	nextDate := task.Recurrence.NextOccurrence(after)
	if nextDate == nil {
		return nil
	}

	next := task.CopyWithDate(*nextDate)
	if err := h.tasks.Create(r.Context(), next); err != nil {
		h.logger.Error("failed_to_spawn_next_occurrence",
			zap.String("task_name", task.Name),
			zap.Error(err),
		)
		return nil
	}

	h.logger.Info("recurrence_instance_spawned",
		zap.String("task_name", next.Name),
		zap.Time("scheduled_date", *nextDate),
	)
	return next
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid task id")
		return uuid.Nil, false
	}
	return id, true
}
