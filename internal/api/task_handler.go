package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/lingua-api/internal/api/shared"
	"github.com/phrazzld/lingua-api/internal/platform/logger"
	"github.com/phrazzld/lingua-api/internal/task"
)

// TaskService is the subset of the task manager used by the HTTP layer.
// Version: 1.0
type TaskService interface {
	Submit(ctx context.Context, name string, payload any, opts ...task.Option) (string, error)
	GetResult(ctx context.Context, taskID string) (*task.Result, error)
	Cancel(ctx context.Context, taskID string) (bool, error)
}

// SubmitTaskRequest is the body of POST /api/tasks.
type SubmitTaskRequest struct {
	Name    string          `json:"name"              validate:"required,max=128"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TaskID  string          `json:"task_id,omitempty" validate:"omitempty,max=128"`
	// Delay is in seconds.
	Delay float64 `json:"delay,omitempty" validate:"gte=0"`
}

// SubmitTaskResponse is returned when a task has been accepted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
}

// CancelTaskResponse reports whether a cancel request was accepted.
type CancelTaskResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a TaskHandler backed by tasks.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Routes mounts the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/", h.SubmitTask)
	r.Get("/{id}", h.GetTask)
	r.Post("/{id}/cancel", h.CancelTask)
}

// SubmitTask handles POST /api/tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request", err)
		return
	}

	opts := []task.Option{}
	if req.TaskID != "" {
		opts = append(opts, task.WithTaskID(req.TaskID))
	}
	if req.Delay > 0 {
		opts = append(opts, task.WithDelay(time.Duration(req.Delay*float64(time.Second))))
	}

	taskID, err := h.tasks.Submit(r.Context(), req.Name, req.Payload, opts...)
	if err != nil {
		status, message := submitErrorStatus(err)
		shared.RespondWithErrorAndLog(w, r, status, message, err)
		return
	}

	logger.FromContext(r.Context()).Info("task accepted", "task_id", taskID, "task_name", req.Name)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{TaskID: taskID})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	result, err := h.tasks.GetResult(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrBackendUnavailable) {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Task backend unavailable", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to read task", err)
		return
	}
	if result == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// CancelTask handles POST /api/tasks/{id}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	cancelled, err := h.tasks.Cancel(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrBackendUnavailable) {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Task backend unavailable", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to cancel task", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{TaskID: taskID, Cancelled: cancelled})
}

// submitErrorStatus maps a submission failure to a status code and a
// client-safe message.
func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, task.ErrNotRegistered):
		return http.StatusNotFound, "Unknown task"
	case errors.Is(err, task.ErrInvalidPayload):
		return http.StatusBadRequest, "Invalid task payload"
	case errors.Is(err, task.ErrDuplicateTask):
		return http.StatusConflict, "Task ID already in use"
	case errors.Is(err, task.ErrSchedulingHookMissing),
		errors.Is(err, task.ErrBackendUnavailable),
		errors.Is(err, task.ErrQueueFull):
		return http.StatusServiceUnavailable, "Task scheduling unavailable"
	default:
		return http.StatusInternalServerError, "Failed to submit task"
	}
}
