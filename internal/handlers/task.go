package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/userhub-api/backend/internal/tasks"
)

// TaskHandler exposes the async email task endpoints.
type TaskHandler struct {
	enqueuer *tasks.Enqueuer
	results  *tasks.ResultStore
}

// NewTaskHandler constructs a handler with the provided dependencies.
func NewTaskHandler(enqueuer *tasks.Enqueuer, results *tasks.ResultStore) *TaskHandler {
	return &TaskHandler{enqueuer: enqueuer, results: results}
}

// TaskRouter registers task routes on the given router.
func TaskRouter(r chi.Router, enqueuer *tasks.Enqueuer, results *tasks.ResultStore) {
	handler := NewTaskHandler(enqueuer, results)

	r.Post("/send-email", handler.SendEmail)
	r.Get("/{taskID}", handler.Status)
}

type SendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type TaskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}

type TaskStatusResponse struct {
	TaskID string `json:"task_id"`
	tasks.Result
}

// SendEmail enqueues an email job on the broker and returns its task id.
func (h *TaskHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.To = strings.TrimSpace(req.To)
	if !validEmail(req.To) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		writeError(w, http.StatusBadRequest, "missing subject")
		return
	}

	taskID, err := h.enqueuer.Enqueue(r.Context(), tasks.Email{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue email")
		return
	}

	writeJSON(w, http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
}

// Status reports the recorded outcome of a task. A task with no result
// yet reads as pending.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if strings.TrimSpace(taskID) == "" {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	result, found, err := h.results.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task status")
		return
	}
	if !found {
		result = tasks.Result{Status: tasks.StatusPending}
	}

	writeJSON(w, http.StatusOK, TaskStatusResponse{TaskID: taskID, Result: result})
}
