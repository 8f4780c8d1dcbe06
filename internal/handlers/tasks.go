package handlers

import (
	"context"
	"net/http"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type TasksService interface {
	List(ctx context.Context, owner string) ([]models.Task, error)
	Create(ctx context.Context, owner string, fields models.NewTask) (models.Task, error)
	Get(ctx context.Context, owner string, id uuid.UUID) (models.Task, error)
	Update(ctx context.Context, owner string, id uuid.UUID, patch models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
	Search(ctx context.Context, owner, query string) ([]models.Task, error)
}

type TasksHandler struct {
	service TasksService
}

func NewTasksHandler(service TasksService) *TasksHandler {
	return &TasksHandler{service: service}
}

type createTaskRequest struct {
	Category  *string `json:"category"`
	Text      *string `json:"text"`
	Completed bool    `json:"completed"`
	Due       *int64  `json:"due"`
}

type updateTaskRequest struct {
	Category  *string `json:"category"`
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
	Due       *int64  `json:"due"`
}

type deleteTaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context(), ownerFrom(r))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if req.Category == nil || req.Text == nil {
		respondWithError(w, r, appErrors.ErrMissingFields)
		return
	}

	task, err := h.service.Create(r.Context(), ownerFrom(r), models.NewTask{
		Category:  *req.Category,
		Text:      *req.Text,
		Completed: req.Completed,
		Due:       req.Due,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, task)
}

func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.service.Get(r.Context(), ownerFrom(r), id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	task, err := h.service.Update(r.Context(), ownerFrom(r), id, models.TaskPatch{
		Category:  req.Category,
		Text:      req.Text,
		Completed: req.Completed,
		Due:       req.Due,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ownerFrom(r), id); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, deleteTaskResponse{TaskID: id})
}

func (h *TasksHandler) Search(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.Search(r.Context(), ownerFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tasks)
}

// taskID treats an unparsable id like an unknown one.
func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, r, appErrors.ErrTaskNotFound)
		return uuid.Nil, false
	}
	return id, true
}

