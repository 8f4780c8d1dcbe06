package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Novip1906/tasks-live/internal/config"
	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/google/uuid"
)

type TasksStorage interface {
	List(ctx context.Context, owner string) ([]models.Task, error)
	Create(ctx context.Context, owner string, fields models.NewTask) (models.Task, error)
	Get(ctx context.Context, owner string, id uuid.UUID) (models.Task, error)
	Update(ctx context.Context, owner string, id uuid.UUID, patch models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
}

type TaskSearcher interface {
	Search(ctx context.Context, owner, query string) ([]models.Task, error)
}

// TasksService validates input before it reaches the repository. Owner is
// always the verified token subject.
type TasksService struct {
	params   config.Params
	log      *slog.Logger
	db       TasksStorage
	searcher TaskSearcher
}

// NewTasksService accepts a nil searcher; Search then fails with
// ErrSearchDisabled.
func NewTasksService(params config.Params, log *slog.Logger, db TasksStorage, searcher TaskSearcher) *TasksService {
	return &TasksService{params: params, log: log, db: db, searcher: searcher}
}

func (s *TasksService) List(ctx context.Context, owner string) ([]models.Task, error) {
	return s.db.List(ctx, owner)
}

func (s *TasksService) Create(ctx context.Context, owner string, fields models.NewTask) (models.Task, error) {
	fields.Category = processText(fields.Category)
	fields.Text = processText(fields.Text)

	if fields.Category == "" {
		return models.Task{}, appErrors.ErrMissingFields
	}
	if !lengthIsValid(fields.Text, s.params.Text) {
		return models.Task{}, appErrors.ErrInvalidParams
	}

	return s.db.Create(ctx, owner, fields)
}

func (s *TasksService) Get(ctx context.Context, owner string, id uuid.UUID) (models.Task, error) {
	return s.db.Get(ctx, owner, id)
}

func (s *TasksService) Update(ctx context.Context, owner string, id uuid.UUID, patch models.TaskPatch) (models.Task, error) {
	if patch.Category != nil {
		category := processText(*patch.Category)
		if category == "" {
			return models.Task{}, appErrors.ErrInvalidParams
		}
		patch.Category = &category
	}
	if patch.Text != nil {
		text := processText(*patch.Text)
		if !lengthIsValid(text, s.params.Text) {
			return models.Task{}, appErrors.ErrInvalidParams
		}
		patch.Text = &text
	}

	return s.db.Update(ctx, owner, id, patch)
}

func (s *TasksService) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	return s.db.Delete(ctx, owner, id)
}

func (s *TasksService) Search(ctx context.Context, owner, query string) ([]models.Task, error) {
	if s.searcher == nil {
		return nil, appErrors.ErrSearchDisabled
	}
	query = processText(query)
	if query == "" {
		return nil, appErrors.ErrMissingFields
	}
	return s.searcher.Search(ctx, owner, query)
}

func processText(text string) string {
	return strings.TrimSpace(text)
}
