package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/internal/storage"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/google/uuid"
)

const sinkTimeout = 5 * time.Second

// Publisher receives exactly one event per successful mutation.
type Publisher interface {
	Publish(ctx context.Context, owner string, ev models.ChangeEvent) error
}

// EventSink is a best-effort consumer of the same events, such as a search
// index or a message broker.
type EventSink interface {
	HandleEvent(ctx context.Context, owner string, ev models.ChangeEvent) error
}

// TaskRepository keeps task:<owner>:<id> records and the task_ids:<owner>
// index. Record and index are written separately, so a crash in between can
// leave a dangling index entry; List skips those.
type TaskRepository struct {
	store storage.Store
	bus   Publisher
	sinks []EventSink
	log   *slog.Logger
	newID func() uuid.UUID
}

func NewTaskRepository(store storage.Store, bus Publisher, log *slog.Logger, sinks ...EventSink) *TaskRepository {
	return &TaskRepository{
		store: store,
		bus:   bus,
		sinks: sinks,
		log:   log.With(slog.String("component", "tasks")),
		newID: uuid.New,
	}
}

func taskKey(owner string, id string) string {
	return "task:" + owner + ":" + id
}

func indexKey(owner string) string {
	return "task_ids:" + owner
}

func (r *TaskRepository) List(ctx context.Context, owner string) ([]models.Task, error) {
	ids, err := r.store.SMembers(ctx, indexKey(owner))
	if err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		task, err := r.load(ctx, owner, id)
		if errors.Is(err, appErrors.ErrTaskNotFound) {
			r.log.Warn("dangling task index entry", slog.String("owner", owner), slog.String("task_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Create is not idempotent: every call stores a new task.
func (r *TaskRepository) Create(ctx context.Context, owner string, fields models.NewTask) (models.Task, error) {
	task := models.Task{
		Id:        r.newID(),
		Category:  fields.Category,
		Text:      fields.Text,
		Completed: fields.Completed,
		Due:       fields.Due,
	}

	if err := r.save(ctx, owner, task); err != nil {
		return models.Task{}, err
	}
	if err := r.store.SAdd(ctx, indexKey(owner), task.Id.String()); err != nil {
		return models.Task{}, err
	}

	r.emit(ctx, owner, models.TaskCreated{Task: task})
	return task, nil
}

func (r *TaskRepository) Get(ctx context.Context, owner string, id uuid.UUID) (models.Task, error) {
	return r.load(ctx, owner, id.String())
}

func (r *TaskRepository) Update(ctx context.Context, owner string, id uuid.UUID, patch models.TaskPatch) (models.Task, error) {
	task, err := r.load(ctx, owner, id.String())
	if err != nil {
		return models.Task{}, err
	}

	task = patch.Apply(task)
	if err := r.save(ctx, owner, task); err != nil {
		return models.Task{}, err
	}

	r.emit(ctx, owner, models.TaskUpdated{Task: task})
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	key := taskKey(owner, id.String())
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return appErrors.ErrTaskNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return err
	}
	if err := r.store.SRem(ctx, indexKey(owner), id.String()); err != nil {
		return err
	}

	r.emit(ctx, owner, models.TaskDeleted{TaskID: id})
	return nil
}

func (r *TaskRepository) load(ctx context.Context, owner, id string) (models.Task, error) {
	data, err := r.store.Get(ctx, taskKey(owner, id))
	if errors.Is(err, storage.ErrNotFound) {
		return models.Task{}, appErrors.ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, err
	}

	var task models.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return models.Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return task, nil
}

func (r *TaskRepository) save(ctx context.Context, owner string, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, taskKey(owner, task.Id.String()), string(data), 0)
}

// emit runs after the store write. Delivery failures are logged only: the
// mutation already happened and a caller retry would duplicate it.
func (r *TaskRepository) emit(ctx context.Context, owner string, ev models.ChangeEvent) {
	log := r.log.With(slog.String("owner", owner), slog.String("event", models.EventType(ev)))

	if err := r.bus.Publish(ctx, owner, ev); err != nil {
		log.Error("publish failed", logging.StoreErr("publish", err))
	}

	if len(r.sinks) == 0 {
		return
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	for _, sink := range r.sinks {
		if err := sink.HandleEvent(sinkCtx, owner, ev); err != nil {
			log.Error("event sink failed", slog.String("sink", fmt.Sprintf("%T", sink)), logging.Err(err))
		}
	}
}
