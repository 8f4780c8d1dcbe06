package repository

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/internal/notify"
	"github.com/Novip1906/tasks-live/internal/storage"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/google/uuid"
)

type recordingSink struct {
	mu     sync.Mutex
	owners []string
	events []models.ChangeEvent
	err    error
}

func (s *recordingSink) HandleEvent(_ context.Context, owner string, ev models.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = append(s.owners, owner)
	s.events = append(s.events, ev)
	return s.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, models.ChangeEvent) error {
	return appErrors.ErrStoreUnavailable
}

func newRepository(t *testing.T, sinks ...EventSink) (*TaskRepository, *storage.MemoryStorage, *notify.Bus) {
	t.Helper()
	store := storage.NewMemoryStorage()
	bus := notify.NewBus(store, logging.Discard())
	return NewTaskRepository(store, bus, logging.Discard(), sinks...), store, bus
}

func nextEvent(t *testing.T, sub *notify.Subscription) models.ChangeEvent {
	t.Helper()
	select {
	case n, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription ended")
		}
		if n.Err != nil {
			t.Fatalf("notification error: %v", n.Err)
		}
		return n.Event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestCreateListDelete(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepository(t)

	task, err := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Id == uuid.Nil {
		t.Fatal("Create should assign an id")
	}

	tasks, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || !reflect.DeepEqual(tasks[0], task) {
		t.Fatalf("List = %+v, want [%+v]", tasks, task)
	}

	if err := repo.Delete(ctx, "alice", task.Id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	tasks, err = repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("List after delete = %+v, want empty", tasks)
	}
}

func TestCreate_NotIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepository(t)
	fields := models.NewTask{Category: "home", Text: "buy milk"}

	first, _ := repo.Create(ctx, "alice", fields)
	second, _ := repo.Create(ctx, "alice", fields)
	if first.Id == second.Id {
		t.Error("two creates should yield two ids")
	}
	tasks, _ := repo.List(ctx, "alice")
	if len(tasks) != 2 {
		t.Errorf("len(List) = %d, want 2", len(tasks))
	}
}

func TestUpdate_MergePatch(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepository(t)

	task, err := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "buy milk", Due: int64Ptr(1767225600)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := repo.Update(ctx, "alice", task.Id, models.TaskPatch{Completed: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := task
	want.Completed = true
	if !reflect.DeepEqual(updated, want) {
		t.Errorf("Update = %+v, want %+v", updated, want)
	}

	stored, err := repo.Get(ctx, "alice", task.Id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(stored, want) {
		t.Errorf("Get = %+v, want %+v", stored, want)
	}

	updated, err = repo.Update(ctx, "alice", task.Id, models.TaskPatch{Text: strPtr("buy oat milk"), Due: int64Ptr(1)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Text != "buy oat milk" || *updated.Due != 1 || !updated.Completed || updated.Category != "home" {
		t.Errorf("second Update = %+v", updated)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepository(t)
	missing := uuid.New()

	if _, err := repo.Get(ctx, "alice", missing); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("Get err = %v, want ErrTaskNotFound", err)
	}
	if _, err := repo.Update(ctx, "alice", missing, models.TaskPatch{}); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("Update err = %v, want ErrTaskNotFound", err)
	}
	if err := repo.Delete(ctx, "alice", missing); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("Delete err = %v, want ErrTaskNotFound", err)
	}
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepository(t)

	task, err := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "secret"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.Get(ctx, "mallory", task.Id); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("cross-owner Get err = %v, want ErrTaskNotFound", err)
	}
	if _, err := repo.Update(ctx, "mallory", task.Id, models.TaskPatch{Text: strPtr("pwned")}); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("cross-owner Update err = %v, want ErrTaskNotFound", err)
	}
	if err := repo.Delete(ctx, "mallory", task.Id); !errors.Is(err, appErrors.ErrTaskNotFound) {
		t.Errorf("cross-owner Delete err = %v, want ErrTaskNotFound", err)
	}
	if tasks, _ := repo.List(ctx, "mallory"); len(tasks) != 0 {
		t.Errorf("mallory List = %+v, want empty", tasks)
	}

	stored, err := repo.Get(ctx, "alice", task.Id)
	if err != nil || stored.Text != "secret" {
		t.Errorf("alice's task changed: %+v, %v", stored, err)
	}
}

func TestList_SkipsDanglingIndexEntries(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newRepository(t)

	task, _ := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "kept"})
	store.SAdd(ctx, indexKey("alice"), uuid.NewString())

	tasks, err := repo.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Id != task.Id {
		t.Errorf("List = %+v, want only %s", tasks, task.Id)
	}
}

func TestList_CorruptRecordFails(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newRepository(t)

	id := uuid.NewString()
	store.Set(ctx, taskKey("alice", id), "{not json", 0)
	store.SAdd(ctx, indexKey("alice"), id)

	if _, err := repo.List(ctx, "alice"); err == nil {
		t.Error("List should fail on an undecodable record")
	}
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo, store, _ := newRepository(t)
	store.Fail(errors.New("connection refused"))

	if _, err := repo.List(ctx, "alice"); !errors.Is(err, appErrors.ErrStoreUnavailable) {
		t.Errorf("List err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := repo.Create(ctx, "alice", models.NewTask{Text: "x"}); !errors.Is(err, appErrors.ErrStoreUnavailable) {
		t.Errorf("Create err = %v, want ErrStoreUnavailable", err)
	}
}

func TestMutationsPublishOneEventEach(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	repo, _, bus := newRepository(t, sink)

	sub, err := bus.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	task, _ := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "buy milk"})
	updated, _ := repo.Update(ctx, "alice", task.Id, models.TaskPatch{Completed: boolPtr(true)})
	if err := repo.Delete(ctx, "alice", task.Id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Failed mutations publish nothing.
	repo.Delete(ctx, "alice", task.Id)

	want := []models.ChangeEvent{
		models.TaskCreated{Task: task},
		models.TaskUpdated{Task: updated},
		models.TaskDeleted{TaskID: task.Id},
	}
	for _, ev := range want {
		if got := nextEvent(t, sub); !reflect.DeepEqual(got, ev) {
			t.Errorf("event = %#v, want %#v", got, ev)
		}
	}
	select {
	case n := <-sub.Events():
		t.Errorf("unexpected extra event %#v", n)
	case <-time.After(20 * time.Millisecond):
	}

	if !reflect.DeepEqual(sink.events, want) {
		t.Errorf("sink events = %#v, want %#v", sink.events, want)
	}
	for _, owner := range sink.owners {
		if owner != "alice" {
			t.Errorf("sink owner = %q, want alice", owner)
		}
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	sink := &recordingSink{err: errors.New("broker down")}
	repo := NewTaskRepository(store, failingPublisher{}, logging.Discard(), sink)

	task, err := repo.Create(ctx, "alice", models.NewTask{Category: "home", Text: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Get(ctx, "alice", task.Id); err != nil {
		t.Errorf("Get after create: %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("sink saw %d events, want 1", len(sink.events))
	}
}
