package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"github.com/hiroki-koketsu/go-otel-todo/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
}

// recordingStorage counts saves and keeps the last saved collection.
type recordingStorage struct {
	initial model.Tasks
	saves   int
	last    model.Tasks
	err     error
}

func (s *recordingStorage) Load(context.Context) model.Tasks { return s.initial }

func (s *recordingStorage) Save(_ context.Context, tasks model.Tasks) error {
	s.saves++
	s.last = tasks.Clone()
	return s.err
}

func newTestRepo(t *testing.T, st Storage) *TaskRepository {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTaskRepository(context.Background(), st, logger,
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
	)
}

func TestTaskRepository_Scenario(t *testing.T) {
	ctx := context.Background()
	st := &recordingStorage{}
	repo := newTestRepo(t, st)

	if s := repo.Stats(ctx); s != (model.Stats{}) {
		t.Fatalf("initial stats=%+v", s)
	}

	task, ok := repo.Add(ctx, "Buy milk")
	if !ok {
		t.Fatal("add failed")
	}
	if s := repo.Stats(ctx); s != (model.Stats{Total: 1, Pending: 1}) {
		t.Fatalf("after add stats=%+v", s)
	}

	if _, ok := repo.Toggle(ctx, task.ID); !ok {
		t.Fatal("toggle failed")
	}
	if s := repo.Stats(ctx); s != (model.Stats{Total: 1, Completed: 1}) {
		t.Fatalf("after toggle stats=%+v", s)
	}

	if removed := repo.ClearCompleted(ctx); removed != 1 {
		t.Fatalf("removed=%d want 1", removed)
	}
	if s := repo.Stats(ctx); s != (model.Stats{}) {
		t.Fatalf("after clear stats=%+v", s)
	}

	if st.saves != 3 {
		t.Fatalf("saves=%d want 3", st.saves)
	}
	if len(st.last) != 0 {
		t.Fatalf("last saved=%+v want empty", st.last)
	}
}

func TestTaskRepository_NoOpsDoNotPersist(t *testing.T) {
	ctx := context.Background()
	st := &recordingStorage{}
	repo := newTestRepo(t, st)

	task, _ := repo.Add(ctx, "keep")
	st.saves = 0

	if _, ok := repo.Add(ctx, "   "); ok {
		t.Fatal("blank add should be a no-op")
	}
	if _, ok := repo.Edit(ctx, task.ID, ""); ok {
		t.Fatal("blank edit should be a no-op")
	}
	if _, ok := repo.Edit(ctx, "missing", "x"); ok {
		t.Fatal("edit of unknown id should be a no-op")
	}
	if _, ok := repo.Toggle(ctx, "missing"); ok {
		t.Fatal("toggle of unknown id should be a no-op")
	}
	if repo.Delete(ctx, "missing") {
		t.Fatal("delete of unknown id should be a no-op")
	}
	if removed := repo.ClearCompleted(ctx); removed != 0 {
		t.Fatalf("removed=%d want 0", removed)
	}

	if st.saves != 0 {
		t.Fatalf("saves=%d want 0", st.saves)
	}
	got, err := repo.Get(ctx, task.ID)
	if err != nil || got.Text != "keep" || got.UpdatedAt != nil {
		t.Fatalf("task changed: %+v, %v", got, err)
	}
}

func TestTaskRepository_EditStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, &recordingStorage{})

	task, _ := repo.Add(ctx, "draft")
	edited, ok := repo.Edit(ctx, task.ID, "  final  ")
	if !ok {
		t.Fatal("edit failed")
	}
	if edited.Text != "final" || edited.Completed {
		t.Fatalf("unexpected task %+v", edited)
	}
	if edited.UpdatedAt == nil || !edited.UpdatedAt.After(edited.CreatedAt) {
		t.Fatalf("updatedAt=%v createdAt=%v", edited.UpdatedAt, edited.CreatedAt)
	}
}

func TestTaskRepository_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, &recordingStorage{})

	a, _ := repo.Add(ctx, "a")
	repo.Add(ctx, "b")

	if !repo.Delete(ctx, a.ID) {
		t.Fatal("first delete should apply")
	}
	if repo.Delete(ctx, a.ID) {
		t.Fatal("second delete should be a no-op")
	}
	if repo.Count() != 1 {
		t.Fatalf("count=%d want 1", repo.Count())
	}
	if _, err := repo.Get(ctx, a.ID); !errors.Is(err, model.ErrTaskNotFound) {
		t.Fatalf("err=%v want ErrTaskNotFound", err)
	}
}

func TestTaskRepository_TasksIsSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, &recordingStorage{})
	task, _ := repo.Add(ctx, "a")
	repo.Toggle(ctx, task.ID)

	snap := repo.Tasks(ctx)
	snap[0].Text = "mutated"
	*snap[0].UpdatedAt = time.Time{}

	got, _ := repo.Get(ctx, task.ID)
	if got.Text != "a" || got.UpdatedAt.IsZero() {
		t.Fatalf("snapshot mutation leaked into store: %+v", got)
	}
}

func TestTaskRepository_LoadsInitialState(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &recordingStorage{initial: model.Tasks{
		{ID: "x", Text: "existing", CreatedAt: created},
		{ID: "y", Text: "done", Completed: true, CreatedAt: created},
	}}
	repo := newTestRepo(t, st)

	if s := repo.Stats(ctx); s != (model.Stats{Total: 2, Pending: 1, Completed: 1}) {
		t.Fatalf("stats=%+v", s)
	}
	task, _ := repo.Add(ctx, "new")
	ids := []string{}
	for _, tk := range repo.Tasks(ctx) {
		ids = append(ids, tk.ID)
	}
	if len(ids) != 3 || ids[0] != "x" || ids[1] != "y" || ids[2] != task.ID {
		t.Fatalf("order=%v", ids)
	}
}

func TestTaskRepository_SaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	st := &recordingStorage{err: errors.New("disk full")}
	repo := newTestRepo(t, st)

	if _, ok := repo.Add(ctx, "still here"); !ok {
		t.Fatal("add should apply even when the save fails")
	}
	if repo.Count() != 1 {
		t.Fatalf("count=%d want 1", repo.Count())
	}
}

func TestTaskRepository_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	slot, err := storage.NewFileSlot(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st := storage.NewTaskStorage(slot, storage.DefaultKey, logger)

	first := NewTaskRepository(ctx, st, logger)
	a, _ := first.Add(ctx, "Buy milk")
	b, _ := first.Add(ctx, "Walk the dog")
	first.Toggle(ctx, b.ID)
	first.Edit(ctx, a.ID, "Buy oat milk")

	second := NewTaskRepository(ctx, st, logger)
	before, after := first.Tasks(ctx), second.Tasks(ctx)
	if len(after) != len(before) {
		t.Fatalf("len=%d want %d", len(after), len(before))
	}
	for i := range before {
		w, g := before[i], after[i]
		if g.ID != w.ID || g.Text != w.Text || g.Completed != w.Completed || !g.CreatedAt.Equal(w.CreatedAt) {
			t.Fatalf("task %d: got %+v want %+v", i, g, w)
		}
		if (g.UpdatedAt == nil) != (w.UpdatedAt == nil) || (g.UpdatedAt != nil && !g.UpdatedAt.Equal(*w.UpdatedAt)) {
			t.Fatalf("task %d updatedAt: got %v want %v", i, g.UpdatedAt, w.UpdatedAt)
		}
	}
	if a.ID == b.ID {
		t.Fatal("generated ids collided")
	}
}
