package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"github.com/hiroki-koketsu/go-otel-todo/internal/tasks"
	"github.com/hiroki-koketsu/go-otel-todo/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-otel-todo/internal/repository")

// Storage loads and saves the whole task collection.
type Storage interface {
	Load(ctx context.Context) model.Tasks
	Save(ctx context.Context, tasks model.Tasks) error
}

// Option configures a TaskRepository.
type Option func(*TaskRepository)

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *TaskRepository) { r.now = now }
}

// WithIDGenerator overrides how new task ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(r *TaskRepository) { r.newID = newID }
}

// WithMetrics records every store operation on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *TaskRepository) { r.metrics = m }
}

// TaskRepository owns the in-memory task collection. Every applied mutation
// replaces the collection and writes it through to storage.
type TaskRepository struct {
	mu      sync.RWMutex
	tasks   model.Tasks
	storage Storage
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	newID   func() string
}

// NewTaskRepository creates a TaskRepository seeded from storage.
func NewTaskRepository(ctx context.Context, storage Storage, logger *slog.Logger, opts ...Option) *TaskRepository {
	r := &TaskRepository{
		storage: storage,
		logger:  logger,
		now:     defaultNow,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.tasks = storage.Load(ctx)
	if r.tasks == nil {
		r.tasks = model.Tasks{}
	}
	logger.InfoContext(ctx, "tasks loaded", slog.Int("count", len(r.tasks)))
	return r
}

// Millisecond precision keeps timestamps identical across a save/load cycle.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Add appends a new task. It reports false when text is blank or too long.
func (r *TaskRepository) Add(ctx context.Context, text string) (model.Task, bool) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Add",
		trace.WithAttributes(attribute.Int("task.text_length", len(text))),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	next, ok := tasks.Add(r.tasks, id, text, r.now())
	r.commit(ctx, span, "add", next, ok)
	if !ok {
		return model.Task{}, false
	}

	span.SetAttributes(attribute.String("task.id", id))
	return next[len(next)-1].Clone(), true
}

// Get retrieves a task by its ID.
func (r *TaskRepository) Get(ctx context.Context, id string) (model.Task, error) {
	_, span := tracer.Start(ctx, "TaskRepository.Get",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.tasks.Index(id)
	if i < 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.Task{}, model.ErrTaskNotFound
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return r.tasks[i].Clone(), nil
}

// Tasks returns a snapshot of the collection in canonical order.
func (r *TaskRepository) Tasks(ctx context.Context) model.Tasks {
	_, span := tracer.Start(ctx, "TaskRepository.Tasks")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	span.SetAttributes(attribute.Int("task.count", len(r.tasks)))
	return r.tasks.Clone()
}

// Edit replaces the text of a task. It reports false when the id is unknown
// or the text is blank or too long.
func (r *TaskRepository) Edit(ctx context.Context, id, text string) (model.Task, bool) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Edit",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := tasks.Edit(r.tasks, id, text, r.now())
	r.commit(ctx, span, "edit", next, ok)
	if !ok {
		return model.Task{}, false
	}
	return next[next.Index(id)].Clone(), true
}

// Toggle flips the completion flag of a task.
func (r *TaskRepository) Toggle(ctx context.Context, id string) (model.Task, bool) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Toggle",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := tasks.Toggle(r.tasks, id, r.now())
	r.commit(ctx, span, "toggle", next, ok)
	if !ok {
		return model.Task{}, false
	}

	task := next[next.Index(id)].Clone()
	span.SetAttributes(attribute.Bool("task.completed", task.Completed))
	return task, true
}

// Delete removes a task. Deleting an unknown id is a no-op.
func (r *TaskRepository) Delete(ctx context.Context, id string) bool {
	ctx, span := tracer.Start(ctx, "TaskRepository.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	next, ok := tasks.Delete(r.tasks, id)
	r.commit(ctx, span, "delete", next, ok)
	return ok
}

// ClearCompleted removes every completed task and returns how many were removed.
func (r *TaskRepository) ClearCompleted(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "TaskRepository.ClearCompleted")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	next, removed := tasks.ClearCompleted(r.tasks)
	span.SetAttributes(attribute.Int("task.removed", removed))
	r.commit(ctx, span, "clear_completed", next, removed > 0)
	return removed
}

// Stats returns counts derived from the current collection.
func (r *TaskRepository) Stats(ctx context.Context) model.Stats {
	_, span := tracer.Start(ctx, "TaskRepository.Stats")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()
	s := tasks.Stats(r.tasks)
	span.SetAttributes(
		attribute.Int("task.total", s.Total),
		attribute.Int("task.pending", s.Pending),
		attribute.Int("task.completed", s.Completed),
	)
	return s
}

// Count returns the current number of tasks.
func (r *TaskRepository) Count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tasks))
}

// commit swaps in next and persists it. Callers must hold r.mu.
// A failed save is logged; the in-memory state stays authoritative.
func (r *TaskRepository) commit(ctx context.Context, span trace.Span, op string, next model.Tasks, applied bool) {
	span.SetAttributes(attribute.Bool("task.applied", applied))
	r.metrics.RecordMutation(ctx, op, applied)
	if !applied {
		r.logger.DebugContext(ctx, "task operation ignored", slog.String("operation", op))
		return
	}

	r.tasks = next
	if err := r.storage.Save(ctx, next); err != nil {
		span.RecordError(err)
		r.logger.ErrorContext(ctx, "failed to persist tasks",
			slog.String("operation", op),
			slog.Any("error", err),
		)
	}
}
