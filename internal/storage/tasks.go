package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKey is the slot key the task collection is stored under.
const DefaultKey = "todoTasks"

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-otel-todo/internal/storage")

// TaskStorage serializes the whole task collection into one slot.
type TaskStorage struct {
	slot   Slot
	key    string
	logger *slog.Logger
}

// NewTaskStorage creates a TaskStorage writing to key in slot.
func NewTaskStorage(slot Slot, key string, logger *slog.Logger) *TaskStorage {
	if key == "" {
		key = DefaultKey
	}
	return &TaskStorage{
		slot:   slot,
		key:    key,
		logger: logger,
	}
}

// Load reads the persisted collection. A missing, unreadable or malformed
// value yields an empty collection; the cause is logged, never returned.
func (s *TaskStorage) Load(ctx context.Context) model.Tasks {
	ctx, span := tracer.Start(ctx, "TaskStorage.Load",
		trace.WithAttributes(attribute.String("storage.key", s.key)),
	)
	defer span.End()

	data, err := s.slot.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrSlotEmpty) {
			span.SetAttributes(attribute.Bool("storage.found", false))
			return model.Tasks{}
		}
		s.discard(ctx, span, "failed to read persisted tasks", err)
		return model.Tasks{}
	}
	span.SetAttributes(attribute.Bool("storage.found", true))

	tasks, err := decode(data)
	if err != nil {
		s.discard(ctx, span, "discarding malformed persisted tasks", err)
		return model.Tasks{}
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks
}

// Save replaces the persisted value with the full collection.
func (s *TaskStorage) Save(ctx context.Context, tasks model.Tasks) error {
	ctx, span := tracer.Start(ctx, "TaskStorage.Save",
		trace.WithAttributes(
			attribute.String("storage.key", s.key),
			attribute.Int("task.count", len(tasks)),
		),
	)
	defer span.End()

	if tasks == nil {
		tasks = model.Tasks{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	if err := s.slot.Put(ctx, s.key, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("failed to write tasks: %w", err)
	}
	return nil
}

func (s *TaskStorage) discard(ctx context.Context, span trace.Span, msg string, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("storage.discarded", true))
	s.logger.WarnContext(ctx, msg,
		slog.String("key", s.key),
		slog.Any("error", err),
	)
}

func decode(data []byte) (model.Tasks, error) {
	var tasks model.Tasks
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tasks: %w", err)
	}
	if tasks == nil {
		// A literal null is treated like an empty slot.
		return model.Tasks{}, nil
	}
	if err := tasks.Validate(); err != nil {
		return nil, err
	}
	return tasks, nil
}
