package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/go-otel-todo/internal/export"
	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
	"github.com/hiroki-koketsu/go-otel-todo/internal/repository"
	"github.com/hiroki-koketsu/go-otel-todo/internal/tasks"
	"github.com/hiroki-koketsu/go-otel-todo/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/go-otel-todo/internal/handler")

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	repo    *repository.TaskRepository
	logger  *slog.Logger
	metrics *telemetry.Metrics
	render  func(io.Writer, export.Format, model.Tasks, model.Stats) error
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(repo *repository.TaskRepository, logger *slog.Logger, metrics *telemetry.Metrics) *TaskHandler {
	return &TaskHandler{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		render:  export.Write,
	}
}

// ListResponse is the body of GET /tasks: the canonical collection plus the
// pending and completed views and their counts.
type ListResponse struct {
	Tasks     model.Tasks `json:"tasks"`
	Pending   model.Tasks `json:"pending"`
	Completed model.Tasks `json:"completed"`
	Stats     model.Stats `json:"stats"`
}

// Routes returns the chi router with task routes.
func (h *TaskHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.Stats)
	r.Get("/export", h.Export)
	r.Delete("/completed", h.ClearCompleted)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/toggle", h.Toggle)
	r.Delete("/{id}", h.Delete)

	return r
}

// List returns all tasks split into pending and completed views.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.List")
	defer span.End()

	snapshot := h.repo.Tasks(ctx)
	resp := ListResponse{
		Tasks:     snapshot,
		Pending:   snapshot.Pending(),
		Completed: snapshot.Completed(),
		Stats:     tasks.Stats(snapshot),
	}

	span.SetAttributes(attribute.Int("task.count", len(snapshot)))
	h.logger.DebugContext(ctx, "tasks listed", slog.Int("count", len(snapshot)))

	h.respondJSON(w, http.StatusOK, resp)
	h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks", http.StatusOK, start)
}

// Create adds a new task.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Create")
	defer span.End()

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks", http.StatusBadRequest, start)
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks", http.StatusBadRequest, start)
		return
	}

	task, ok := h.repo.Add(ctx, req.Text)
	if !ok {
		h.logger.ErrorContext(ctx, "failed to create task")
		h.respondError(w, http.StatusInternalServerError, "failed to create task")
		h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks", http.StatusInternalServerError, start)
		return
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	h.logger.InfoContext(ctx, "task created", slog.String("id", task.ID))

	h.respondJSON(w, http.StatusCreated, task)
	h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks", http.StatusCreated, start)
}

// GetByID returns a task by ID.
func (h *TaskHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
			h.respondError(w, http.StatusNotFound, err.Error())
			h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/{id}", http.StatusNotFound, start)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get task", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/{id}", http.StatusInternalServerError, start)
		return
	}

	h.respondJSON(w, http.StatusOK, task)
	h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/{id}", http.StatusOK, start)
}

// Update replaces the text of an existing task.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var req model.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		h.metrics.RecordRequest(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusBadRequest, start)
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.WarnContext(ctx, "validation failed", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.metrics.RecordRequest(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusBadRequest, start)
		return
	}

	// With valid text the only reason for a no-op is an unknown id.
	task, ok := h.repo.Edit(ctx, id, req.Text)
	if !ok {
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.metrics.RecordRequest(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusNotFound, start)
		return
	}

	h.logger.InfoContext(ctx, "task updated", slog.String("id", id))

	h.respondJSON(w, http.StatusOK, task)
	h.metrics.RecordRequest(ctx, "PUT", "/api/v1/tasks/{id}", http.StatusOK, start)
}

// Toggle flips the completion flag of a task.
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Toggle",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, ok := h.repo.Toggle(ctx, id)
	if !ok {
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks/{id}/toggle", http.StatusNotFound, start)
		return
	}

	h.logger.InfoContext(ctx, "task toggled",
		slog.String("id", id),
		slog.Bool("completed", task.Completed),
	)

	h.respondJSON(w, http.StatusOK, task)
	h.metrics.RecordRequest(ctx, "POST", "/api/v1/tasks/{id}/toggle", http.StatusOK, start)
}

// Delete removes a task.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	id := chi.URLParam(r, "id")

	ctx, span := tracer.Start(ctx, "TaskHandler.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	if !h.repo.Delete(ctx, id) {
		h.logger.WarnContext(ctx, "task not found", slog.String("id", id))
		h.respondError(w, http.StatusNotFound, model.ErrTaskNotFound.Error())
		h.metrics.RecordRequest(ctx, "DELETE", "/api/v1/tasks/{id}", http.StatusNotFound, start)
		return
	}

	h.logger.InfoContext(ctx, "task deleted", slog.String("id", id))

	w.WriteHeader(http.StatusNoContent)
	h.metrics.RecordRequest(ctx, "DELETE", "/api/v1/tasks/{id}", http.StatusNoContent, start)
}

// ClearCompleted removes every completed task.
func (h *TaskHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.ClearCompleted")
	defer span.End()

	removed := h.repo.ClearCompleted(ctx)
	span.SetAttributes(attribute.Int("task.removed", removed))
	h.logger.InfoContext(ctx, "completed tasks cleared", slog.Int("removed", removed))

	h.respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
	h.metrics.RecordRequest(ctx, "DELETE", "/api/v1/tasks/completed", http.StatusOK, start)
}

// Stats returns the task counts.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Stats")
	defer span.End()

	h.respondJSON(w, http.StatusOK, h.repo.Stats(ctx))
	h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/stats", http.StatusOK, start)
}

// Export renders the collection as json, csv or pdf, chosen by ?format=.
func (h *TaskHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "TaskHandler.Export")
	defer span.End()

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid export format", slog.Any("error", err))
		h.respondError(w, http.StatusBadRequest, err.Error())
		h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/export", http.StatusBadRequest, start)
		return
	}
	span.SetAttributes(attribute.String("export.format", string(format)))

	// Render fully before committing a status.
	snapshot := h.repo.Tasks(ctx)
	var buf bytes.Buffer
	if err := h.render(&buf, format, snapshot, tasks.Stats(snapshot)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		h.logger.ErrorContext(ctx, "failed to export tasks",
			slog.String("format", string(format)),
			slog.Any("error", err),
		)
		h.respondError(w, http.StatusInternalServerError, "failed to export tasks")
		h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/export", http.StatusInternalServerError, start)
		return
	}
	span.SetAttributes(attribute.Int("export.bytes", buf.Len()))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(ctx, "failed to write export response", slog.Any("error", err))
	}
	h.metrics.RecordRequest(ctx, "GET", "/api/v1/tasks/export", http.StatusOK, start)
}

// Health returns a health check response.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
