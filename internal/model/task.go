package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLength is the maximum number of characters a task text may hold.
const MaxTextLength = 500

// Task represents a todo item in the system.
type Task struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts both string ids and the numeric ids written by
// older clients, normalizing the latter to their decimal form.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		t.ID = ""
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &t.ID); err != nil {
			return fmt.Errorf("task id: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("task id: %w", err)
		}
		t.ID = n.String()
	}
	return nil
}

// Validate reports whether the task satisfies the stored-task invariants.
// Length and trimming are input rules enforced by NormalizeText; records
// written by older clients may break them and still load.
func (t Task) Validate() error {
	if t.ID == "" {
		return TaskError{Message: "task id is required"}
	}
	if strings.TrimSpace(t.Text) == "" {
		return ErrTextRequired
	}
	if t.CreatedAt.IsZero() {
		return TaskError{Message: "task createdAt is required"}
	}
	if t.UpdatedAt != nil && t.UpdatedAt.Before(t.CreatedAt) {
		return TaskError{Message: "task updatedAt precedes createdAt"}
	}
	return nil
}

// Tasks is an insertion-ordered collection of tasks.
type Tasks []Task

// Clone returns a copy of t that shares no memory with it.
func (t Task) Clone() Task {
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		t.UpdatedAt = &u
	}
	return t
}

// Clone returns a copy that shares no memory with ts.
func (ts Tasks) Clone() Tasks {
	out := make(Tasks, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// Index returns the position of the task with the given id, or -1.
func (ts Tasks) Index(id string) int {
	for i := range ts {
		if ts[i].ID == id {
			return i
		}
	}
	return -1
}

// Pending returns the tasks that are not completed, in canonical order.
func (ts Tasks) Pending() Tasks {
	return ts.filter(false)
}

// Completed returns the completed tasks, in canonical order.
func (ts Tasks) Completed() Tasks {
	return ts.filter(true)
}

func (ts Tasks) filter(completed bool) Tasks {
	out := make(Tasks, 0, len(ts))
	for _, t := range ts {
		if t.Completed == completed {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks every task and the uniqueness of ids.
func (ts Tasks) Validate() error {
	seen := make(map[string]struct{}, len(ts))
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("task %d: duplicate id %q", i, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// Stats holds counts derived from a task collection.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	Text string `json:"text"`
}

// Validate checks if the CreateTaskRequest is valid.
func (r *CreateTaskRequest) Validate() error {
	_, err := NormalizeText(r.Text)
	return err
}

// UpdateTaskRequest represents the request body for editing a task.
type UpdateTaskRequest struct {
	Text string `json:"text"`
}

// Validate checks if the UpdateTaskRequest is valid.
func (r *UpdateTaskRequest) Validate() error {
	_, err := NormalizeText(r.Text)
	return err
}

// NormalizeText trims text and checks it against the length limits.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrTextRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return trimmed, nil
}

// TaskError represents a domain error for tasks.
type TaskError struct {
	Message string
}

func (e TaskError) Error() string {
	return e.Message
}

var (
	ErrTaskNotFound = TaskError{Message: "task not found"}
	ErrTextRequired = TaskError{Message: "text is required"}
	ErrTextTooLong  = TaskError{Message: fmt.Sprintf("text must be at most %d characters", MaxTextLength)}
)
