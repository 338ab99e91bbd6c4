// Package tasks holds the pure state transitions of a task collection.
//
// Every function takes the current state plus an input and returns the next
// state together with a flag reporting whether anything changed. The input
// slice is never modified; when nothing changes the original slice is
// returned as is. Invalid input (blank text, unknown id) is a no-op.
package tasks

import (
	"time"

	"github.com/hiroki-koketsu/go-otel-todo/internal/model"
)

// Add appends a new pending task with the given id and text.
func Add(state model.Tasks, id, text string, now time.Time) (model.Tasks, bool) {
	trimmed, err := model.NormalizeText(text)
	if err != nil || id == "" || state.Index(id) >= 0 {
		return state, false
	}

	next := make(model.Tasks, len(state), len(state)+1)
	copy(next, state)
	next = append(next, model.Task{
		ID:        id,
		Text:      trimmed,
		Completed: false,
		CreatedAt: now,
	})
	return next, true
}

// Edit replaces the text of the task with the given id.
func Edit(state model.Tasks, id, text string, now time.Time) (model.Tasks, bool) {
	trimmed, err := model.NormalizeText(text)
	if err != nil {
		return state, false
	}
	i := state.Index(id)
	if i < 0 {
		return state, false
	}

	next := clone(state)
	next[i].Text = trimmed
	next[i].UpdatedAt = stamp(next[i], now)
	return next, true
}

// Delete removes the task with the given id.
func Delete(state model.Tasks, id string) (model.Tasks, bool) {
	i := state.Index(id)
	if i < 0 {
		return state, false
	}

	next := make(model.Tasks, 0, len(state)-1)
	next = append(next, state[:i]...)
	next = append(next, state[i+1:]...)
	return next, true
}

// Toggle flips the completion flag of the task with the given id.
func Toggle(state model.Tasks, id string, now time.Time) (model.Tasks, bool) {
	i := state.Index(id)
	if i < 0 {
		return state, false
	}

	next := clone(state)
	next[i].Completed = !next[i].Completed
	next[i].UpdatedAt = stamp(next[i], now)
	return next, true
}

// ClearCompleted removes every completed task and reports how many were removed.
func ClearCompleted(state model.Tasks) (model.Tasks, int) {
	next := state.Pending()
	removed := len(state) - len(next)
	if removed == 0 {
		return state, 0
	}
	return next, removed
}

// Stats counts the tasks in state.
func Stats(state model.Tasks) model.Stats {
	s := model.Stats{Total: len(state)}
	for _, t := range state {
		if t.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}

func clone(state model.Tasks) model.Tasks {
	next := make(model.Tasks, len(state))
	copy(next, state)
	return next
}

// stamp never lets updatedAt fall behind createdAt, even with a skewed clock.
func stamp(t model.Task, now time.Time) *time.Time {
	if now.Before(t.CreatedAt) {
		now = t.CreatedAt
	}
	return &now
}
