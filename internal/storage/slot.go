// Package storage persists the task collection as a single serialized value
// in a key-value slot.
package storage

import (
	"context"
	"errors"
)

// ErrSlotEmpty is returned by Slot.Get when nothing has been stored under a key.
var ErrSlotEmpty = errors.New("storage: slot is empty")

// Slot is a persistent key-value backend holding opaque values.
type Slot interface {
	// Get returns the value stored under key, or ErrSlotEmpty.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}
