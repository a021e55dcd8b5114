package kv

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Key-Value Store Contract
// =============================================================================
//
// Store is the narrow contract the queue engine consumes for lane storage,
// status mirrors, and retry records. Each operation is individually atomic;
// nothing here depends on cross-operation transactions. Two callers racing
// to PopHead on the same key always receive distinct values.

var (
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("kv store is closed")
)

// Store provides atomic list and single-key operations on named keys.
type Store interface {
	// PushTail appends a value to the tail of the list at key.
	PushTail(ctx context.Context, key string, value []byte) error

	// PopHead removes and returns the head of the list at key.
	// The second return is false when the list is empty.
	PopHead(ctx context.Context, key string) ([]byte, bool, error)

	// Len returns the number of values in the list at key.
	Len(ctx context.Context, key string) (int, error)

	// Get returns the value at key. The second return is false when the key
	// is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value at key. A positive ttl expires the key after the
	// given duration; zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all live keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the store. Subsequent operations return ErrStoreClosed.
	Close() error
}
