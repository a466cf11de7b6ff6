// Package store persists game state as string values under fixed logical
// keys. Implementations include PostgreSQL, MongoDB and Redis (each usable
// as the source of truth), a Redis read-through cache over a primary, and
// in-memory (for testing).
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by KV.Get for an absent key.
	ErrNotFound = errors.New("store: key not found")

	// ErrPersistenceRead marks a stored value that could not be read or
	// decoded. Callers substitute the key's default.
	ErrPersistenceRead = errors.New("store: persistence read failed")
)

// KV is a flat string key/value store.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
}

// BatchSetter is implemented by backends that can write several keys at once.
// StateStore prefers it so a save lands as a unit.
type BatchSetter interface {
	SetAll(ctx context.Context, values map[string]string) error
}

func setAll(ctx context.Context, kv KV, values map[string]string) error {
	if b, ok := kv.(BatchSetter); ok {
		return b.SetAll(ctx, values)
	}
	var errs []error
	for k, v := range values {
		if err := kv.Set(ctx, k, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
