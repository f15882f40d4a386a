// Package store provides the opaque key-value map the persistence layer is
// built on: JSON values addressed by string keys with prefix scans.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store is an asynchronous map from string key to JSON-serializable value.
type Store interface {
	// Get unmarshals the value at key into out; ErrNotFound if absent.
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// Scan returns all keys with the given prefix, sorted lexicographically.
	Scan(ctx context.Context, prefix string) ([]string, error)
}
