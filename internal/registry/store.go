package registry

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by a Store when a key has no value.
	ErrNotFound = errors.New("registry: key not found")

	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("registry: key already exists")
)

// Store is the blob storage behind a Registry. Keys are slash separated
// paths such as "bundles/<version>".
type Store interface {
	// Create stores data under key. First write wins: an existing key
	// yields ErrExists and keeps its value.
	Create(ctx context.Context, key string, data []byte) error

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every key starting with prefix, in any order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources
	Close() error
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return false
	}
	return true
}
