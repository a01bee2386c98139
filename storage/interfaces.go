package storage

import "context"

// BlobStore is a durable key to bytes store.
// Implementations must be thread-safe and support concurrent access.
type BlobStore interface {
	// Write stores data under key, replacing any previous value atomically:
	// a concurrent or later Read observes either the old or the new value.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the data stored under key.
	// Returns ErrNotFound if nothing is stored and ErrCorruptData if the
	// stored value fails its integrity check.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether a value is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the value stored under key.
	// Returns ErrNotFound if nothing is stored.
	Delete(ctx context.Context, key string) error

	// List returns the stored keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
