package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/lexsearch/tree"
)

// SaveTree writes the snapshot of t under key.
func SaveTree(ctx context.Context, store BlobStore, key string, t *tree.Tree) error {
	if err := store.Write(ctx, key, MarshalTreeSnapshot(NewTreeSnapshot(t))); err != nil {
		return fmt.Errorf("saving tree %q: %w", key, err)
	}
	return nil
}

// LoadTree reads the tree stored under key.
// Returns ErrNotFound if the key is missing and ErrCorruptData if the stored
// snapshot cannot be decoded into a valid tree.
func LoadTree(ctx context.Context, store BlobStore, key string) (*tree.Tree, error) {
	data, err := store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading tree %q: %w", key, err)
	}
	snapshot, err := UnmarshalTreeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("loading tree %q: %w", key, err)
	}
	t, err := snapshot.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree %q: %w", key, err)
	}
	return t, nil
}

// SaveIndex writes snapshot under key after checking the alignment
// invariant.
func SaveIndex(ctx context.Context, store BlobStore, key string, snapshot *IndexSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("saving index %q: %w", key, err)
	}
	if err := store.Write(ctx, key, MarshalIndexSnapshot(snapshot)); err != nil {
		return fmt.Errorf("saving index %q: %w", key, err)
	}
	return nil
}

// LoadIndex reads the index snapshot stored under key.
// Returns ErrNotFound if the key is missing and ErrCorruptData if the
// snapshot is damaged or its nodes and vectors are misaligned.
func LoadIndex(ctx context.Context, store BlobStore, key string) (*IndexSnapshot, error) {
	data, err := store.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading index %q: %w", key, err)
	}
	snapshot, err := UnmarshalIndexSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("loading index %q: %w", key, err)
	}
	return snapshot, nil
}
