// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/storage"
)

// DefaultChunkSize is the largest value written under one badger key.
const DefaultChunkSize = 1 << 20

// BlobStore implements storage.BlobStore for BadgerDB.
//
// A blob is stored as a header plus numbered chunks tagged with a
// generation. Write puts the chunks of the next generation first, then swaps
// the header in one transaction, then removes the previous generation's
// chunks. A reader sees either the complete old blob or the complete new one.
type BlobStore struct {
	backend   *Backend
	chunkSize int
	logger    *slog.Logger
	mu        sync.Mutex // serializes writers
}

var _ storage.BlobStore = (*BlobStore)(nil)

// BlobStoreOption configures a BlobStore.
type BlobStoreOption func(*BlobStore) error

// WithChunkSize sets the chunk size in bytes. Default is DefaultChunkSize.
func WithChunkSize(size int) BlobStoreOption {
	return func(s *BlobStore) error {
		if size < 1 {
			return fmt.Errorf("chunk size must be positive, got %d", size)
		}
		s.chunkSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) BlobStoreOption {
	return func(s *BlobStore) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewBlobStore creates a blob store over backend.
// The store does not own the backend; close it separately.
func NewBlobStore(backend *Backend, opts ...BlobStoreOption) (*BlobStore, error) {
	s := &BlobStore{
		backend:   backend,
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "blobstore")
	return s, nil
}

// Close is a no-op; the backend owns the database.
func (s *BlobStore) Close() error {
	return nil
}

func (s *BlobStore) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// readHeader returns the header of key, or storage.ErrNotFound.
func readHeader(tx *badger.Txn, key string) (storage.BlobHeader, error) {
	item, err := tx.Get(makeBlobHeaderKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.BlobHeader{}, fmt.Errorf("%w: %q", storage.ErrNotFound, key)
		}
		return storage.BlobHeader{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return storage.BlobHeader{}, err
	}
	header, err := storage.UnmarshalBlobHeader(val)
	if err != nil {
		return storage.BlobHeader{}, fmt.Errorf("%w: header of %q: %w", storage.ErrCorruptData, key, err)
	}
	return header, nil
}

// Write stores data under key.
func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *storage.BlobHeader
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		header, err := readHeader(tx, key)
		if err == nil {
			previous = &header
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}, false)
	if err != nil && !errors.Is(err, storage.ErrCorruptData) {
		return err
	}

	header := storage.BlobHeader{
		Size:     uint64(len(data)),
		Checksum: core.Fingerprint(data),
	}
	if previous != nil {
		header.Generation = previous.Generation + 1
	}

	wb := s.backend.NewWriteBatch()
	for offset := 0; offset < len(data); offset += s.chunkSize {
		if err := ctx.Err(); err != nil {
			wb.Cancel()
			return err
		}
		end := min(offset+s.chunkSize, len(data))
		if err := wb.Set(makeBlobChunkKey(key, header.Generation, header.Chunks), data[offset:end]); err != nil {
			wb.Cancel()
			return fmt.Errorf("writing chunk %d of %q: %w", header.Chunks, key, err)
		}
		header.Chunks++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing chunks of %q: %w", key, err)
	}

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeBlobHeaderKey(key), storage.MarshalBlobHeader(header)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		s.deleteChunks(key, header)
		return fmt.Errorf("writing header of %q: %w", key, err)
	}

	if previous != nil {
		s.deleteChunks(key, *previous)
	}
	s.logger.Debug("blob written", "key", key, "size", header.Size, "chunks", header.Chunks, "generation", header.Generation)
	return nil
}

// deleteChunks removes the chunks of one generation. Leftover chunks are
// unreachable and only cost space, so failures are logged.
func (s *BlobStore) deleteChunks(key string, header storage.BlobHeader) {
	if header.Chunks == 0 {
		return
	}
	wb := s.backend.NewWriteBatch()
	for i := uint64(0); i < header.Chunks; i++ {
		if err := wb.Delete(makeBlobChunkKey(key, header.Generation, i)); err != nil {
			wb.Cancel()
			s.logger.Warn("failed to delete blob chunks", "key", key, "generation", header.Generation, "error", err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		s.logger.Warn("failed to delete blob chunks", "key", key, "generation", header.Generation, "error", err)
	}
}

// Read returns the data stored under key.
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		header, err := readHeader(tx, key)
		if err != nil {
			return err
		}

		data = make([]byte, 0, header.Size)
		for i := uint64(0); i < header.Chunks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := tx.Get(makeBlobChunkKey(key, header.Generation, i))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %q is missing chunk %d", storage.ErrCorruptData, key, i)
				}
				return err
			}
			err = item.Value(func(val []byte) error {
				data = append(data, val...)
				return nil
			})
			if err != nil {
				return err
			}
		}

		if uint64(len(data)) != header.Size {
			return fmt.Errorf("%w: %q has %d bytes, header says %d", storage.ErrCorruptData, key, len(data), header.Size)
		}
		if core.Fingerprint(data) != header.Checksum {
			return fmt.Errorf("%w: checksum mismatch for %q", storage.ErrCorruptData, key)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether a blob is stored under key.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}

	var exists bool
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeBlobHeaderKey(key))
		if err == nil {
			exists = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}, false)
	return exists, err
}

// Delete removes the blob stored under key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var header storage.BlobHeader
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		header, err = readHeader(tx, key)
		if err != nil && !errors.Is(err, storage.ErrCorruptData) {
			return err
		}
		if err := tx.Delete(makeBlobHeaderKey(key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	s.deleteChunks(key, header)
	return nil
}

// List returns the keys of stored blobs starting with prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var keys []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeBlobHeaderKey(prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, strings.TrimPrefix(string(iter.Item().Key()), blobHeaderPrefix))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return keys, nil
}
