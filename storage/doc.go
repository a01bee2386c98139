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


// Package storage defines the durable blob store abstraction and the
// snapshot formats persisted through it.
//
// Two snapshots are stored under distinct keys: the document tree, and the
// index snapshot holding node metadata with the parallel vector sequence.
// The HNSW graph is never stored; it is rebuilt from the vectors on load.
//
// # Implementations
//
// The badger subpackage provides the durable implementation. Implementations
// assert the interface at compile time:
//
//	var _ storage.BlobStore = (*BlobStore)(nil)
//
// # Snapshot framing
//
// Every snapshot is framed as
//
//	magic (4 bytes) | version (varint) | payload | checksum (8 bytes)
//
// where the checksum is core.Fingerprint over everything before it. Fields
// are encoded with mus-go. A snapshot that fails validation loads as
// core.ErrCorruptData.
//
// # Usage
//
//	backend, err := badger.OpenBackend(dir, false)
//	store, err := badger.NewBlobStore(backend)
//	err = storage.SaveIndex(ctx, store, "index/laws", snapshot)
//	snapshot, err := storage.LoadIndex(ctx, store, "index/laws")
package storage
