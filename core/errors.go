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


package core

import "errors"

// Tree construction errors
var (
	// ErrMalformedIdentifier indicates an identifier could not be decomposed into a path.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrDuplicateIdentifier indicates a document was already added under an identifier.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// Build and persistence errors
var (
	// ErrEmbeddingFailure indicates the embedding model failed for a node's text.
	ErrEmbeddingFailure = errors.New("embedding failed")

	// ErrEmbeddingAlreadySet indicates a second attempt to assign a node's embedding.
	ErrEmbeddingAlreadySet = errors.New("embedding already set")

	// ErrCorruptData indicates persisted data failed an integrity or alignment check.
	ErrCorruptData = errors.New("corrupt data")

	// ErrNotFound indicates the requested blob does not exist.
	ErrNotFound = errors.New("not found")
)

// Query errors
var (
	// ErrIndexNotReady indicates a query against an index whose search graph is absent.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrDimensionMismatch indicates vectors of different sizes were mixed.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmptyIndex indicates a query against an index holding zero nodes.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrInvalidTopK indicates a result count below one.
	ErrInvalidTopK = errors.New("top_k must be at least 1")
)
