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


// Package ann implements a hierarchical navigable small world (HNSW) graph
// for approximate top-k cosine similarity search.
//
// The graph is derived data. It holds references to the vectors it was built
// from and is never persisted; callers rebuild it from stored vectors with
// Build. Construction is deterministic: node levels come from a PCG generator
// seeded by Config.Seed and nodes are inserted in positional order, so the
// same vectors and Config always produce the same graph and the same answers.
//
// A built Graph is immutable and safe for concurrent Search calls.
package ann
