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


// Package tree holds the hierarchical representation of a legal corpus.
//
// Nodes live in an arena owned by the Tree and are addressed by core.NodeID.
// Children are stored as ID lists and the parent as a single ID, so the
// structure has no reference cycles and a node can never be shared between
// two parents.
//
// # Identifiers
//
// Documents are added by identifier. An identifier is decomposed into a path:
//
//	PEN/155.25   -> ["PEN", "155.25"]
//	A.1.1        -> ["A", "1", "1"]
//
// Identifiers that contain a slash are split on slashes only; all others are
// split on dots. Organizational nodes are created for every path prefix
// ("A", "A.1") and the document itself becomes the node for the full path.
//
// # Ordering
//
// Flatten returns nodes in depth-first pre-order, root excluded, with
// children in the order they were attached. The index builder relies on this
// order to line nodes up with their vectors, so it must never change for a
// given tree.
package tree
