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

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Fingerprint computes a 64-bit BLAKE2b digest of data.
// Snapshots and stored blobs carry it so corruption is detected on load.
func Fingerprint(data []byte) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// NodeID addresses a node inside the arena of the tree that owns it.
type NodeID int

// NoParent marks the root node and nodes detached from a tree.
const NoParent NodeID = -1

// NodeKind distinguishes organizational groupings from provisions.
// It carries no structural meaning.
type NodeKind int

const (
	// KindCorpus is the sentinel root named for the corpus.
	KindCorpus NodeKind = iota
	// KindTitle is a top-level grouping such as a consolidated law.
	KindTitle
	// KindArticle is an intermediate grouping.
	KindArticle
	// KindSection is a provision added from a source document.
	KindSection
)

func (k NodeKind) String() string {
	switch k {
	case KindCorpus:
		return "corpus"
	case KindTitle:
		return "title"
	case KindArticle:
		return "article"
	case KindSection:
		return "section"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k NodeKind) Valid() bool {
	return k >= KindCorpus && k <= KindSection
}

// Node is one provision of law or an organizational grouping.
//
// Parent is a navigation aid only; the parent owns its children, never the
// reverse. Identifier and Text do not change after creation.
type Node struct {
	ID         NodeID
	Identifier string
	Text       string
	Kind       NodeKind
	Parent     NodeID
	Children   []NodeID
	Embedding  []float32 // Populated by the index builder, see SetEmbedding
}

// SetEmbedding assigns the node's embedding. It may only be called once.
func (n *Node) SetEmbedding(vector []float32) error {
	if n.Embedding != nil {
		return fmt.Errorf("%w: %q", ErrEmbeddingAlreadySet, n.Identifier)
	}
	n.Embedding = vector
	return nil
}

// HasEmbedding reports whether the builder has already embedded the node.
func (n *Node) HasEmbedding() bool {
	return n.Embedding != nil
}

// SearchResult is a ranked query hit.
type SearchResult struct {
	Node     *Node
	Position int // Offset of Node in the flattened sequence the index was built from
	Score    float32
}

// BuildSummary reports the outcome of an index build.
type BuildSummary struct {
	Nodes     int
	Embedded  int // Nodes embedded by the model during this build
	Reused    int // Nodes whose existing embedding was reused
	Empty     int // Nodes with empty text, given the zero sentinel vector
	Skipped   int // Nodes whose embedding failed and were given the zero sentinel vector
	Dimension int
	Elapsed   time.Duration
}

// IngestSummary reports the outcome of adding source documents to a tree.
type IngestSummary struct {
	Requested int
	Added     int
	Absent    int // Identifiers the source had no document for
	Failed    int // Fetches that errored and were skipped
	Invalid   int // Malformed or duplicate identifiers skipped under the skip policy
	Elapsed   time.Duration
}
