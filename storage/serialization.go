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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lexsearch/ann"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/tree"
)

const (
	treeMagic    = "LXTR"
	treeVersion  = 1
	indexMagic   = "LXIX"
	indexVersion = 1
)

// BlobHeader describes a blob stored as a sequence of chunks.
type BlobHeader struct {
	Size       uint64
	Chunks     uint64
	Generation uint64
	Checksum   uint64 // core.Fingerprint of the reassembled data
}

// MarshalBlobHeader serializes a BlobHeader to bytes.
func MarshalBlobHeader(h BlobHeader) []byte {
	size := varint.Uint64.Size(h.Size) +
		varint.Uint64.Size(h.Chunks) +
		varint.Uint64.Size(h.Generation) +
		varint.Uint64.Size(h.Checksum)
	e := newEncoder(size)
	e.uint64(h.Size)
	e.uint64(h.Chunks)
	e.uint64(h.Generation)
	e.uint64(h.Checksum)
	return e.bs
}

// UnmarshalBlobHeader deserializes a BlobHeader from bytes.
func UnmarshalBlobHeader(data []byte) (BlobHeader, error) {
	d := newDecoder(data)
	h := BlobHeader{
		Size:       d.uint64(),
		Chunks:     d.uint64(),
		Generation: d.uint64(),
		Checksum:   d.uint64(),
	}
	return h, d.err
}

// TreeSnapshot is the durable form of a document tree.
type TreeSnapshot struct {
	Prefix  string
	Records []tree.Record
}

// NewTreeSnapshot captures t.
func NewTreeSnapshot(t *tree.Tree) TreeSnapshot {
	return TreeSnapshot{Prefix: t.IdentifierPrefix(), Records: t.Records()}
}

// Tree rebuilds the document tree.
func (s TreeSnapshot) Tree() (*tree.Tree, error) {
	return tree.FromRecords(s.Records, tree.WithIdentifierPrefix(s.Prefix))
}

// MarshalTreeSnapshot serializes a TreeSnapshot to bytes.
func MarshalTreeSnapshot(s TreeSnapshot) []byte {
	size := ord.String.Size(s.Prefix) + varint.Uint64.Size(uint64(len(s.Records)))
	for _, r := range s.Records {
		size += ord.String.Size(r.Identifier) +
			ord.String.Size(r.Text) +
			varint.Uint64.Size(uint64(r.Kind)) +
			varint.Int64.Size(int64(r.Parent)) +
			ord.Bool.Size(r.HasDocument)
	}
	return frame(treeMagic, treeVersion, size, func(e *encoder) {
		e.string(s.Prefix)
		e.uint64(uint64(len(s.Records)))
		for _, r := range s.Records {
			e.string(r.Identifier)
			e.string(r.Text)
			e.uint64(uint64(r.Kind))
			e.int64(int64(r.Parent))
			e.bool(r.HasDocument)
		}
	})
}

// UnmarshalTreeSnapshot deserializes a TreeSnapshot from bytes.
// Structural validation of the records happens in TreeSnapshot.Tree.
func UnmarshalTreeSnapshot(data []byte) (TreeSnapshot, error) {
	d, err := unframe(data, treeMagic, treeVersion)
	if err != nil {
		return TreeSnapshot{}, err
	}

	var s TreeSnapshot
	s.Prefix = d.string()
	n := d.count(5)
	if n > 0 {
		s.Records = make([]tree.Record, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		s.Records[i] = tree.Record{
			Identifier:  d.string(),
			Text:        d.string(),
			Kind:        core.NodeKind(d.uint64()),
			Parent:      core.NodeID(d.int64()),
			HasDocument: d.bool(),
		}
	}
	if d.err == nil && d.remaining() != 0 {
		d.fail(fmt.Errorf("%d trailing bytes", d.remaining()))
	}
	if d.err != nil {
		return TreeSnapshot{}, fmt.Errorf("%w: tree snapshot: %w", ErrCorruptData, d.err)
	}
	return s, nil
}

// NodeRecord is the durable form of one indexed node.
type NodeRecord struct {
	Identifier string
	Text       string
	Kind       core.NodeKind
}

// IndexSnapshot is the durable form of a built index. The graph is rebuilt
// from Vectors with Graph on load.
type IndexSnapshot struct {
	Corpus    string
	Model     string
	Dimension int
	Graph     ann.Config
	BuiltAt   time.Time
	Nodes     []NodeRecord
	Vectors   [][]float32 // Vectors[i] belongs to Nodes[i]
}

// NodeRecords captures the durable fields of nodes in order.
func NodeRecords(nodes []*core.Node) []NodeRecord {
	records := make([]NodeRecord, len(nodes))
	for i, node := range nodes {
		records[i] = NodeRecord{Identifier: node.Identifier, Text: node.Text, Kind: node.Kind}
	}
	return records
}

// DetachedNodes materializes the snapshot's nodes. Each node's ID is its
// position, it has no parent, and its embedding is the stored vector.
func (s *IndexSnapshot) DetachedNodes() []*core.Node {
	nodes := make([]*core.Node, len(s.Nodes))
	for i, rec := range s.Nodes {
		nodes[i] = &core.Node{
			ID:         core.NodeID(i),
			Identifier: rec.Identifier,
			Text:       rec.Text,
			Kind:       rec.Kind,
			Parent:     core.NoParent,
			Embedding:  s.Vectors[i],
		}
	}
	return nodes
}

// Validate checks the alignment invariant and vector dimensions.
func (s *IndexSnapshot) Validate() error {
	if len(s.Nodes) != len(s.Vectors) {
		return fmt.Errorf("%w: %d nodes but %d vectors", ErrCorruptData, len(s.Nodes), len(s.Vectors))
	}
	for i, v := range s.Vectors {
		if len(v) != s.Dimension {
			return fmt.Errorf("%w: vector %d (%q) has %d dimensions, expected %d",
				ErrCorruptData, i, s.Nodes[i].Identifier, len(v), s.Dimension)
		}
	}
	return nil
}

// MarshalIndexSnapshot serializes an IndexSnapshot to bytes.
// It encodes the snapshot as given; SaveIndex validates first.
func MarshalIndexSnapshot(s *IndexSnapshot) []byte {
	builtAt := s.BuiltAt.UnixMicro()
	size := ord.String.Size(s.Corpus) +
		ord.String.Size(s.Model) +
		varint.Uint64.Size(uint64(s.Dimension)) +
		varint.Uint64.Size(uint64(s.Graph.M)) +
		varint.Uint64.Size(uint64(s.Graph.EfConstruction)) +
		varint.Uint64.Size(uint64(s.Graph.EfSearch)) +
		varint.Uint64.Size(s.Graph.Seed) +
		varint.Int64.Size(builtAt) +
		varint.Uint64.Size(uint64(len(s.Nodes))) +
		varint.Uint64.Size(uint64(len(s.Vectors)))
	for _, n := range s.Nodes {
		size += ord.String.Size(n.Identifier) + ord.String.Size(n.Text) + varint.Uint64.Size(uint64(n.Kind))
	}
	for _, v := range s.Vectors {
		size += varint.Uint64.Size(uint64(len(v))) + len(v)*float32Size
	}

	return frame(indexMagic, indexVersion, size, func(e *encoder) {
		e.string(s.Corpus)
		e.string(s.Model)
		e.uint64(uint64(s.Dimension))
		e.uint64(uint64(s.Graph.M))
		e.uint64(uint64(s.Graph.EfConstruction))
		e.uint64(uint64(s.Graph.EfSearch))
		e.uint64(s.Graph.Seed)
		e.int64(builtAt)
		e.uint64(uint64(len(s.Nodes)))
		for _, n := range s.Nodes {
			e.string(n.Identifier)
			e.string(n.Text)
			e.uint64(uint64(n.Kind))
		}
		e.uint64(uint64(len(s.Vectors)))
		for _, v := range s.Vectors {
			e.uint64(uint64(len(v)))
			for _, f := range v {
				e.float32(f)
			}
		}
	})
}

// UnmarshalIndexSnapshot deserializes and validates an IndexSnapshot.
// A node/vector count mismatch or a vector of the wrong dimension fails
// with ErrCorruptData.
func UnmarshalIndexSnapshot(data []byte) (*IndexSnapshot, error) {
	d, err := unframe(data, indexMagic, indexVersion)
	if err != nil {
		return nil, err
	}

	s := &IndexSnapshot{
		Corpus:    d.string(),
		Model:     d.string(),
		Dimension: int(d.uint64()),
		Graph: ann.Config{
			M:              int(d.uint64()),
			EfConstruction: int(d.uint64()),
			EfSearch:       int(d.uint64()),
			Seed:           d.uint64(),
		},
	}
	s.BuiltAt = time.UnixMicro(d.int64()).UTC()

	nodes := d.count(3)
	s.Nodes = make([]NodeRecord, nodes)
	for i := 0; i < nodes && d.err == nil; i++ {
		s.Nodes[i] = NodeRecord{
			Identifier: d.string(),
			Text:       d.string(),
			Kind:       core.NodeKind(d.uint64()),
		}
	}

	vectors := d.count(1)
	s.Vectors = make([][]float32, vectors)
	for i := 0; i < vectors && d.err == nil; i++ {
		dim := d.count(float32Size)
		v := make([]float32, dim)
		for j := range v {
			v[j] = d.float32()
		}
		s.Vectors[i] = v
	}

	if d.err == nil && d.remaining() != 0 {
		d.fail(fmt.Errorf("%d trailing bytes", d.remaining()))
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: index snapshot: %w", ErrCorruptData, d.err)
	}
	if err := s.Graph.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
