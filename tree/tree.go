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


package tree

import (
	"fmt"

	"github.com/poiesic/lexsearch/core"
)

const rootID core.NodeID = 0

// Tree is a hierarchical container of legal provisions.
// A Tree is not safe for concurrent mutation. Once built it is read-only and
// may be shared freely.
type Tree struct {
	name     string
	prefix   string
	nodes    []*core.Node
	document []bool // document[id] is true once AddDocument supplied the node's text
	byIdent  map[string]core.NodeID
}

// Option configures a Tree.
type Option func(*Tree)

// WithIdentifierPrefix strips prefix from identifiers before they are parsed.
// Use it for identifiers that carry a fixed site path such as "/legislation/laws/".
func WithIdentifierPrefix(prefix string) Option {
	return func(t *Tree) {
		t.prefix = prefix
	}
}

// New creates an empty tree whose root is named for the corpus.
func New(name string, opts ...Option) *Tree {
	t := &Tree{
		name:    name,
		byIdent: make(map[string]core.NodeID),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.nodes = []*core.Node{{
		ID:         rootID,
		Identifier: name,
		Kind:       core.KindCorpus,
		Parent:     core.NoParent,
	}}
	t.document = []bool{false}
	return t
}

// Name returns the corpus name.
func (t *Tree) Name() string {
	return t.name
}

// IdentifierPrefix returns the prefix stripped from identifiers.
func (t *Tree) IdentifierPrefix() string {
	return t.prefix
}

// Root returns the sentinel root node.
func (t *Tree) Root() *core.Node {
	return t.nodes[rootID]
}

// Len returns the number of nodes, root excluded.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Node returns the node with the given ID, or nil if it does not exist.
func (t *Tree) Node(id core.NodeID) *core.Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Lookup finds a node by identifier. The identifier is normalized the same
// way AddDocument normalizes it.
func (t *Tree) Lookup(identifier string) (*core.Node, bool) {
	segments, sep, err := ParsePath(identifier, t.prefix)
	if err != nil {
		return nil, false
	}
	paths := prefixes(segments, sep)
	id, ok := t.byIdent[paths[len(paths)-1]]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// HasDocument reports whether the node's text was supplied by AddDocument
// rather than the node being created implicitly as a grouping.
func (t *Tree) HasDocument(id core.NodeID) bool {
	if id < 0 || int(id) >= len(t.document) {
		return false
	}
	return t.document[id]
}

// AddDocument adds a provision under identifier, creating intermediate
// organizational nodes along its path as needed.
//
// Adding the same identifier twice fails with core.ErrDuplicateIdentifier.
// A node that was only created implicitly as part of a longer path may be
// given its text once by a later AddDocument; it keeps its position and kind.
func (t *Tree) AddDocument(identifier, text string) (*core.Node, error) {
	segments, sep, err := ParsePath(identifier, t.prefix)
	if err != nil {
		return nil, err
	}
	paths := prefixes(segments, sep)
	full := paths[len(paths)-1]

	if id, ok := t.byIdent[full]; ok {
		if t.document[id] {
			return nil, fmt.Errorf("%w: %q", core.ErrDuplicateIdentifier, full)
		}
		node := t.nodes[id]
		node.Text = text
		t.document[id] = true
		return node, nil
	}

	parent := rootID
	for depth, path := range paths[:len(paths)-1] {
		id, ok := t.byIdent[path]
		if !ok {
			kind := core.KindArticle
			if depth == 0 {
				kind = core.KindTitle
			}
			id = t.attach(parent, path, "", kind)
		}
		parent = id
	}

	id := t.attach(parent, full, text, core.KindSection)
	t.document[id] = true
	return t.nodes[id], nil
}

// attach appends a new node to the arena and links it under parent.
func (t *Tree) attach(parent core.NodeID, identifier, text string, kind core.NodeKind) core.NodeID {
	id := core.NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &core.Node{
		ID:         id,
		Identifier: identifier,
		Text:       text,
		Kind:       kind,
		Parent:     parent,
	})
	t.document = append(t.document, false)
	t.byIdent[identifier] = id
	p := t.nodes[parent]
	p.Children = append(p.Children, id)
	return id
}

// Flatten returns every node except the root in depth-first pre-order.
// The result is identical on every call for the same tree.
func (t *Tree) Flatten() []*core.Node {
	out := make([]*core.Node, 0, t.Len())
	root := t.nodes[rootID]

	// Explicit stack; children pushed in reverse so the first child pops first.
	stack := make([]core.NodeID, 0, len(root.Children))
	for i := len(root.Children) - 1; i >= 0; i-- {
		stack = append(stack, root.Children[i])
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := t.nodes[id]
		out = append(out, node)
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
	return out
}

// Path returns the identifiers from the top-level grouping down to id.
func (t *Tree) Path(id core.NodeID) []string {
	node := t.Node(id)
	if node == nil {
		return nil
	}
	var path []string
	for node != nil && node.ID != rootID {
		path = append(path, node.Identifier)
		node = t.Node(node.Parent)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
