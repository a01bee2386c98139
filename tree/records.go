package tree

import (
	"fmt"

	"github.com/poiesic/lexsearch/core"
)

// Record is the durable form of one arena slot.
// Children are not stored: they are rebuilt from Parent in arena order,
// which is the order they were attached in.
type Record struct {
	Identifier  string
	Text        string
	Kind        core.NodeKind
	Parent      core.NodeID
	HasDocument bool
}

// Records returns the arena as records, root first.
func (t *Tree) Records() []Record {
	records := make([]Record, len(t.nodes))
	for i, node := range t.nodes {
		records[i] = Record{
			Identifier:  node.Identifier,
			Text:        node.Text,
			Kind:        node.Kind,
			Parent:      node.Parent,
			HasDocument: t.document[i],
		}
	}
	return records
}

// FromRecords rebuilds a tree from the output of Records.
// It fails with core.ErrCorruptData if the records do not describe a valid tree.
func FromRecords(records []Record, opts ...Option) (*Tree, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: tree has no root record", core.ErrCorruptData)
	}
	root := records[0]
	if root.Parent != core.NoParent || root.Kind != core.KindCorpus {
		return nil, fmt.Errorf("%w: first record is not a corpus root", core.ErrCorruptData)
	}

	t := New(root.Identifier, opts...)
	for i, rec := range records[1:] {
		id := core.NodeID(i + 1)
		if rec.Parent < 0 || rec.Parent >= id {
			return nil, fmt.Errorf("%w: node %q has parent %d outside [0,%d)",
				core.ErrCorruptData, rec.Identifier, rec.Parent, id)
		}
		if !rec.Kind.Valid() || rec.Kind == core.KindCorpus {
			return nil, fmt.Errorf("%w: node %q has invalid kind %d", core.ErrCorruptData, rec.Identifier, rec.Kind)
		}
		if _, dup := t.byIdent[rec.Identifier]; dup {
			return nil, fmt.Errorf("%w: %w: %q", core.ErrCorruptData, core.ErrDuplicateIdentifier, rec.Identifier)
		}
		t.attach(rec.Parent, rec.Identifier, rec.Text, rec.Kind)
		t.document[id] = rec.HasDocument
	}
	return t, nil
}
