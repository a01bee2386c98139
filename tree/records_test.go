package tree

import (
	"testing"

	"github.com/poiesic/lexsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords_RoundTrip(t *testing.T) {
	original := New("laws", WithIdentifierPrefix("/legislation/laws/"))
	for _, id := range []string{"PEN/155.25", "PEN/155.30", "CPL/1.20", "PEN"} {
		_, err := original.AddDocument(id, "text of "+id)
		require.NoError(t, err)
	}

	restored, err := FromRecords(original.Records(), WithIdentifierPrefix("/legislation/laws/"))
	require.NoError(t, err)

	assert.Equal(t, original.Name(), restored.Name())
	assert.Equal(t, identifiers(original.Flatten()), identifiers(restored.Flatten()))
	for _, node := range original.Flatten() {
		other, ok := restored.Lookup(node.Identifier)
		require.True(t, ok, node.Identifier)
		assert.Equal(t, node.Text, other.Text)
		assert.Equal(t, node.Kind, other.Kind)
		assert.Equal(t, node.Children, other.Children)
		assert.Equal(t, original.HasDocument(node.ID), restored.HasDocument(other.ID))
	}

	// Duplicate policy survives the round trip.
	_, err = restored.AddDocument("PEN/155.25", "again")
	assert.ErrorIs(t, err, core.ErrDuplicateIdentifier)
}

func TestFromRecords_Corrupt(t *testing.T) {
	root := Record{Identifier: "laws", Kind: core.KindCorpus, Parent: core.NoParent}

	tests := []struct {
		name    string
		records []Record
	}{
		{name: "no records", records: nil},
		{name: "root has parent", records: []Record{{Identifier: "laws", Kind: core.KindCorpus, Parent: 0}}},
		{name: "forward parent", records: []Record{root, {Identifier: "A", Kind: core.KindTitle, Parent: 1}}},
		{name: "invalid kind", records: []Record{root, {Identifier: "A", Kind: core.NodeKind(7), Parent: 0}}},
		{name: "second corpus", records: []Record{root, {Identifier: "A", Kind: core.KindCorpus, Parent: 0}}},
		{
			name: "duplicate identifier",
			records: []Record{
				root,
				{Identifier: "A", Kind: core.KindTitle, Parent: 0},
				{Identifier: "A", Kind: core.KindTitle, Parent: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRecords(tt.records)
			assert.ErrorIs(t, err, core.ErrCorruptData)
		})
	}
}
