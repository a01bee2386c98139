package tree

import (
	"testing"

	"github.com/poiesic/lexsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identifiers(nodes []*core.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Identifier
	}
	return out
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		prefix     string
		segments   []string
		sep        string
	}{
		{name: "dotted", identifier: "A.1.1", segments: []string{"A", "1", "1"}, sep: "."},
		{name: "slashed keeps dots", identifier: "PEN/155.25", segments: []string{"PEN", "155.25"}, sep: "/"},
		{name: "single segment", identifier: "PEN", segments: []string{"PEN"}, sep: "."},
		{name: "trailing newline", identifier: "A.2\n", segments: []string{"A", "2"}, sep: "."},
		{
			name:       "site prefix stripped",
			identifier: "/legislation/laws/PEN/A155",
			prefix:     "/legislation/laws/",
			segments:   []string{"PEN", "A155"},
			sep:        "/",
		},
		{name: "surrounding slashes", identifier: "/ABC/1/", segments: []string{"ABC", "1"}, sep: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, sep, err := ParsePath(tt.identifier, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.segments, segments)
			assert.Equal(t, tt.sep, sep)
		})
	}
}

func TestParsePath_Malformed(t *testing.T) {
	for _, identifier := range []string{"", "   ", "/", "A..1", "A.1.", ".A", "PEN//1", "A. .1"} {
		t.Run(identifier, func(t *testing.T) {
			_, _, err := ParsePath(identifier, "")
			assert.ErrorIs(t, err, core.ErrMalformedIdentifier)
		})
	}
}

func TestAddDocument_CreatesIntermediateNodes(t *testing.T) {
	tr := New("laws")

	leaf, err := tr.AddDocument("A.1.1", "theft is a crime")
	require.NoError(t, err)
	assert.Equal(t, "A.1.1", leaf.Identifier)
	assert.Equal(t, "theft is a crime", leaf.Text)
	assert.Equal(t, core.KindSection, leaf.Kind)

	title, ok := tr.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, core.KindTitle, title.Kind)
	assert.Empty(t, title.Text)
	assert.Equal(t, core.NodeID(0), title.Parent)

	article, ok := tr.Lookup("A.1")
	require.True(t, ok)
	assert.Equal(t, core.KindArticle, article.Kind)
	assert.Equal(t, title.ID, article.Parent)
	assert.Equal(t, []core.NodeID{leaf.ID}, article.Children)
	assert.Equal(t, article.ID, leaf.Parent)

	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []string{"A", "A.1", "A.1.1"}, tr.Path(leaf.ID))
	assert.False(t, tr.HasDocument(article.ID))
	assert.True(t, tr.HasDocument(leaf.ID))
}

func TestAddDocument_ReusesIntermediateNodes(t *testing.T) {
	tr := New("laws")
	_, err := tr.AddDocument("A.1.1", "one")
	require.NoError(t, err)
	_, err = tr.AddDocument("A.1.2", "two")
	require.NoError(t, err)
	_, err = tr.AddDocument("A.2.1", "three")
	require.NoError(t, err)

	assert.Equal(t, 6, tr.Len())
	article, ok := tr.Lookup("A.1")
	require.True(t, ok)
	assert.Len(t, article.Children, 2)
	assert.Len(t, tr.Root().Children, 1)
}

func TestAddDocument_Duplicate(t *testing.T) {
	tr := New("laws")
	_, err := tr.AddDocument("A.1.1", "first")
	require.NoError(t, err)

	_, err = tr.AddDocument("A.1.1", "second")
	require.ErrorIs(t, err, core.ErrDuplicateIdentifier)
	assert.Contains(t, err.Error(), "A.1.1")

	// Same identifier written differently is still a duplicate.
	_, err = tr.AddDocument(" A.1.1\n", "third")
	require.ErrorIs(t, err, core.ErrDuplicateIdentifier)

	node, ok := tr.Lookup("A.1.1")
	require.True(t, ok)
	assert.Equal(t, "first", node.Text, "no silent overwrite")

	article, _ := tr.Lookup("A.1")
	assert.Len(t, article.Children, 1, "never two siblings with the same identifier")
}

func TestAddDocument_MaterializesImplicitNode(t *testing.T) {
	tr := New("laws")
	_, err := tr.AddDocument("A.1.1", "section text")
	require.NoError(t, err)

	node, err := tr.AddDocument("A.1", "article preamble")
	require.NoError(t, err)
	assert.Equal(t, "article preamble", node.Text)
	assert.Equal(t, core.KindArticle, node.Kind)
	assert.Equal(t, 3, tr.Len(), "no new node is created")

	_, err = tr.AddDocument("A.1", "again")
	assert.ErrorIs(t, err, core.ErrDuplicateIdentifier)
}

func TestAddDocument_Malformed(t *testing.T) {
	tr := New("laws")
	_, err := tr.AddDocument("A..1", "text")
	require.ErrorIs(t, err, core.ErrMalformedIdentifier)
	assert.Equal(t, 0, tr.Len())
}

func TestAddDocument_WithPrefix(t *testing.T) {
	tr := New("laws", WithIdentifierPrefix("/legislation/laws/"))
	node, err := tr.AddDocument("/legislation/laws/PEN/155.25\n", "petit larceny")
	require.NoError(t, err)
	assert.Equal(t, "PEN/155.25", node.Identifier)

	_, ok := tr.Lookup("/legislation/laws/PEN")
	assert.True(t, ok)
}

func TestFlatten_PreOrder(t *testing.T) {
	tr := New("laws")
	for _, id := range []string{"B.1", "A.2", "A.1", "B.2.1"} {
		_, err := tr.AddDocument(id, "text "+id)
		require.NoError(t, err)
	}

	got := identifiers(tr.Flatten())
	assert.Equal(t, []string{"B", "B.1", "B.2", "B.2.1", "A", "A.2", "A.1"}, got,
		"pre-order, root excluded, children in attach order")
}

func TestFlatten_Deterministic(t *testing.T) {
	tr := New("laws")
	for _, id := range []string{"PEN/1", "PEN/2", "CPL/10", "PEN/3", "CPL/11"} {
		_, err := tr.AddDocument(id, id)
		require.NoError(t, err)
	}

	first := tr.Flatten()
	second := tr.Flatten()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestFlatten_EmptyTree(t *testing.T) {
	tr := New("laws")
	assert.Empty(t, tr.Flatten())
	assert.Equal(t, "laws", tr.Root().Identifier)
	assert.Equal(t, core.KindCorpus, tr.Root().Kind)
}

func TestNode_OutOfRange(t *testing.T) {
	tr := New("laws")
	assert.Nil(t, tr.Node(-1))
	assert.Nil(t, tr.Node(5))
	assert.Nil(t, tr.Path(5))
	assert.False(t, tr.HasDocument(5))
}
