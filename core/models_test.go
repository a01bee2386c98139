package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{name: "short content", content: []byte("theft is a crime")},
		{name: "empty content", content: []byte{}},
		{name: "binary content", content: []byte{0x00, 0xff, 0x10, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Fingerprint(tt.content), Fingerprint(tt.content))
		})
	}
}

func TestFingerprint_Different(t *testing.T) {
	assert.NotEqual(t, Fingerprint([]byte("content1")), Fingerprint([]byte("content2")))
}

func TestNodeKind_String(t *testing.T) {
	assert.Equal(t, "corpus", KindCorpus.String())
	assert.Equal(t, "title", KindTitle.String())
	assert.Equal(t, "article", KindArticle.String())
	assert.Equal(t, "section", KindSection.String())
	assert.Equal(t, "kind(9)", NodeKind(9).String())

	assert.True(t, KindSection.Valid())
	assert.False(t, NodeKind(-1).Valid())
	assert.False(t, NodeKind(4).Valid())
}

func TestNode_SetEmbedding(t *testing.T) {
	node := &Node{Identifier: "PEN/155.25", Text: "petit larceny"}
	assert.False(t, node.HasEmbedding())

	require.NoError(t, node.SetEmbedding([]float32{1, 0}))
	assert.True(t, node.HasEmbedding())

	err := node.SetEmbedding([]float32{0, 1})
	require.ErrorIs(t, err, ErrEmbeddingAlreadySet)
	assert.Contains(t, err.Error(), "PEN/155.25")
	assert.Equal(t, []float32{1, 0}, node.Embedding, "first embedding must be kept")
}

func TestNode_SetEmbeddingZeroLength(t *testing.T) {
	// A zero-length but non-nil slice still counts as assigned.
	node := &Node{Identifier: "A"}
	require.NoError(t, node.SetEmbedding([]float32{}))
	assert.True(t, node.HasEmbedding())
}
