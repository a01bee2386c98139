package lexsearch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/lexsearch/ai/mock"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/index"
	"github.com/poiesic/lexsearch/ingestion"
	"github.com/poiesic/lexsearch/search"
	"github.com/poiesic/lexsearch/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "/legislation/laws/"

func newCorpus(t *testing.T, dir string, opts ...Option) (*Corpus, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithEmbedder(mock.NewVocabularyEmbedder(mock.LegalVocabulary()), "vocabulary")
	opts = append([]Option{WithProvider(provider), WithIdentifierPrefix(prefix)}, opts...)
	c, err := Open(dir, opts...)
	require.NoError(t, err)
	return c, provider
}

func legalSource() source.MapSource {
	return source.MapSource{
		prefix + "penal/theft":     "theft is a crime",
		prefix + "penal/procedure": "criminal procedure and theft charges",
		prefix + "civil/contract":  "contract law basics",
	}
}

func legalIdentifiers() []string {
	return []string{
		prefix + "penal/theft",
		prefix + "penal/procedure",
		prefix + "civil/contract",
		prefix + "civil/missing",
	}
}

func TestOpen(t *testing.T) {
	t.Run("creates store on disk", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "store")
		c, provider := newCorpus(t, dir, WithName("statutes"))
		assert.Equal(t, "statutes", c.Name())
		assert.Equal(t, "tree/statutes", c.TreeKey())
		assert.Equal(t, "index/statutes", c.IndexKey())
		assert.NotNil(t, c.Store())
		assert.Same(t, provider, c.Provider())
		assert.DirExists(t, dir)

		require.NoError(t, c.Close())
		assert.True(t, provider.Closed())
	})

	t.Run("error with file path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(file, []byte("test"), 0o644))

		c, err := Open(file, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := Open("", WithInMemory(), WithName(""), WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
	})
}

func TestCorpus_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, _ := newCorpus(t, dir)

	_, err := c.LoadTree(ctx)
	assert.ErrorIs(t, err, core.ErrNotFound)

	tr := c.NewTree()
	ing, err := c.NewIngester(legalSource(), ingestion.WithPoolSize(2))
	require.NoError(t, err)
	summary, err := ing.Ingest(ctx, tr, legalIdentifiers())
	ing.Release()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Added)
	assert.Equal(t, 1, summary.Absent)
	require.NoError(t, c.SaveTree(ctx, tr))

	loaded, err := c.LoadTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, tr.Records(), loaded.Records())

	built, err := c.BuildIndex(ctx, loaded, index.WithPoolSize(2), index.WithRetry(1, 0))
	require.NoError(t, err)
	// penal, penal/theft, penal/procedure, civil, civil/contract
	assert.Equal(t, 5, built.Nodes)
	assert.Equal(t, 2, built.Empty)
	require.NoError(t, c.Close())

	reopened, _ := newCorpus(t, dir)
	defer reopened.Close()

	info, err := reopened.IndexInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, info.Corpus)
	assert.Equal(t, "vocabulary", info.Model)
	assert.Len(t, info.Nodes, 5)

	q, err := reopened.OpenQuerier(ctx)
	require.NoError(t, err)
	defer q.Close()
	assert.Equal(t, search.StateReady, q.State())

	results, err := q.Query(ctx, "stealing", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "penal/theft", results[0].Node.Identifier)
	assert.Equal(t, "penal/procedure", results[1].Node.Identifier)
}

func TestCorpus_OpenQuerierWithoutIndex(t *testing.T) {
	c, _ := newCorpus(t, "", WithInMemory())
	defer c.Close()

	q, err := c.OpenQuerier(context.Background())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Nil(t, q)
}
