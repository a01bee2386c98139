package search

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/lexsearch/ai/mock"
	"github.com/poiesic/lexsearch/ann"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/index"
	"github.com/poiesic/lexsearch/storage"
	"github.com/poiesic/lexsearch/storage/badger"
	"github.com/poiesic/lexsearch/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) storage.BlobStore {
	t.Helper()
	store, backend, err := badger.NewMemoryBlobStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		backend.Close()
	})
	return store
}

func legalTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr := tree.New("laws")
	for _, doc := range []struct{ id, text string }{
		{"doc1", "theft is a crime"},
		{"doc2", "contract law basics"},
		{"doc3", "criminal procedure and theft charges"},
	} {
		_, err := tr.AddDocument(doc.id, doc.text)
		require.NoError(t, err)
	}
	return tr
}

func newVocabularyQuerier(t *testing.T, opts ...Option) (*Querier, *mock.VocabularyEmbedder) {
	t.Helper()
	embedder := mock.NewVocabularyEmbedder(mock.LegalVocabulary())
	opts = append([]Option{WithBuilderOptions(index.WithPoolSize(2), index.WithRetry(1, 0))}, opts...)
	q, err := NewQuerier(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return q, embedder
}

func readyQuerier(t *testing.T) *Querier {
	t.Helper()
	q, _ := newVocabularyQuerier(t)
	_, err := q.Build(context.Background(), legalTree(t).Flatten())
	require.NoError(t, err)
	require.NoError(t, q.Restore())
	return q
}

func TestNewQuerier_RequiresEmbedder(t *testing.T) {
	_, err := NewQuerier(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestQuery_StealingScenario(t *testing.T) {
	q := readyQuerier(t)

	results, err := q.Query(context.Background(), "stealing", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc1", results[0].Node.Identifier)
	assert.Equal(t, "doc3", results[1].Node.Identifier)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, float32(0))
}

func TestQuery_StateMachine(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	q, _ := newVocabularyQuerier(t, WithCorpusName("laws"), WithModelName("vocabulary"))
	assert.Equal(t, StateUnbuilt, q.State())

	_, err := q.Query(ctx, "theft", 1)
	assert.ErrorIs(t, err, core.ErrIndexNotReady)
	assert.ErrorIs(t, q.Restore(), core.ErrIndexNotReady)
	assert.ErrorIs(t, q.Save(ctx, store, "index/laws"), ErrNothingToSave)

	_, err = q.Build(ctx, legalTree(t).Flatten())
	require.NoError(t, err)
	assert.Equal(t, StateBuilt, q.State())
	_, err = q.Query(ctx, "theft", 1)
	assert.ErrorIs(t, err, core.ErrIndexNotReady)

	require.NoError(t, q.Save(ctx, store, "index/laws"))
	assert.Equal(t, StatePersisted, q.State())
	_, err = q.Query(ctx, "theft", 1)
	assert.ErrorIs(t, err, core.ErrIndexNotReady)

	_, err = q.Load(ctx, store, "index/laws")
	require.NoError(t, err)
	assert.Equal(t, StateRestored, q.State())
	_, err = q.Query(ctx, "theft", 1)
	assert.ErrorIs(t, err, core.ErrIndexNotReady)

	require.NoError(t, q.Restore())
	assert.Equal(t, StateReady, q.State())
	_, err = q.Query(ctx, "theft", 1)
	require.NoError(t, err)

	require.NoError(t, q.Save(ctx, store, "index/laws"))
	assert.Equal(t, StateReady, q.State(), "saving a ready index keeps it ready")
}

func TestQuery_RestoreDirectlyAfterBuild(t *testing.T) {
	q, _ := newVocabularyQuerier(t)
	_, err := q.Build(context.Background(), legalTree(t).Flatten())
	require.NoError(t, err)

	require.NoError(t, q.Restore())
	assert.Equal(t, StateReady, q.State())
}

func TestQuery_InvalidTopK(t *testing.T) {
	q := readyQuerier(t)
	for _, k := range []int{0, -1} {
		_, err := q.Query(context.Background(), "theft", k)
		assert.ErrorIs(t, err, core.ErrInvalidTopK)
	}

	unbuilt, _ := newVocabularyQuerier(t)
	_, err := unbuilt.Query(context.Background(), "theft", 0)
	assert.ErrorIs(t, err, core.ErrInvalidTopK, "topK is checked before readiness")
}

func TestQuery_EmptyIndex(t *testing.T) {
	q, _ := newVocabularyQuerier(t, WithBuilderOptions(index.WithDimension(5)))
	_, err := q.Build(context.Background(), tree.New("empty").Flatten())
	require.NoError(t, err)
	require.NoError(t, q.Restore())

	_, err = q.Query(context.Background(), "theft", 1)
	assert.ErrorIs(t, err, core.ErrEmptyIndex)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	built := readyQuerier(t)
	require.NoError(t, built.Save(ctx, store, "index/laws"))

	other := mock.NewMockEmbedder()
	other.Dimension = 16
	q, err := NewQuerier(other)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Load(ctx, store, "index/laws")
	require.NoError(t, err)
	require.NoError(t, q.Restore())

	_, err = q.Query(ctx, "theft", 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestQuery_EmptyText(t *testing.T) {
	q, embedder := newVocabularyQuerier(t)
	_, err := q.Build(context.Background(), legalTree(t).Flatten())
	require.NoError(t, err)
	require.NoError(t, q.Restore())
	calls := embedder.CallCount()

	results, err := q.Query(context.Background(), "   ", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, calls, embedder.CallCount())
	for i, r := range results {
		assert.Equal(t, i, r.Position)
		assert.Zero(t, r.Score)
	}
}

func TestQuery_TopKProperties(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 32
	q, err := NewQuerier(embedder, WithBuilderOptions(index.WithPoolSize(4)))
	require.NoError(t, err)
	defer q.Close()

	tr := tree.New("codes")
	for i := range 40 {
		for j := range 5 {
			_, err := tr.AddDocument(fmt.Sprintf("code%d.%d", i, j), fmt.Sprintf("provision %d of code %d", j, i))
			require.NoError(t, err)
		}
	}
	nodes := tr.Flatten()
	_, err = q.Build(context.Background(), nodes)
	require.NoError(t, err)
	require.NoError(t, q.Restore())

	for _, k := range []int{1, 7, 50, len(nodes), len(nodes) + 10} {
		results, err := q.Query(context.Background(), "provision 3 of code 17", k)
		require.NoError(t, err)
		assert.Len(t, results, min(k, len(nodes)))

		seen := make(map[string]bool)
		for i, r := range results {
			assert.False(t, seen[r.Node.Identifier], "duplicate %s", r.Node.Identifier)
			seen[r.Node.Identifier] = true
			assert.Same(t, nodes[r.Position], r.Node)
			if i > 0 {
				assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
			}
		}
	}
}

func TestRestore_Equivalence(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 24
	cfg := ann.Config{M: 8, EfConstruction: 64, EfSearch: 32, Seed: 7}

	original, err := NewQuerier(embedder, WithBuilderOptions(index.WithGraphConfig(cfg)))
	require.NoError(t, err)
	defer original.Close()

	tr := tree.New("laws")
	for i := range 150 {
		_, err := tr.AddDocument(fmt.Sprintf("title%d/%d", i%10, i), fmt.Sprintf("section text number %d", i))
		require.NoError(t, err)
	}
	_, err = original.Build(ctx, tr.Flatten())
	require.NoError(t, err)
	require.NoError(t, original.Save(ctx, store, "index/laws"))
	require.NoError(t, original.Restore())

	restored, err := NewQuerier(embedder)
	require.NoError(t, err)
	defer restored.Close()
	snapshot, err := restored.Load(ctx, store, "index/laws")
	require.NoError(t, err)
	assert.Equal(t, cfg, snapshot.Graph)
	require.NoError(t, restored.Restore())

	for _, text := range []string{"section text number 42", "title3", "unrelated words", "number 149"} {
		want, err := original.Query(ctx, text, 10)
		require.NoError(t, err)
		got, err := restored.Query(ctx, text, 10)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Node.Identifier, got[i].Node.Identifier)
			assert.Equal(t, want[i].Position, got[i].Position)
			assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	q, _ := newVocabularyQuerier(t)

	_, err := q.Load(ctx, store, "index/missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, StateUnbuilt, q.State())

	require.NoError(t, store.Write(ctx, "index/bad", []byte("garbage")))
	_, err = q.Load(ctx, store, "index/bad")
	assert.ErrorIs(t, err, core.ErrCorruptData)
}

func TestQuery_Concurrent(t *testing.T) {
	q := readyQuerier(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				results, err := q.Query(ctx, "stealing", 2)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "doc1", results[0].Node.Identifier)
			}
			if i == 0 {
				assert.NoError(t, q.Restore())
			}
		}()
	}
	wg.Wait()
}

// gatedStore blocks Write until release is closed.
type gatedStore struct {
	storage.BlobStore
	writing chan struct{}
	release chan struct{}
}

func (g *gatedStore) Write(ctx context.Context, key string, data []byte) error {
	close(g.writing)
	<-g.release
	return g.BlobStore.Write(ctx, key, data)
}

func TestSave_DoesNotBlockQueries(t *testing.T) {
	ctx := context.Background()
	q := readyQuerier(t)
	store := &gatedStore{
		BlobStore: setupStore(t),
		writing:   make(chan struct{}),
		release:   make(chan struct{}),
	}

	saved := make(chan error, 1)
	go func() { saved <- q.Save(ctx, store, "index/laws") }()
	<-store.writing

	results, err := q.Query(ctx, "stealing", 1)
	require.NoError(t, err)
	assert.Equal(t, "doc1", results[0].Node.Identifier)
	assert.Equal(t, StateReady, q.State())

	close(store.release)
	require.NoError(t, <-saved)
	assert.Equal(t, StateReady, q.State())

	exists, err := store.Exists(ctx, "index/laws")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSave_IndexReplacedDuringWrite(t *testing.T) {
	ctx := context.Background()
	q, _ := newVocabularyQuerier(t)
	_, err := q.Build(ctx, legalTree(t).Flatten())
	require.NoError(t, err)

	store := &gatedStore{
		BlobStore: setupStore(t),
		writing:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	saved := make(chan error, 1)
	go func() { saved <- q.Save(ctx, store, "index/laws") }()
	<-store.writing

	_, err = q.Build(ctx, legalTree(t).Flatten())
	require.NoError(t, err)

	close(store.release)
	require.NoError(t, <-saved)
	assert.Equal(t, StateBuilt, q.State(), "the replacing build was not saved")
}

type recordingMonitor struct {
	query   string
	topK    int
	vector  []float32
	matches []ann.Match
	results []core.SearchResult
}

func (m *recordingMonitor) Start(query string, topK int)       { m.query, m.topK = query, topK }
func (m *recordingMonitor) AfterEmbedding(vector []float32)    { m.vector = vector }
func (m *recordingMonitor) AfterSearch(matches []ann.Match)    { m.matches = matches }
func (m *recordingMonitor) Finish(results []core.SearchResult) { m.results = results }

func TestQueryWithMonitor(t *testing.T) {
	q := readyQuerier(t)
	monitor := &recordingMonitor{}

	results, err := q.QueryWithMonitor(context.Background(), "stealing", 2, monitor)
	require.NoError(t, err)
	assert.Equal(t, "stealing", monitor.query)
	assert.Equal(t, 2, monitor.topK)
	assert.Len(t, monitor.vector, 5)
	assert.Len(t, monitor.matches, 2)
	assert.Equal(t, results, monitor.results)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unbuilt", StateUnbuilt.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "state(9)", State(9).String())
}
