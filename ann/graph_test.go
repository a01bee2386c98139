package ann

import (
	"math/rand/v2"
	"testing"

	"github.com/poiesic/lexsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed uint64) [][]float32 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.M = 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.EfConstruction = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.EfSearch = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := Build(nil, Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuild_Empty(t *testing.T) {
	g, err := Build(nil, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, g.Dimension())

	matches, err := g.Search([]float32{}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBuild_InconsistentDimensions(t *testing.T) {
	_, err := Build([][]float32{{1, 0}, {1, 0, 0}}, DefaultConfig())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestBuild_DoesNotRetainInput(t *testing.T) {
	vectors := [][]float32{{3, 4}}
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	vectors[0][0] = -100
	matches, err := g.Search([]float32{3, 4}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	g, err := Build(randomVectors(10, 8, 1), DefaultConfig())
	require.NoError(t, err)

	_, err = g.Search(make([]float32, 4), 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSearch_ReturnsMinKN(t *testing.T) {
	g, err := Build(randomVectors(7, 8, 2), DefaultConfig())
	require.NoError(t, err)
	query := randomVectors(1, 8, 99)[0]

	for _, k := range []int{1, 3, 7, 20} {
		matches, err := g.Search(query, k)
		require.NoError(t, err)
		assert.Len(t, matches, min(k, 7), "k=%d", k)
	}
}

func TestSearch_UniqueAndOrdered(t *testing.T) {
	vectors := randomVectors(300, 16, 3)
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	for i, query := range randomVectors(20, 16, 4) {
		matches, err := g.Search(query, 25)
		require.NoError(t, err)
		require.Len(t, matches, 25)

		seen := make(map[int]bool)
		for j, m := range matches {
			assert.False(t, seen[m.Position], "query %d: duplicate position %d", i, m.Position)
			seen[m.Position] = true
			assert.InDelta(t, core.CosineSimilarity(query, vectors[m.Position]), m.Score, 1e-4)
			if j > 0 {
				prev := matches[j-1]
				ordered := prev.Score > m.Score || (prev.Score == m.Score && prev.Position < m.Position)
				assert.True(t, ordered, "query %d: results out of order at %d", i, j)
			}
		}
	}
}

func TestSearch_FindsExactMatch(t *testing.T) {
	vectors := randomVectors(500, 12, 5)
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	for _, pos := range []int{0, 17, 250, 499} {
		matches, err := g.Search(vectors[pos], 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, pos, matches[0].Position)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-5)
	}
}

func TestSearch_RecallAgainstExact(t *testing.T) {
	vectors := randomVectors(1000, 16, 6)
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	hits, total := 0, 0
	for _, query := range randomVectors(30, 16, 7) {
		approx, err := g.Search(query, 10)
		require.NoError(t, err)
		exact, err := g.Exact(query, 10)
		require.NoError(t, err)

		want := make(map[int]bool)
		for _, m := range exact {
			want[m.Position] = true
		}
		for _, m := range approx {
			if want[m.Position] {
				hits++
			}
		}
		total += len(exact)
	}
	assert.GreaterOrEqual(t, float64(hits)/float64(total), 0.9)
}

func TestBuild_Deterministic(t *testing.T) {
	vectors := randomVectors(400, 16, 8)
	first, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)
	second, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, first.links, second.links)
	assert.Equal(t, first.entry, second.entry)

	for _, query := range randomVectors(10, 16, 9) {
		a, err := first.Search(query, 5)
		require.NoError(t, err)
		b, err := second.Search(query, 5)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestSearch_TiesBrokenByPosition(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 0}, {1, 0}}
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	matches, err := g.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{matches[0].Position, matches[1].Position, matches[2].Position})
}

func TestSearch_ZeroVectors(t *testing.T) {
	vectors := [][]float32{{0, 0, 0}, {1, 0, 0}, {0, 0, 0}}
	g, err := Build(vectors, DefaultConfig())
	require.NoError(t, err)

	matches, err := g.Search([]float32{0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for i, m := range matches {
		assert.Equal(t, i, m.Position)
		assert.Zero(t, m.Score)
	}

	matches, err = g.Search([]float32{2, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, matches[0].Position)
}

func TestSearch_ConnectivityFallback(t *testing.T) {
	// Small M with orthogonal clusters still returns every position.
	cfg := Config{M: 2, EfConstruction: 2, EfSearch: 1, Seed: 1}
	vectors := randomVectors(50, 4, 10)
	g, err := Build(vectors, cfg)
	require.NoError(t, err)

	matches, err := g.Search(vectors[3], 50)
	require.NoError(t, err)
	assert.Len(t, matches, 50)
}
