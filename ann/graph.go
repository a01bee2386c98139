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


package ann

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/poiesic/lexsearch/core"
)

// maxLevel caps the layer count so a pathological draw cannot blow up memory.
const maxLevel = 16

// Match is one search hit: a position in the vector sequence the graph was
// built over and its cosine similarity to the query.
type Match struct {
	Position int
	Score    float32
}

// Graph is an HNSW graph over a fixed sequence of vectors.
type Graph struct {
	cfg       Config
	dimension int
	vectors   [][]float32  // unit length, or zero for sentinel vectors
	links     [][][]uint32 // links[pos][level] lists neighbor positions
	entry     int
	top       int
}

// Build constructs a graph over vectors. All vectors must share one dimension.
// The vectors are copied and normalized; the caller's slices are not retained.
func Build(vectors [][]float32, cfg Config) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		cfg:     cfg,
		vectors: make([][]float32, len(vectors)),
		links:   make([][][]uint32, len(vectors)),
		entry:   -1,
	}
	if len(vectors) > 0 {
		g.dimension = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != g.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				core.ErrDimensionMismatch, i, len(v), g.dimension)
		}
		g.vectors[i] = core.NormalizeVector(v)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	mult := 1 / math.Log(float64(cfg.M))
	for i := range g.vectors {
		g.insert(i, randomLevel(rng, mult))
	}
	return g, nil
}

func randomLevel(rng *rand.Rand, mult float64) int {
	// 1-Float64 lies in (0, 1], keeping the log finite.
	level := int(-math.Log(1-rng.Float64()) * mult)
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

// Len returns the number of vectors in the graph.
func (g *Graph) Len() int {
	return len(g.vectors)
}

// Dimension returns the vector dimension, or 0 for an empty graph.
func (g *Graph) Dimension() int {
	return g.dimension
}

// Config returns the parameters the graph was built with.
func (g *Graph) Config() Config {
	return g.cfg
}

func (g *Graph) similarity(q []float32, pos int) float32 {
	return core.DotProduct(q, g.vectors[pos])
}

func (g *Graph) maxLinks(level int) int {
	if level == 0 {
		return 2 * g.cfg.M
	}
	return g.cfg.M
}

func (g *Graph) insert(pos, level int) {
	g.links[pos] = make([][]uint32, level+1)
	if g.entry < 0 {
		g.entry = pos
		g.top = level
		return
	}

	q := g.vectors[pos]
	entries := []candidate{{pos: g.entry, score: g.similarity(q, g.entry)}}
	for l := g.top; l > level; l-- {
		entries = g.searchLayer(q, entries, 1, l)
	}

	for l := min(level, g.top); l >= 0; l-- {
		found := g.searchLayer(q, entries, g.cfg.EfConstruction, l)
		neighbors := found
		if len(neighbors) > g.cfg.M {
			neighbors = neighbors[:g.cfg.M]
		}
		g.links[pos][l] = make([]uint32, len(neighbors))
		for i, nb := range neighbors {
			g.links[pos][l][i] = uint32(nb.pos)
			g.connect(nb.pos, pos, l)
		}
		entries = found
	}

	if level > g.top {
		g.top = level
		g.entry = pos
	}
}

// connect adds a link from -> to on level, pruning from's list to the best
// maxLinks neighbors when it overflows.
func (g *Graph) connect(from, to, level int) {
	list := append(g.links[from][level], uint32(to))
	limit := g.maxLinks(level)
	if len(list) > limit {
		base := g.vectors[from]
		scored := make([]candidate, len(list))
		for i, nb := range list {
			scored[i] = candidate{pos: int(nb), score: g.similarity(base, int(nb))}
		}
		slices.SortFunc(scored, compareCandidates)
		list = list[:0]
		for _, c := range scored[:limit] {
			list = append(list, uint32(c.pos))
		}
	}
	g.links[from][level] = list
}

func compareCandidates(a, b candidate) int {
	switch {
	case better(a, b):
		return -1
	case better(b, a):
		return 1
	default:
		return 0
	}
}

// searchLayer runs a greedy best-first search on one layer and returns up to
// ef candidates, best first.
func (g *Graph) searchLayer(q []float32, entries []candidate, ef, level int) []candidate {
	visited := make(map[int]struct{}, ef*4)
	frontier := &bestFirst{}
	results := &worstFirst{}

	for _, e := range entries {
		if _, seen := visited[e.pos]; seen {
			continue
		}
		visited[e.pos] = struct{}{}
		heap.Push(frontier, e)
		heap.Push(results, e)
		if results.Len() > ef {
			heap.Pop(results)
		}
	}

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && better((*results)[0], current) {
			break
		}
		for _, nb := range g.links[current.pos][level] {
			pos := int(nb)
			if _, seen := visited[pos]; seen {
				continue
			}
			visited[pos] = struct{}{}
			c := candidate{pos: pos, score: g.similarity(q, pos)}
			if results.Len() < ef || better(c, (*results)[0]) {
				heap.Push(frontier, c)
				heap.Push(results, c)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// Search returns the min(k, Len()) vectors most similar to query, ordered by
// descending similarity with ties broken by ascending position. Positions are
// unique. The query is normalized internally.
func (g *Graph) Search(query []float32, k int) ([]Match, error) {
	if len(query) != g.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			core.ErrDimensionMismatch, len(query), g.dimension)
	}
	want := min(k, len(g.vectors))
	if want <= 0 {
		return []Match{}, nil
	}

	q := core.NormalizeVector(query)
	entries := []candidate{{pos: g.entry, score: g.similarity(q, g.entry)}}
	for l := g.top; l > 0; l-- {
		entries = g.searchLayer(q, entries, 1, l)
	}
	found := g.searchLayer(q, entries, max(g.cfg.EfSearch, want), 0)
	if len(found) < want {
		found = g.scan(q)
	}

	matches := make([]Match, want)
	for i := range matches {
		matches[i] = Match{Position: found[i].pos, Score: found[i].score}
	}
	return matches, nil
}

// Exact returns the same shape of result as Search using a full scan.
func (g *Graph) Exact(query []float32, k int) ([]Match, error) {
	if len(query) != g.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			core.ErrDimensionMismatch, len(query), g.dimension)
	}
	want := min(k, len(g.vectors))
	if want <= 0 {
		return []Match{}, nil
	}
	all := g.scan(core.NormalizeVector(query))
	matches := make([]Match, want)
	for i := range matches {
		matches[i] = Match{Position: all[i].pos, Score: all[i].score}
	}
	return matches, nil
}

func (g *Graph) scan(q []float32) []candidate {
	all := make([]candidate, len(g.vectors))
	for i := range g.vectors {
		all[i] = candidate{pos: i, score: g.similarity(q, i)}
	}
	slices.SortFunc(all, compareCandidates)
	return all
}
