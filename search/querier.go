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


package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/lexsearch/ai"
	"github.com/poiesic/lexsearch/ann"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/index"
	"github.com/poiesic/lexsearch/storage"
)

// State is the lifecycle position of a Querier.
type State int

const (
	// StateUnbuilt holds no index.
	StateUnbuilt State = iota
	// StateBuilt holds vectors and a graph from Build.
	StateBuilt
	// StatePersisted holds a built index that has been saved.
	StatePersisted
	// StateRestored holds vectors without a graph.
	StateRestored
	// StateReady holds vectors and a restored graph and answers queries.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StatePersisted:
		return "persisted"
	case StateRestored:
		return "restored"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Querier owns an index and answers queries against it.
type Querier struct {
	embedder       ai.Embedder
	builderOptions []index.Option
	builder        *index.Builder
	corpus         string
	model          string
	logger         *slog.Logger

	mu         sync.RWMutex
	state      State
	generation uint64 // bumped whenever nodes and vectors are replaced
	nodes      []*core.Node
	vectors    [][]float32
	graph      *ann.Graph
	graphCfg   ann.Config
	dimension  int
	builtAt    time.Time
}

// Option configures a Querier.
type Option func(*Querier) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Querier) error {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
		return nil
	}
}

// WithBuilderOptions configures the index builder used by Build.
func WithBuilderOptions(opts ...index.Option) Option {
	return func(q *Querier) error {
		q.builderOptions = append(q.builderOptions, opts...)
		return nil
	}
}

// WithCorpusName sets the corpus name recorded in saved snapshots.
func WithCorpusName(name string) Option {
	return func(q *Querier) error {
		q.corpus = name
		return nil
	}
}

// WithModelName sets the embedding model name recorded in saved snapshots.
// Loading a snapshot recorded with another model logs a warning.
func WithModelName(name string) Option {
	return func(q *Querier) error {
		q.model = name
		return nil
	}
}

// NewQuerier creates an unbuilt querier that embeds with embedder.
// The same embedder must be used at build and query time.
func NewQuerier(embedder ai.Embedder, opts ...Option) (*Querier, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	q := &Querier{
		embedder: embedder,
		logger:   slog.Default(),
		graphCfg: ann.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	q.logger = q.logger.With("component", "querier")

	return q, nil
}

// Close releases the builder's worker pool.
func (q *Querier) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.builder != nil {
		q.builder.Release()
		q.builder = nil
	}
}

// State returns the current lifecycle state.
func (q *Querier) State() State {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// Len returns the number of indexed nodes.
func (q *Querier) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.nodes)
}

// Dimension returns the vector dimension of the index.
func (q *Querier) Dimension() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dimension
}

// Build embeds nodes and replaces the held index. The querier must be
// restored before it answers queries.
func (q *Querier) Build(ctx context.Context, nodes []*core.Node) (core.BuildSummary, error) {
	builder, err := q.indexBuilder()
	if err != nil {
		return core.BuildSummary{}, err
	}

	idx, err := builder.Build(ctx, nodes)
	if err != nil {
		return core.BuildSummary{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.generation++
	q.nodes = idx.Nodes
	q.vectors = idx.Vectors
	q.graph = idx.Graph
	q.graphCfg = builder.GraphConfig()
	q.dimension = idx.Summary.Dimension
	q.builtAt = time.Now().UTC()
	q.state = StateBuilt
	return idx.Summary, nil
}

func (q *Querier) indexBuilder() (*index.Builder, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.builder == nil {
		builder, err := index.NewBuilder(q.embedder, q.builderOptions...)
		if err != nil {
			return nil, err
		}
		q.builder = builder
	}
	return q.builder, nil
}

// Snapshot returns the durable form of the held index.
func (q *Querier) Snapshot() (*storage.IndexSnapshot, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state == StateUnbuilt {
		return nil, ErrNothingToSave
	}
	return q.snapshotLocked(), nil
}

func (q *Querier) snapshotLocked() *storage.IndexSnapshot {
	return &storage.IndexSnapshot{
		Corpus:    q.corpus,
		Model:     q.model,
		Dimension: q.dimension,
		Graph:     q.graphCfg,
		BuiltAt:   q.builtAt,
		Nodes:     storage.NodeRecords(q.nodes),
		Vectors:   q.vectors,
	}
}

// Save writes the held index to store under key. A Built querier becomes
// Persisted; other states are unchanged. Queries keep running during the
// write.
func (q *Querier) Save(ctx context.Context, store storage.BlobStore, key string) error {
	q.mu.RLock()
	state, generation := q.state, q.generation
	var snapshot *storage.IndexSnapshot
	if state != StateUnbuilt {
		snapshot = q.snapshotLocked()
	}
	q.mu.RUnlock()

	if state == StateUnbuilt {
		return ErrNothingToSave
	}
	if err := storage.SaveIndex(ctx, store, key, snapshot); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.generation == generation && q.state == StateBuilt {
		q.state = StatePersisted
	}
	q.logger.Info("index saved", "key", key, "nodes", len(snapshot.Nodes))
	return nil
}

// Load replaces the held index with the snapshot stored under key and moves
// to Restored. The graph is dropped until Restore.
func (q *Querier) Load(ctx context.Context, store storage.BlobStore, key string) (*storage.IndexSnapshot, error) {
	snapshot, err := storage.LoadIndex(ctx, store, key)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.model != "" && snapshot.Model != "" && snapshot.Model != q.model {
		q.logger.Warn("index was built with a different model",
			"key", key, "indexModel", snapshot.Model, "queryModel", q.model)
	}

	q.generation++
	q.nodes = snapshot.DetachedNodes()
	q.vectors = snapshot.Vectors
	q.graph = nil
	q.graphCfg = snapshot.Graph
	q.dimension = snapshot.Dimension
	q.builtAt = snapshot.BuiltAt
	if q.corpus == "" {
		q.corpus = snapshot.Corpus
	}
	if q.model == "" {
		q.model = snapshot.Model
	}
	q.state = StateRestored
	q.logger.Debug("index loaded", "key", key, "nodes", len(q.nodes), "dimension", q.dimension)
	return snapshot, nil
}

// Restore rebuilds the graph from the held vectors and moves to Ready.
// The previous graph, if any, is replaced wholesale.
func (q *Querier) Restore() error {
	q.mu.RLock()
	state, generation, vectors, cfg := q.state, q.generation, q.vectors, q.graphCfg
	q.mu.RUnlock()

	if state == StateUnbuilt {
		return fmt.Errorf("%w: nothing to restore", core.ErrIndexNotReady)
	}

	start := time.Now()
	graph, err := index.Restore(vectors, cfg)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.generation != generation {
		return fmt.Errorf("%w: index replaced during restore", core.ErrIndexNotReady)
	}
	q.graph = graph
	q.state = StateReady
	q.logger.Debug("graph restored", "nodes", graph.Len(), "elapsed", time.Since(start))
	return nil
}

// Query returns the topK nodes most similar to text.
func (q *Querier) Query(ctx context.Context, text string, topK int) ([]core.SearchResult, error) {
	return q.QueryWithMonitor(ctx, text, topK, nil)
}

// QueryWithMonitor runs Query reporting intermediate steps to monitor.
//
// Errors, in order of precedence: core.ErrInvalidTopK when topK < 1,
// core.ErrIndexNotReady outside the Ready state, core.ErrEmptyIndex when the
// index holds no nodes, core.ErrDimensionMismatch when the query vector does
// not match the index. Blank text embeds to the zero vector without a model
// call and scores 0 against every node.
func (q *Querier) QueryWithMonitor(ctx context.Context, text string, topK int, monitor QueryMonitor) ([]core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidTopK, topK)
	}

	q.mu.RLock()
	state, nodes, graph, dim := q.state, q.nodes, q.graph, q.dimension
	q.mu.RUnlock()

	if state != StateReady || graph == nil {
		return nil, fmt.Errorf("%w: querier is %s", core.ErrIndexNotReady, state)
	}
	if len(nodes) == 0 {
		return nil, core.ErrEmptyIndex
	}

	monitor.Start(text, topK)

	var vector []float32
	if strings.TrimSpace(text) == "" {
		vector = core.ZeroVector(dim)
	} else {
		var err error
		vector, err = q.embedder.EmbedText(ctx, text)
		if err != nil {
			q.logger.Error("error generating embedding for query", "query", text, "err", err)
			return nil, fmt.Errorf("%w: query: %w", core.ErrEmbeddingFailure, err)
		}
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query embedded to %d dimensions, index has %d",
			core.ErrDimensionMismatch, len(vector), dim)
	}
	monitor.AfterEmbedding(vector)

	matches, err := graph.Search(vector, topK)
	if err != nil {
		return nil, err
	}
	monitor.AfterSearch(matches)

	results := make([]core.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = core.SearchResult{Node: nodes[m.Position], Position: m.Position, Score: m.Score}
	}
	monitor.Finish(results)
	return results, nil
}
