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


package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lexsearch/ai"
	"github.com/poiesic/lexsearch/ann"
	"github.com/poiesic/lexsearch/core"
)

// dimensionProbe is embedded once when a build sees only blank text and no
// dimension was configured.
const dimensionProbe = "dimension probe"

// Index is the result of a build: the node sequence, its parallel vectors and
// the graph over them.
type Index struct {
	Nodes   []*core.Node
	Vectors [][]float32
	Graph   *ann.Graph
	Summary core.BuildSummary
}

// Builder embeds node sequences and builds search graphs.
type Builder struct {
	embedder     ai.Embedder
	pool         *ants.Pool
	graphCfg     ann.Config
	dimension    int
	batchSize    int
	skipFailures bool
	reuse        bool
	maxAttempts  int
	baseDelay    time.Duration
	observer     Observer
	logger       *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithPoolSize sets the number of concurrent embedding workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(b *Builder) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if b.pool != nil {
			b.pool.Release()
		}
		b.pool = pool
		return nil
	}
}

// WithGraphConfig sets the HNSW parameters. Default is ann.DefaultConfig().
func WithGraphConfig(cfg ann.Config) Option {
	return func(b *Builder) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		b.graphCfg = cfg
		return nil
	}
}

// WithDimension fixes the expected vector dimension. Vectors of any other
// size fail the build with core.ErrDimensionMismatch. By default the
// dimension is learned from the first vector.
func WithDimension(dim int) Option {
	return func(b *Builder) error {
		if dim < 0 {
			dim = 0
		}
		b.dimension = dim
		return nil
	}
}

// WithBatchSize sets how many texts are sent per model call. Default is 16.
func WithBatchSize(size int) Option {
	return func(b *Builder) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		b.batchSize = size
		return nil
	}
}

// WithSkipFailures selects the skip policy: a node that cannot be embedded
// gets the zero sentinel vector and is counted in BuildSummary.Skipped.
func WithSkipFailures(skip bool) Option {
	return func(b *Builder) error {
		b.skipFailures = skip
		return nil
	}
}

// WithReuseEmbeddings makes Build take the vector of a node that already
// carries an embedding instead of calling the model for it. The caller must
// guarantee those embeddings came from the builder's own model.
// Default is false: every non-blank node is embedded.
func WithReuseEmbeddings(reuse bool) Option {
	return func(b *Builder) error {
		b.reuse = reuse
		return nil
	}
}

// WithRetry sets the attempts per model call and the initial backoff delay.
// Default is 3 attempts starting at 500ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(b *Builder) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		b.maxAttempts = maxAttempts
		b.baseDelay = baseDelay
		return nil
	}
}

// WithObserver sets a progress observer.
func WithObserver(observer Observer) Option {
	return func(b *Builder) error {
		if observer == nil {
			observer = noopObserver{}
		}
		b.observer = observer
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a builder embedding with embedder.
// Call Release when the builder is no longer needed.
func NewBuilder(embedder ai.Embedder, opts ...Option) (*Builder, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Builder{
		embedder:    embedder,
		graphCfg:    ann.DefaultConfig(),
		batchSize:   16,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		observer:    noopObserver{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			b.Release()
			return nil, err
		}
	}

	if b.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		b.pool = pool
	}
	b.logger = b.logger.With("component", "index-builder")

	return b, nil
}

// GraphConfig returns the HNSW parameters used by Build and Restore.
func (b *Builder) GraphConfig() ann.Config {
	return b.graphCfg
}

// Release stops the worker pool.
func (b *Builder) Release() {
	if b.pool != nil {
		b.pool.Release()
		b.pool = nil
	}
}

// buildState holds the positional output buffers of one Build call.
// Each slot is written by exactly one goroutine.
type buildState struct {
	nodes    []*core.Node
	vectors  [][]float32
	outcomes []Outcome

	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

func (s *buildState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		s.cancel()
	}
}

func (s *buildState) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Build embeds nodes and constructs the graph. Index.Vectors[i] is the
// normalized vector of nodes[i] as computed by this builder's model. On
// success nodes without an embedding are given theirs; existing embeddings
// are never overwritten. Nodes are left untouched when Build fails.
func (b *Builder) Build(ctx context.Context, nodes []*core.Node) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &buildState{
		nodes:    nodes,
		vectors:  make([][]float32, len(nodes)),
		outcomes: make([]Outcome, len(nodes)),
		cancel:   cancel,
	}

	b.observer.BuildStarted(len(nodes))

	pending := make([]int, 0, len(nodes))
	for i, node := range nodes {
		switch {
		case b.reuse && node.HasEmbedding():
			state.vectors[i] = core.NormalizeVector(node.Embedding)
			state.outcomes[i] = OutcomeReused
			b.observer.NodeDone(i, node, OutcomeReused)
		case strings.TrimSpace(node.Text) == "":
			state.outcomes[i] = OutcomeEmpty
			b.observer.NodeDone(i, node, OutcomeEmpty)
		default:
			pending = append(pending, i)
		}
	}

	var wg sync.WaitGroup
	for lo := 0; lo < len(pending); lo += b.batchSize {
		if workCtx.Err() != nil {
			break
		}
		chunk := pending[lo:min(lo+b.batchSize, len(pending))]
		wg.Add(1)
		if err := b.pool.Submit(func() {
			defer wg.Done()
			b.embedChunk(workCtx, state, chunk)
		}); err != nil {
			wg.Done()
			state.fail(fmt.Errorf("submitting embedding task: %w", err))
			break
		}
	}
	wg.Wait()

	if err := state.failure(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim, err := b.resolveDimension(ctx, state)
	if err != nil {
		return nil, err
	}

	summary := core.BuildSummary{Nodes: len(nodes), Dimension: dim}
	for i, outcome := range state.outcomes {
		switch outcome {
		case OutcomeEmbedded:
			summary.Embedded++
		case OutcomeReused:
			summary.Reused++
		case OutcomeEmpty:
			summary.Empty++
		case OutcomeSkipped:
			summary.Skipped++
		}
		if state.vectors[i] == nil {
			state.vectors[i] = core.ZeroVector(dim)
		}
	}

	graph, err := ann.Build(state.vectors, b.graphCfg)
	if err != nil {
		return nil, err
	}

	for i, node := range nodes {
		if !node.HasEmbedding() {
			if err := node.SetEmbedding(state.vectors[i]); err != nil {
				return nil, err
			}
		}
	}

	summary.Elapsed = time.Since(start)
	b.observer.BuildFinished(summary)
	b.logger.Info("index built",
		"nodes", summary.Nodes,
		"embedded", summary.Embedded,
		"reused", summary.Reused,
		"empty", summary.Empty,
		"skipped", summary.Skipped,
		"dimension", summary.Dimension,
		"elapsed", summary.Elapsed)

	return &Index{
		Nodes:   nodes,
		Vectors: state.vectors,
		Graph:   graph,
		Summary: summary,
	}, nil
}

// embedChunk embeds a batch of node positions, falling back to one call per
// node when the batch fails so the failing identifier can be named.
func (b *Builder) embedChunk(ctx context.Context, state *buildState, positions []int) {
	if ctx.Err() != nil {
		return
	}

	texts := make([]string, len(positions))
	for i, pos := range positions {
		texts[i] = state.nodes[pos].Text
	}

	var batch [][]float32
	err := retryWithBackoff(ctx, b.logger, func() error {
		var err error
		batch, err = b.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(batch) != len(texts) {
			err = fmt.Errorf("model returned %d vectors for %d texts", len(batch), len(texts))
		}
		return err
	}, b.maxAttempts, b.baseDelay)
	if err == nil {
		for i, pos := range positions {
			b.store(state, pos, batch[i])
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	b.logger.Debug("batch embedding failed, retrying nodes individually", "size", len(positions), "error", err)
	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}
		node := state.nodes[pos]
		var vector []float32
		err := retryWithBackoff(ctx, b.logger, func() error {
			var err error
			vector, err = b.embedder.EmbedText(ctx, node.Text)
			return err
		}, b.maxAttempts, b.baseDelay)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !b.skipFailures {
				state.fail(fmt.Errorf("%w: %q: %w", core.ErrEmbeddingFailure, node.Identifier, err))
				return
			}
			b.logger.Warn("skipping node after embedding failure", "identifier", node.Identifier, "error", err)
			state.outcomes[pos] = OutcomeSkipped
			b.observer.NodeDone(pos, node, OutcomeSkipped)
			continue
		}
		b.store(state, pos, vector)
	}
}

func (b *Builder) store(state *buildState, pos int, vector []float32) {
	node := state.nodes[pos]
	if b.dimension > 0 && len(vector) != b.dimension {
		state.fail(fmt.Errorf("%w: %q embedded to %d dimensions, expected %d",
			core.ErrDimensionMismatch, node.Identifier, len(vector), b.dimension))
		return
	}
	state.vectors[pos] = core.NormalizeVector(vector)
	state.outcomes[pos] = OutcomeEmbedded
	b.observer.NodeDone(pos, node, OutcomeEmbedded)
}

// resolveDimension settles the index dimension and checks every vector
// against it.
func (b *Builder) resolveDimension(ctx context.Context, state *buildState) (int, error) {
	dim := b.dimension
	if dim == 0 {
		for _, v := range state.vectors {
			if v != nil {
				dim = len(v)
				break
			}
		}
	}
	if dim == 0 && len(state.nodes) > 0 {
		var probe []float32
		err := retryWithBackoff(ctx, b.logger, func() error {
			var err error
			probe, err = b.embedder.EmbedText(ctx, dimensionProbe)
			return err
		}, b.maxAttempts, b.baseDelay)
		if err != nil {
			return 0, fmt.Errorf("%w: probing dimension: %w", core.ErrEmbeddingFailure, err)
		}
		dim = len(probe)
	}

	for i, v := range state.vectors {
		if v != nil && len(v) != dim {
			return 0, fmt.Errorf("%w: %q has %d dimensions, expected %d",
				core.ErrDimensionMismatch, state.nodes[i].Identifier, len(v), dim)
		}
	}
	return dim, nil
}

// Restore rebuilds the graph over previously built vectors without calling
// the model, using the builder's graph configuration.
func (b *Builder) Restore(vectors [][]float32) (*ann.Graph, error) {
	if b.dimension > 0 {
		for i, v := range vectors {
			if len(v) != b.dimension {
				return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
					core.ErrDimensionMismatch, i, len(v), b.dimension)
			}
		}
	}
	graph, err := Restore(vectors, b.graphCfg)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("graph restored", "vectors", len(vectors), "dimension", graph.Dimension())
	return graph, nil
}

// Restore rebuilds a graph from stored vectors. Given the vectors and the
// configuration of the original build it answers every query exactly as the
// original graph did.
func Restore(vectors [][]float32, cfg ann.Config) (*ann.Graph, error) {
	return ann.Build(vectors, cfg)
}
