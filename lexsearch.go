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


// Package lexsearch indexes hierarchical legal corpora and answers free-text
// queries by semantic similarity.
//
// A Corpus ties the pieces together over one durable store: the document
// tree is saved under "tree/<name>" and the embedding index under
// "index/<name>".
package lexsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/poiesic/lexsearch/ai"
	"github.com/poiesic/lexsearch/ai/openai"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/index"
	"github.com/poiesic/lexsearch/ingestion"
	"github.com/poiesic/lexsearch/search"
	"github.com/poiesic/lexsearch/source"
	"github.com/poiesic/lexsearch/storage"
	"github.com/poiesic/lexsearch/storage/badger"
	"github.com/poiesic/lexsearch/tree"
)

// DefaultName is the corpus name used when none is configured.
const DefaultName = "laws"

// Corpus is a named corpus persisted in a Badger-backed blob store.
type Corpus struct {
	name     string
	prefix   string
	backend  *badger.Backend
	store    *badger.BlobStore
	provider ai.Provider
	logger   *slog.Logger
}

// Option configures a Corpus.
type Option func(*options)

type options struct {
	name     string
	prefix   string
	aiConfig *ai.Config
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithName sets the corpus name. Default is DefaultName.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithIdentifierPrefix sets the site prefix stripped from identifiers of new trees.
func WithIdentifierPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithAIConfig configures the OpenAI-compatible embedding provider.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing provider instead of creating one from the
// AI config. The corpus closes it on Close.
func WithProvider(provider ai.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithInMemory keeps the store in memory. The directory is ignored.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens or creates the store in dir.
func Open(dir string, opts ...Option) (*Corpus, error) {
	options := &options{
		name:     DefaultName,
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.name == "" {
		return nil, errors.New("lexsearch: corpus name is required")
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(dir, options.inMemory, badger.WithBackendLogger(options.logger))
	if err != nil {
		return nil, err
	}

	store, err := badger.NewBlobStore(backend, badger.WithLogger(options.logger))
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			store.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Corpus{
		name:     options.name,
		prefix:   options.prefix,
		backend:  backend,
		store:    store,
		provider: provider,
		logger:   options.logger.With("component", "corpus", "corpus", options.name),
	}, nil
}

// Close releases the provider and the store.
func (c *Corpus) Close() error {
	if err := c.provider.Close(); err != nil {
		c.logger.Error("error closing AI provider", "err", err)
	}
	if err := c.store.Close(); err != nil {
		c.logger.Error("error closing blob store", "err", err)
		return err
	}
	if err := c.backend.Close(); err != nil {
		c.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (c *Corpus) Name() string {
	return c.name
}

func (c *Corpus) Store() storage.BlobStore {
	return c.store
}

func (c *Corpus) Provider() ai.Provider {
	return c.provider
}

// TreeKey is the blob key of the document tree.
func (c *Corpus) TreeKey() string {
	return path.Join("tree", c.name)
}

// IndexKey is the blob key of the embedding index.
func (c *Corpus) IndexKey() string {
	return path.Join("index", c.name)
}

// NewTree returns an empty tree named for the corpus.
func (c *Corpus) NewTree() *tree.Tree {
	return tree.New(c.name, tree.WithIdentifierPrefix(c.prefix))
}

func (c *Corpus) SaveTree(ctx context.Context, t *tree.Tree) error {
	if err := storage.SaveTree(ctx, c.store, c.TreeKey(), t); err != nil {
		return err
	}
	c.logger.Info("tree saved", "key", c.TreeKey(), "nodes", t.Len())
	return nil
}

// LoadTree loads the saved tree, or returns core.ErrNotFound if the corpus
// has not been parsed.
func (c *Corpus) LoadTree(ctx context.Context) (*tree.Tree, error) {
	return storage.LoadTree(ctx, c.store, c.TreeKey())
}

// NewIngester returns an ingester fetching from src. The caller releases it.
func (c *Corpus) NewIngester(src source.DocumentSource, opts ...ingestion.Option) (*ingestion.Ingester, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(c.logger)}, opts...)
	return ingestion.NewIngester(src, opts...)
}

// NewQuerier returns an unbuilt querier using the corpus embedder.
func (c *Corpus) NewQuerier(opts ...search.Option) (*search.Querier, error) {
	opts = append([]search.Option{
		search.WithLogger(c.logger),
		search.WithCorpusName(c.name),
		search.WithModelName(c.provider.ModelName()),
	}, opts...)
	return search.NewQuerier(c.provider.Embedder(), opts...)
}

// BuildIndex embeds the flattened tree and saves the index.
func (c *Corpus) BuildIndex(ctx context.Context, t *tree.Tree, opts ...index.Option) (core.BuildSummary, error) {
	q, err := c.NewQuerier(search.WithBuilderOptions(opts...))
	if err != nil {
		return core.BuildSummary{}, err
	}
	defer q.Close()

	summary, err := q.Build(ctx, t.Flatten())
	if err != nil {
		return core.BuildSummary{}, fmt.Errorf("building index for %q: %w", c.name, err)
	}
	if err := q.Save(ctx, c.store, c.IndexKey()); err != nil {
		return core.BuildSummary{}, err
	}
	return summary, nil
}

// OpenQuerier loads the saved index and restores it for querying.
func (c *Corpus) OpenQuerier(ctx context.Context, opts ...search.Option) (*search.Querier, error) {
	q, err := c.NewQuerier(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := q.Load(ctx, c.store, c.IndexKey()); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.Restore(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

// IndexInfo loads the saved index snapshot without restoring a graph.
func (c *Corpus) IndexInfo(ctx context.Context) (*storage.IndexSnapshot, error) {
	return storage.LoadIndex(ctx, c.store, c.IndexKey())
}
