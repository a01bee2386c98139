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


package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/lexsearch"
	"github.com/poiesic/lexsearch/config"
	"github.com/poiesic/lexsearch/core"
	"github.com/poiesic/lexsearch/index"
	"github.com/poiesic/lexsearch/ingestion"
	"github.com/poiesic/lexsearch/search"
	"github.com/poiesic/lexsearch/source"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

// openCorpus opens the corpus described by cfg. Tests replace it to inject
// a mock provider.
var openCorpus = func(cfg *config.AppConfig) (*lexsearch.Corpus, error) {
	aiConfig := cfg.AIConfig()
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	return lexsearch.Open(cfg.DataDir,
		lexsearch.WithName(cfg.Corpus),
		lexsearch.WithIdentifierPrefix(cfg.IdentifierPrefix),
		lexsearch.WithAIConfig(aiConfig),
	)
}

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "lexsearch",
		Usage:     "Semantic search over hierarchical legal corpora",
		Reader:    in,
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "lexsearch.yaml",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Path to .env file holding the API token",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Corpus name (overrides config)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadConfig(c)
		},
		// With no command, open the interactive prompt.
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			return runSearch(c, "", cfg.Search.TopK)
		},
		Commands: []*cli.Command{
			{
				Name:   "parse",
				Usage:  "Fetch listed documents and save the document tree",
				Action: parseCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source-dir",
						Usage: "Directory holding one <identifier>.txt file per document",
					},
					&cli.StringFlag{
						Name:  "identifiers",
						Usage: "File listing one identifier per line",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent fetches",
					},
					&cli.BoolFlag{
						Name:  "skip-invalid",
						Usage: "Skip malformed or duplicate identifiers instead of failing",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
				},
			},
			{
				Name:   "build",
				Usage:  "Embed the saved document tree and save the index",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of concurrent embedding workers",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of texts per embedding request",
					},
					&cli.BoolFlag{
						Name:  "skip-failures",
						Usage: "Store a zero vector for nodes that cannot be embedded",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per embedding request",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N nodes",
						Value: 100,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Query the saved index",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Run a single query instead of the interactive prompt",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results per query",
					},
				},
			},
			{
				Name:   "info",
				Usage:  "Describe the saved index",
				Action: infoCommand,
			},
		},
	}
}

func loadConfig(c *cli.Context) error {
	if err := config.LoadEnv(c.String("env")); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if name := c.String("corpus"); name != "" {
		cfg.Corpus = name
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func appConfig(c *cli.Context) *config.AppConfig {
	if cfg, ok := c.App.Metadata[configKey].(*config.AppConfig); ok {
		return cfg
	}
	return config.Default()
}

func parseCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg := appConfig(c)

	if dir := c.String("source-dir"); dir != "" {
		cfg.Source.Dir = dir
	}
	if path := c.String("identifiers"); path != "" {
		cfg.Source.Identifiers = path
	}
	if c.IsSet("pool-size") {
		cfg.Source.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("skip-invalid") {
		cfg.Source.SkipInvalid = c.Bool("skip-invalid")
	}

	identifiers, err := source.ReadIdentifiers(cfg.Source.Identifiers)
	if err != nil {
		return fmt.Errorf("failed to read identifiers: %w", err)
	}
	src, err := source.NewDirSource(cfg.Source.Dir, source.WithPrefix(cfg.IdentifierPrefix))
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}

	corpus, err := openCorpus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer corpus.Close()

	opts := []ingestion.Option{
		ingestion.WithSkipInvalid(cfg.Source.SkipInvalid),
		ingestion.WithProgress(index.NewProgressTracker(c.App.ErrWriter, "Parsing", c.Int("report-interval"))),
	}
	if cfg.Source.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(cfg.Source.PoolSize))
	}
	ingester, err := corpus.NewIngester(src, opts...)
	if err != nil {
		return err
	}
	defer ingester.Release()

	t := corpus.NewTree()
	summary, err := ingester.Ingest(ctx, t, identifiers)
	if err != nil {
		return fmt.Errorf("parsing failed: %w", err)
	}
	if err := corpus.SaveTree(ctx, t); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Parsed %d of %d documents (%d absent, %d failed, %d invalid) into %d nodes\n",
		summary.Added, summary.Requested, summary.Absent, summary.Failed, summary.Invalid, t.Len())
	fmt.Fprintf(c.App.Writer, "Saved to %q\n", corpus.TreeKey())
	return nil
}

func buildCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg := appConfig(c)

	if c.IsSet("pool-size") {
		cfg.Build.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("batch-size") {
		cfg.Build.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("skip-failures") {
		cfg.Build.SkipFailures = c.Bool("skip-failures")
	}
	if c.IsSet("max-retries") {
		cfg.Build.MaxAttempts = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Build.RetryDelay = c.Duration("retry-delay")
	}
	if cfg.Build.MaxAttempts <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	if cfg.Build.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	corpus, err := openCorpus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer corpus.Close()

	t, err := corpus.LoadTree(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("corpus %q has not been parsed; run the parse command first", cfg.Corpus)
	}
	if err != nil {
		return err
	}

	opts := []index.Option{
		index.WithGraphConfig(cfg.GraphConfig()),
		index.WithBatchSize(cfg.Build.BatchSize),
		index.WithSkipFailures(cfg.Build.SkipFailures),
		index.WithRetry(cfg.Build.MaxAttempts, cfg.Build.RetryDelay),
		index.WithObserver(index.NewProgressTracker(c.App.ErrWriter, "Embedding", c.Int("report-interval"))),
	}
	if cfg.Build.PoolSize > 0 {
		opts = append(opts, index.WithPoolSize(cfg.Build.PoolSize))
	}

	fmt.Fprintf(c.App.ErrWriter, "Building index for %d nodes with %s\n", t.Len(), corpus.Provider().ModelName())
	summary, err := corpus.BuildIndex(ctx, t, opts...)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Indexed %d nodes (%d embedded, %d reused, %d empty, %d skipped), dimension %d, in %s\n",
		summary.Nodes, summary.Embedded, summary.Reused, summary.Empty, summary.Skipped,
		summary.Dimension, summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.App.Writer, "Saved to %q\n", corpus.IndexKey())
	return nil
}

func searchCommand(c *cli.Context) error {
	topK := appConfig(c).Search.TopK
	if c.IsSet("top-k") {
		topK = c.Int("top-k")
	}
	return runSearch(c, c.String("query"), topK)
}

func runSearch(c *cli.Context, query string, topK int) error {
	ctx := context.Background()
	cfg := appConfig(c)
	if topK < 1 {
		return fmt.Errorf("top-k must be greater than 0")
	}

	corpus, err := openCorpus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer corpus.Close()

	querier, err := corpus.OpenQuerier(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("corpus %q has no index; run the build command first", cfg.Corpus)
	}
	if err != nil {
		return err
	}
	defer querier.Close()

	if query != "" {
		return printResults(ctx, c.App.Writer, querier, query, topK)
	}

	fmt.Fprintf(c.App.Writer, "Loaded index with %d nodes\n", querier.Len())
	scanner := bufio.NewScanner(c.App.Reader)
	for {
		fmt.Fprint(c.App.Writer, "Enter search query: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.App.Writer)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			return nil
		}
		if err := printResults(ctx, c.App.Writer, querier, line, topK); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "search failed: %v\n", err)
		}
	}
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "end", "q", "quit":
		return true
	}
	return false
}

func printResults(ctx context.Context, w io.Writer, querier *search.Querier, query string, topK int) error {
	results, err := querier.Query(ctx, query, topK)
	if err != nil {
		return err
	}
	for i, hit := range results {
		fmt.Fprintf(w, "%d: %s [%0.3f]\n", i+1, hit.Node.Identifier, hit.Score)
		if text := strings.TrimSpace(hit.Node.Text); text != "" {
			fmt.Fprintf(w, "   %s\n", text)
		}
	}
	return nil
}

func infoCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg := appConfig(c)

	corpus, err := openCorpus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer corpus.Close()

	snapshot, err := corpus.IndexInfo(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("corpus %q has no index; run the build command first", cfg.Corpus)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Corpus:    %s\n", snapshot.Corpus)
	fmt.Fprintf(c.App.Writer, "Nodes:     %d\n", len(snapshot.Nodes))
	fmt.Fprintf(c.App.Writer, "Dimension: %d\n", snapshot.Dimension)
	fmt.Fprintf(c.App.Writer, "Model:     %s\n", snapshot.Model)
	fmt.Fprintf(c.App.Writer, "Built:     %s\n", snapshot.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(c.App.Writer, "Graph:     M=%d efConstruction=%d efSearch=%d seed=%d\n",
		snapshot.Graph.M, snapshot.Graph.EfConstruction, snapshot.Graph.EfSearch, snapshot.Graph.Seed)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
