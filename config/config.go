// Package config loads the application configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/lexsearch/ai"
	"github.com/poiesic/lexsearch/ann"
	"gopkg.in/yaml.v3"
)

// DefaultTokenEnv names the environment variable holding the embedding API token.
const DefaultTokenEnv = "LEXSEARCH_API_TOKEN"

// EmbeddingConfig configures the OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host      string `yaml:"host"`
	Model     string `yaml:"model"`
	TokenEnv  string `yaml:"token_env"`
	BatchSize int    `yaml:"batch_size"`
}

// SourceConfig configures where documents are read from during parse.
type SourceConfig struct {
	Dir         string `yaml:"dir"`
	Identifiers string `yaml:"identifiers"`
	PoolSize    int    `yaml:"pool_size"`
	SkipInvalid bool   `yaml:"skip_invalid"`
}

// BuildConfig configures the index builder.
type BuildConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	SkipFailures bool          `yaml:"skip_failures"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// IndexConfig holds the HNSW graph parameters.
type IndexConfig struct {
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
	Seed           uint64 `yaml:"seed"`
}

// SearchConfig configures queries.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir          string          `yaml:"data_dir"`
	Corpus           string          `yaml:"corpus"`
	IdentifierPrefix string          `yaml:"identifier_prefix"`
	Embedding        EmbeddingConfig `yaml:"embedding"`
	Source           SourceConfig    `yaml:"source"`
	Build            BuildConfig     `yaml:"build"`
	Index            IndexConfig     `yaml:"index"`
	Search           SearchConfig    `yaml:"search"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	aiCfg := ai.DefaultConfig()
	graph := ann.DefaultConfig()
	return &AppConfig{
		DataDir:          "./data/lexsearch",
		Corpus:           "laws",
		IdentifierPrefix: "/legislation/laws/",
		Embedding: EmbeddingConfig{
			Host:      aiCfg.EmbeddingHost,
			Model:     aiCfg.EmbeddingModel,
			TokenEnv:  DefaultTokenEnv,
			BatchSize: aiCfg.BatchSize,
		},
		Source: SourceConfig{
			Dir:         "./data/documents",
			Identifiers: "./data/consolidated_urls.txt",
		},
		Build: BuildConfig{
			BatchSize:   16,
			MaxAttempts: 3,
			RetryDelay:  500 * time.Millisecond,
		},
		Index: IndexConfig{
			M:              graph.M,
			EfConstruction: graph.EfConstruction,
			EfSearch:       graph.EfSearch,
			Seed:           graph.Seed,
		},
		Search: SearchConfig{TopK: 1},
	}
}

// Load reads a config from path over the defaults. Keys missing from the
// file keep their default values. If path is empty or the file does not
// exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

// Validate checks value ranges.
func (c *AppConfig) Validate() error {
	if c.Corpus == "" {
		return errors.New("config: corpus is required")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("config: search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Build.MaxAttempts < 1 {
		return fmt.Errorf("config: build.max_attempts must be at least 1, got %d", c.Build.MaxAttempts)
	}
	if c.Build.BatchSize < 1 {
		return fmt.Errorf("config: build.batch_size must be at least 1, got %d", c.Build.BatchSize)
	}
	if err := c.GraphConfig().Validate(); err != nil {
		return fmt.Errorf("config: index: %w", err)
	}
	return nil
}

// Token returns the embedding API token from the environment.
func (c *AppConfig) Token() string {
	if c.Embedding.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedding.TokenEnv)
}

// AIConfig returns the embedding service configuration.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithToken(c.Token()),
		ai.WithBatchSize(c.Embedding.BatchSize),
	)
}

// GraphConfig returns the HNSW parameters.
func (c *AppConfig) GraphConfig() ann.Config {
	return ann.Config{
		M:              c.Index.M,
		EfConstruction: c.Index.EfConstruction,
		EfSearch:       c.Index.EfSearch,
		Seed:           c.Index.Seed,
	}
}
