// Package config loads and validates ragpipe configuration from YAML
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// ConfigFileName is the per-project config file.
const ConfigFileName = ".ragpipe.yaml"

// Config is the complete ragpipe configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Source    SourceConfig    `yaml:"source"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig configures document discovery.
type SourceConfig struct {
	// Dir is the directory scanned for documents.
	Dir string `yaml:"dir"`
	// Extensions whitelists file types (with leading dot).
	Extensions []string `yaml:"extensions"`
	// MaxFileSizeMB skips files larger than this.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	// Strategy is one of: sentence, fixed, recursive, semantic, auto.
	Strategy string `yaml:"strategy"`
	// Size is the maximum chunk length in characters.
	Size int `yaml:"size"`
	// Overlap is the character overlap between consecutive chunks.
	Overlap int `yaml:"overlap"`
	// SemanticThreshold is the adjacent-sentence similarity cut for the
	// semantic strategy.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" or "static".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// StoreConfig configures the vector and metadata indexes.
type StoreConfig struct {
	// Backend is "flat", "hnsw", or "chromem".
	Backend string `yaml:"backend"`
	// MetadataBackend is "memory" or "bleve".
	MetadataBackend string `yaml:"metadata_backend"`
	// DataDir holds index files, the state ledger, and the lock file.
	DataDir string `yaml:"data_dir"`
	// HNSW tuning.
	HNSWM        int `yaml:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search"`
}

// SearchConfig configures hybrid query behavior.
type SearchConfig struct {
	// TopK is the default result count.
	TopK int `yaml:"top_k"`
	// OverfetchFactor widens the vector query before metadata filtering.
	OverfetchFactor int `yaml:"overfetch_factor"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "auto", "text", or "json".
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Dir:           ".",
			Extensions:    []string{".txt", ".md", ".markdown"},
			MaxFileSizeMB: 10,
		},
		Chunking: ChunkingConfig{
			Strategy:          "sentence",
			Size:              512,
			Overlap:           64,
			SemanticThreshold: 0.75,
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  1000,
		},
		Store: StoreConfig{
			Backend:         "hnsw",
			MetadataBackend: "memory",
			DataDir:         ".ragpipe",
			HNSWM:           16,
			HNSWEfSearch:    20,
		},
		Search: SearchConfig{
			TopK:            10,
			OverfetchFactor: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads configuration for dir: defaults, then .ragpipe.yaml if
// present, then environment overrides, then validation.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigNotFound, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("parsing %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies RAGPIPE_* environment variables, which take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGPIPE_SOURCE_DIR"); v != "" {
		c.Source.Dir = v
	}
	if v := os.Getenv("RAGPIPE_CHUNK_STRATEGY"); v != "" {
		c.Chunking.Strategy = v
	}
	if v := os.Getenv("RAGPIPE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Size = n
		}
	}
	if v := os.Getenv("RAGPIPE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("RAGPIPE_EMBEDDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("RAGPIPE_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("RAGPIPE_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("RAGPIPE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("RAGPIPE_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("RAGPIPE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("RAGPIPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for fatal mistakes.
func (c *Config) Validate() error {
	switch c.Chunking.Strategy {
	case "sentence", "fixed", "recursive", "semantic", "auto":
	default:
		return errors.Newf(errors.ErrCodeUnknownStrategy,
			"unknown chunking strategy %q", c.Chunking.Strategy).
			WithSuggestion("use one of: sentence, fixed, recursive, semantic, auto")
	}
	if c.Chunking.Size <= 0 {
		return errors.ConfigError("chunking size must be positive", nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return errors.ConfigError(
			fmt.Sprintf("chunking overlap %d must be in [0, size)", c.Chunking.Overlap), nil)
	}
	switch c.Store.Backend {
	case "flat", "hnsw", "chromem":
	default:
		return errors.Newf(errors.ErrCodeUnknownBackend,
			"unknown vector backend %q", c.Store.Backend).
			WithSuggestion("use one of: flat, hnsw, chromem")
	}
	switch c.Store.MetadataBackend {
	case "memory", "bleve":
	default:
		return errors.Newf(errors.ErrCodeUnknownBackend,
			"unknown metadata backend %q", c.Store.MetadataBackend).
			WithSuggestion("use one of: memory, bleve")
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "static":
	default:
		return errors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider), nil).
			WithSuggestion("use one of: ollama, static")
	}
	if c.Search.TopK <= 0 {
		return errors.ConfigError("search top_k must be positive", nil)
	}
	if c.Search.OverfetchFactor < 1 {
		c.Search.OverfetchFactor = 1
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFilePermission, err)
	}
	return nil
}
