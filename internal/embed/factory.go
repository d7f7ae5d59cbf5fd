package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings, no external dependency.
	ProviderStatic ProviderType = "static"
)

// Config configures embedder construction.
type Config struct {
	Provider ProviderType
	// Ollama holds provider-specific settings for ProviderOllama.
	Ollama OllamaConfig
	// CacheSize is the LRU embedding cache size; 0 uses the default,
	// negative disables caching.
	CacheSize int
}

// NewEmbedder creates an embedder for the configured provider.
// The RAGPIPE_EMBEDDER environment variable overrides the provider, and
// RAGPIPE_EMBED_CACHE=false disables the LRU cache.
// An unknown provider is a configuration error.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("RAGPIPE_EMBEDDER"); env != "" {
		provider = ProviderType(strings.ToLower(env))
	}
	if provider == "" {
		provider = ProviderOllama
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		e, err := NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			return nil, err
		}
		embedder = e
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embedding provider: %q", provider), nil).
			WithSuggestion("use one of: ollama, static")
	}

	if cfg.CacheSize >= 0 && !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// isCacheDisabled checks if the embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("RAGPIPE_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}
