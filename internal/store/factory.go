package store

import (
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// New creates a vector index for the configured backend.
func New(cfg Config) (VectorIndex, error) {
	cfg.applyDefaults()

	switch cfg.Backend {
	case BackendFlat:
		return NewFlatIndex(cfg)
	case BackendHNSW:
		return NewHNSWIndex(cfg)
	case BackendChromem:
		return NewChromemIndex(cfg)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownBackend,
			"unknown vector index backend %q", cfg.Backend).
			WithSuggestion("use one of: flat, hnsw, chromem")
	}
}
