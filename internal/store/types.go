// Package store provides the vector index contract and its interchangeable
// backends: an exact-scan flat index, an HNSW approximate index, and an
// embedded chromem-go database. All backends share one score convention
// (higher is more similar, normalized to [0,1]) so callers can swap them
// freely.
package store

import (
	"context"
	"math"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// BackendType identifies a vector index backend.
type BackendType string

const (
	// BackendFlat is the exact brute-force reference backend.
	BackendFlat BackendType = "flat"
	// BackendHNSW is the approximate graph-based backend.
	BackendHNSW BackendType = "hnsw"
	// BackendChromem is the embedded chromem-go database backend.
	BackendChromem BackendType = "chromem"
)

// Metric names for distance computation.
const (
	MetricCosine = "cos"
	MetricL2     = "l2"
)

// VectorRecord is one (id, vector, payload) triple.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload document.Metadata
}

// QueryResult is one ranked hit from a vector index query.
type QueryResult struct {
	ID      string
	Score   float32
	Payload document.Metadata
}

// Filter restricts query results. A nil Filter admits every record.
type Filter func(id string, payload document.Metadata) bool

// VectorIndex is the backend-agnostic vector store contract.
//
// Invariants all backends uphold:
//   - Upsert of an existing id atomically replaces vector and payload.
//   - Upsert of a vector whose length differs from the index dimensionality
//     fails with a validation error and leaves the index unchanged.
//   - Query clamps topK to the number of stored records.
//   - Query against an empty index returns an empty slice, not an error.
//   - Scores are normalized to [0,1], descending order.
type VectorIndex interface {
	// Upsert inserts or replaces a record.
	Upsert(ctx context.Context, id string, vector []float32, payload document.Metadata) error

	// UpsertBatch inserts or replaces multiple records.
	UpsertBatch(ctx context.Context, records []VectorRecord) error

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Clear removes all records.
	Clear(ctx context.Context) error

	// Query returns up to topK records nearest to vector, most similar
	// first. A non-nil filter drops records before ranking.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]QueryResult, error)

	// Contains reports whether id is stored.
	Contains(id string) bool

	// Count returns the number of stored records.
	Count() int

	// Dimensions returns the index's declared dimensionality.
	Dimensions() int

	// Name returns the backend name.
	Name() string

	// Save persists the index to path.
	Save(path string) error

	// Load restores the index from path.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// Config configures vector index construction.
type Config struct {
	Backend    BackendType
	Dimensions int
	// Metric is "cos" (default) or "l2".
	Metric string

	// HNSW tuning.
	M        int
	EfSearch int

	// Path is the persistence directory for backends that manage their
	// own storage (chromem).
	Path string
}

// applyDefaults fills zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFlat
	}
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 20
	}
}

// validateDimensions checks a vector against the declared dimensionality.
func validateDimensions(expected int, vec []float32) error {
	if len(vec) != expected {
		return errors.Newf(errors.ErrCodeDimensionMismatch,
			"expected vector of dimension %d, got %d", expected, len(vec))
	}
	return nil
}

// errClosed is the uniform closed-store error.
func errClosed() error {
	return errors.ValidationError("vector index is closed", nil)
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// Cosine distance ranges 0-2 and maps to 1-d/2; L2 maps to 1/(1+d).
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case MetricL2:
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}

// clonePayload copies a payload so callers cannot mutate stored state.
func clonePayload(payload document.Metadata) document.Metadata {
	if payload == nil {
		return nil
	}
	out := make(document.Metadata, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
