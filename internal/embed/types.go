// Package embed provides the vectorizer abstraction: text in, fixed-length
// vector out. Implementations must keep batch output order identical to
// input order, and partial batch failures report exactly which inputs
// failed instead of dropping the remainder.
package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Common embedding constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
// Same input text and same ModelName must produce the same vector, up to
// the underlying model's own determinism guarantees.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// Output order matches input order exactly.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a free-form query string. Models that encode
	// queries and documents asymmetrically apply their query prompt here;
	// others behave exactly like Embed.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used as a compatibility key
	// between an index and the embedder that built it.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// BatchItemError records one failed input of a batch embedding call.
type BatchItemError struct {
	Index int
	Err   error
}

// BatchError reports which inputs of a batch failed. Successful inputs
// keep their vectors in the result slice; failed indices hold nil.
type BatchError struct {
	Items []BatchItemError
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	idx := make([]int, len(e.Items))
	for i, item := range e.Items {
		idx[i] = item.Index
	}
	sort.Ints(idx)

	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("embedding failed for %d of batch inputs (indices %s)", len(idx), strings.Join(parts, ", "))
}

// Unwrap returns the first item's cause.
func (e *BatchError) Unwrap() error {
	if len(e.Items) == 0 {
		return nil
	}
	return e.Items[0].Err
}

// asBatchError reports whether err is (or wraps) a BatchError.
func asBatchError(err error, target **BatchError) bool {
	return stderrors.As(err, target)
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
