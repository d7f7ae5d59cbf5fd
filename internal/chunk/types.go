// Package chunk splits documents into bounded, overlapping text segments.
// Four strategies are provided: sentence-boundary packing, fixed-size
// windows, recursive structural splitting, and semantic-similarity
// grouping. Chunk ids are a pure function of the document id, ordinal,
// and chunking parameters, so re-chunking unchanged text reproduces the
// same ids.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// Chunk size defaults, in characters.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64

	// DefaultSemanticThreshold is the cosine similarity below which the
	// semantic strategy starts a new chunk.
	DefaultSemanticThreshold = 0.75
)

// Strategy identifies a splitting policy.
type Strategy string

const (
	// StrategySentence packs whole sentences up to the size limit.
	StrategySentence Strategy = "sentence"
	// StrategyFixed slides a fixed-size window with configured overlap.
	StrategyFixed Strategy = "fixed"
	// StrategyRecursive splits on structural boundaries (paragraphs,
	// lines), falling back to sentences and words for oversized spans.
	StrategyRecursive Strategy = "recursive"
	// StrategySemantic groups adjacent sentences while their embedding
	// similarity stays above a threshold.
	StrategySemantic Strategy = "semantic"
	// StrategyAuto picks a strategy per document based on its structure.
	StrategyAuto Strategy = "auto"
)

// Strategies lists the accepted strategy names.
func Strategies() []Strategy {
	return []Strategy{StrategySentence, StrategyFixed, StrategyRecursive, StrategySemantic, StrategyAuto}
}

// Chunk is a retrievable unit of text extracted from one document.
type Chunk struct {
	ID        string            // Deterministic: see ChunkID
	DocID     string            // Owning document
	Ordinal   int               // Position within the document, 0-based
	Text      string            // Raw chunk text
	Start     int               // Start offset in the document, in runes
	End       int               // End offset, exclusive
	Strategy  Strategy          // Strategy that produced this chunk
	Metadata  document.Metadata // Inherited document metadata + chunk-local fields
	CreatedAt time.Time
}

// Chunk-local metadata keys.
const (
	MetaDocID    = "doc_id"
	MetaOrdinal  = "chunk_ordinal"
	MetaLength   = "chunk_length"
	MetaStrategy = "chunk_strategy"
)

// Chunker splits a document into an ordered sequence of chunks.
type Chunker interface {
	// Split returns the document's chunks in ordinal order.
	// Empty or whitespace-only text yields zero chunks and no error.
	Split(ctx context.Context, doc *document.Document) ([]*Chunk, error)

	// Strategy returns the splitting policy this chunker implements.
	Strategy() Strategy
}

// Embedder is the minimal embedding surface the semantic strategy needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures chunking.
type Options struct {
	Strategy Strategy
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int
	// ChunkOverlap is the overlap between adjacent chunks in runes.
	ChunkOverlap int
	// SemanticThreshold is the similarity cut point for StrategySemantic.
	SemanticThreshold float64
	// Embedder is required for StrategySemantic and StrategyAuto.
	Embedder Embedder
}

// ApplyDefaults fills zero-valued options.
func (o *Options) ApplyDefaults() {
	if o.Strategy == "" {
		o.Strategy = StrategySentence
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap == 0 && o.ChunkSize > DefaultChunkOverlap {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.SemanticThreshold == 0 {
		o.SemanticThreshold = DefaultSemanticThreshold
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return errors.ConfigError(fmt.Sprintf("chunk size must be positive, got %d", o.ChunkSize), nil)
	}
	if o.ChunkOverlap < 0 {
		return errors.ConfigError(fmt.Sprintf("chunk overlap must not be negative, got %d", o.ChunkOverlap), nil)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return errors.ConfigError(fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", o.ChunkOverlap, o.ChunkSize), nil)
	}
	if o.SemanticThreshold < 0 || o.SemanticThreshold > 1 {
		return errors.ConfigError(fmt.Sprintf("semantic threshold must be in [0,1], got %g", o.SemanticThreshold), nil)
	}
	return nil
}

// ChunkID derives the deterministic chunk id.
// Identical inputs always produce identical ids, which makes incremental
// re-indexing of unchanged documents idempotent.
func ChunkID(docID string, ordinal int, strategy Strategy, size, overlap int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s|%d|%d", docID, ordinal, strategy, size, overlap))
	return hex.EncodeToString(h[:])[:16]
}

// newChunk builds a chunk over runes[start:end) with inherited metadata.
func newChunk(doc *document.Document, runes []rune, start, end, ordinal int, opts Options, strategy Strategy) *Chunk {
	text := string(runes[start:end])

	meta := make(document.Metadata, len(doc.Metadata)+4)
	for k, v := range doc.Metadata.Normalized() {
		meta[k] = v
	}
	meta[MetaDocID] = doc.ID
	meta[MetaOrdinal] = float64(ordinal)
	meta[MetaLength] = float64(end - start)
	meta[MetaStrategy] = string(strategy)

	return &Chunk{
		ID:        ChunkID(doc.ID, ordinal, strategy, opts.ChunkSize, opts.ChunkOverlap),
		DocID:     doc.ID,
		Ordinal:   ordinal,
		Text:      text,
		Start:     start,
		End:       end,
		Strategy:  strategy,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
}
