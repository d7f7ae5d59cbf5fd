package chunk

import (
	"context"
	"math"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// SemanticChunker groups adjacent sentences while the cosine similarity
// between neighboring sentence embeddings stays above the threshold.
// A similarity drop starts a new chunk, as does reaching the size limit.
type SemanticChunker struct {
	opts     Options
	embedder Embedder
}

var _ Chunker = (*SemanticChunker)(nil)

// NewSemanticChunker creates a similarity-boundary chunker.
func NewSemanticChunker(opts Options) (*SemanticChunker, error) {
	if opts.Embedder == nil {
		return nil, errors.ConfigError("semantic chunking requires an embedder", nil)
	}
	return &SemanticChunker{opts: opts, embedder: opts.Embedder}, nil
}

// Strategy returns StrategySemantic.
func (c *SemanticChunker) Strategy() Strategy { return StrategySemantic }

// Split chunks the document at semantic boundaries.
func (c *SemanticChunker) Split(ctx context.Context, doc *document.Document) ([]*Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	sentences := splitSentences(runes)
	if len(sentences) == 0 {
		return nil, nil
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = string(runes[s.start:s.end])
	}

	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(sentences) {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed,
			"embedder returned %d vectors for %d sentences", len(vectors), len(sentences))
	}

	groups := c.group(sentences, vectors)
	packed := c.applyOverlap(groups, sentences)

	chunks := make([]*Chunk, 0, len(packed))
	for ordinal, s := range packed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, newChunk(doc, runes, s.start, s.end, ordinal, c.opts, StrategySemantic))
	}
	return chunks, nil
}

// group merges consecutive sentences into spans, breaking where the
// neighbor similarity drops below the threshold or the size limit would
// be exceeded.
func (c *SemanticChunker) group(sentences []span, vectors [][]float32) []span {
	var groups []span
	cur := sentences[0]
	if cur.len() > c.opts.ChunkSize {
		groups = append(groups, hardSplit(cur, c.opts.ChunkSize, c.opts.ChunkOverlap)...)
		cur = span{}
	}

	for i := 1; i < len(sentences); i++ {
		s := sentences[i]
		if s.len() > c.opts.ChunkSize {
			if cur.len() > 0 {
				groups = append(groups, cur)
				cur = span{}
			}
			groups = append(groups, hardSplit(s, c.opts.ChunkSize, c.opts.ChunkOverlap)...)
			continue
		}
		if cur.len() == 0 {
			cur = s
			continue
		}

		sim := cosineSimilarity(vectors[i-1], vectors[i])
		if sim >= c.opts.SemanticThreshold && s.end-cur.start <= c.opts.ChunkSize {
			cur.end = s.end
		} else {
			groups = append(groups, cur)
			cur = s
		}
	}
	if cur.len() > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// applyOverlap extends each group backwards over trailing sentences of
// its predecessor, within the overlap budget.
func (c *SemanticChunker) applyOverlap(groups, sentences []span) []span {
	if c.opts.ChunkOverlap == 0 || len(groups) < 2 {
		return groups
	}

	out := make([]span, len(groups))
	copy(out, groups)
	for i := 1; i < len(out); i++ {
		prevStart := out[i-1].start
		for _, s := range sentences {
			if s.start <= prevStart || s.start >= out[i].start {
				continue
			}
			if out[i].end-s.start <= c.opts.ChunkSize && out[i].start-s.start <= c.opts.ChunkOverlap {
				out[i].start = s.start
				break
			}
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
