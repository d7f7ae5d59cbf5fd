package chunk

import (
	"context"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
)

// FixedChunker slides a fixed-size window over the text.
// Each window after the first starts chunk_size-chunk_overlap runes
// after its predecessor, so adjacent chunks share exactly the configured
// overlap except at the document end.
type FixedChunker struct {
	opts Options
}

var _ Chunker = (*FixedChunker)(nil)

// NewFixedChunker creates a fixed-size window chunker.
func NewFixedChunker(opts Options) *FixedChunker {
	return &FixedChunker{opts: opts}
}

// Strategy returns StrategyFixed.
func (c *FixedChunker) Strategy() Strategy { return StrategyFixed }

// Split chunks the document into overlapping fixed-size windows.
func (c *FixedChunker) Split(ctx context.Context, doc *document.Document) ([]*Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	windows := hardSplit(span{start: 0, end: len(runes)}, c.opts.ChunkSize, c.opts.ChunkOverlap)

	chunks := make([]*Chunk, 0, len(windows))
	for ordinal, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, newChunk(doc, runes, w.start, w.end, ordinal, c.opts, StrategyFixed))
	}
	return chunks, nil
}
