package chunk

import (
	"context"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
)

// SentenceChunker packs whole sentences into chunks up to the size limit.
// Sentences never straddle a chunk boundary unless a single sentence
// exceeds the limit, in which case it is hard-split.
type SentenceChunker struct {
	opts Options
}

var _ Chunker = (*SentenceChunker)(nil)

// NewSentenceChunker creates a sentence-boundary chunker.
func NewSentenceChunker(opts Options) *SentenceChunker {
	return &SentenceChunker{opts: opts}
}

// Strategy returns StrategySentence.
func (c *SentenceChunker) Strategy() Strategy { return StrategySentence }

// Split chunks the document at sentence boundaries.
func (c *SentenceChunker) Split(ctx context.Context, doc *document.Document) ([]*Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	sentences := splitSentences(runes)
	packed := packSpans(sentences, c.opts.ChunkSize, c.opts.ChunkOverlap)

	chunks := make([]*Chunk, 0, len(packed))
	for ordinal, s := range packed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, newChunk(doc, runes, s.start, s.end, ordinal, c.opts, StrategySentence))
	}
	return chunks, nil
}
