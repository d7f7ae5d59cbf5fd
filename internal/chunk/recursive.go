package chunk

import (
	"context"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
)

// structuralSeparators are tried in order when splitting oversized spans:
// section breaks, paragraph breaks, then single lines. Spans still too
// large after the last separator fall back to sentences, then words.
var structuralSeparators = []string{"\n\n\n", "\n\n", "\n"}

// RecursiveChunker splits on structural boundaries, descending to finer
// separators only where a span exceeds the size limit. The resulting
// atomic spans are packed into chunks with the configured overlap.
type RecursiveChunker struct {
	opts Options
}

var _ Chunker = (*RecursiveChunker)(nil)

// NewRecursiveChunker creates a structure-aware chunker.
func NewRecursiveChunker(opts Options) *RecursiveChunker {
	return &RecursiveChunker{opts: opts}
}

// Strategy returns StrategyRecursive.
func (c *RecursiveChunker) Strategy() Strategy { return StrategyRecursive }

// Split chunks the document along structural boundaries.
func (c *RecursiveChunker) Split(ctx context.Context, doc *document.Document) ([]*Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	atoms := c.splitRecursive(runes, span{start: 0, end: len(runes)}, 0)
	packed := packSpans(atoms, c.opts.ChunkSize, c.opts.ChunkOverlap)

	chunks := make([]*Chunk, 0, len(packed))
	for ordinal, s := range packed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, newChunk(doc, runes, s.start, s.end, ordinal, c.opts, StrategyRecursive))
	}
	return chunks, nil
}

// splitRecursive reduces s to spans of at most ChunkSize runes.
// depth indexes into structuralSeparators; past the end it degrades to
// sentence and then word boundaries.
func (c *RecursiveChunker) splitRecursive(runes []rune, s span, depth int) []span {
	start, end := trimSpan(runes, s.start, s.end)
	if end <= start {
		return nil
	}
	s = span{start: start, end: end}
	if s.len() <= c.opts.ChunkSize {
		return []span{s}
	}

	if depth < len(structuralSeparators) {
		parts := splitOnSeparator(runes, s, structuralSeparators[depth])
		if len(parts) > 1 {
			var out []span
			for _, p := range parts {
				out = append(out, c.splitRecursive(runes, p, depth+1)...)
			}
			return out
		}
		return c.splitRecursive(runes, s, depth+1)
	}

	sentences := splitSentences(runes[s.start:s.end])
	if len(sentences) > 1 {
		var out []span
		for _, sent := range sentences {
			abs := span{start: s.start + sent.start, end: s.start + sent.end}
			if abs.len() > c.opts.ChunkSize {
				out = append(out, c.wordSplit(runes, abs)...)
			} else {
				out = append(out, abs)
			}
		}
		return out
	}

	return c.wordSplit(runes, s)
}

// wordSplit is the last resort for spans with no usable boundaries.
func (c *RecursiveChunker) wordSplit(runes []rune, s span) []span {
	words := splitWords(runes[s.start:s.end])
	if len(words) <= 1 {
		return hardSplit(s, c.opts.ChunkSize, c.opts.ChunkOverlap)
	}

	var out []span
	for _, w := range words {
		abs := span{start: s.start + w.start, end: s.start + w.end}
		if abs.len() > c.opts.ChunkSize {
			out = append(out, hardSplit(abs, c.opts.ChunkSize, c.opts.ChunkOverlap)...)
		} else {
			out = append(out, abs)
		}
	}
	return out
}

// splitOnSeparator cuts s at each occurrence of sep, excluding the
// separator itself from the returned spans.
func splitOnSeparator(runes []rune, s span, sep string) []span {
	sepRunes := []rune(sep)
	var parts []span
	start := s.start

	for i := s.start; i+len(sepRunes) <= s.end; i++ {
		if !runesMatch(runes, i, sepRunes) {
			continue
		}
		if i > start {
			parts = append(parts, span{start: start, end: i})
		}
		i += len(sepRunes) - 1
		start = i + 1
	}
	if start < s.end {
		parts = append(parts, span{start: start, end: s.end})
	}
	return parts
}

func runesMatch(runes []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}
