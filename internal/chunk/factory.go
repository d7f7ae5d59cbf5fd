package chunk

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// New creates a chunker for the configured strategy.
// An unknown strategy name is a configuration error, raised before any
// chunk is produced.
func New(opts Options) (Chunker, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch opts.Strategy {
	case StrategySentence:
		return NewSentenceChunker(opts), nil
	case StrategyFixed:
		return NewFixedChunker(opts), nil
	case StrategyRecursive:
		return NewRecursiveChunker(opts), nil
	case StrategySemantic:
		return NewSemanticChunker(opts)
	case StrategyAuto:
		return NewAutoChunker(opts), nil
	default:
		return nil, errors.New(errors.ErrCodeUnknownStrategy,
			fmt.Sprintf("unknown chunking strategy: %q", opts.Strategy), nil).
			WithSuggestion(fmt.Sprintf("use one of: %s", strategyNames()))
	}
}

func strategyNames() string {
	names := make([]string, 0, len(Strategies()))
	for _, s := range Strategies() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// AutoChunker picks a strategy per document: structured text (multiple
// paragraph breaks) goes to the recursive chunker, prose to the sentence
// chunker.
type AutoChunker struct {
	opts      Options
	sentence  *SentenceChunker
	recursive *RecursiveChunker
}

var _ Chunker = (*AutoChunker)(nil)

// NewAutoChunker creates an adaptive chunker.
func NewAutoChunker(opts Options) *AutoChunker {
	return &AutoChunker{
		opts:      opts,
		sentence:  NewSentenceChunker(opts),
		recursive: NewRecursiveChunker(opts),
	}
}

// Strategy returns StrategyAuto.
func (c *AutoChunker) Strategy() Strategy { return StrategyAuto }

// Split chunks the document with the detected strategy.
func (c *AutoChunker) Split(ctx context.Context, doc *document.Document) ([]*Chunk, error) {
	switch Detect(doc.Text) {
	case StrategyRecursive:
		return c.recursive.Split(ctx, doc)
	default:
		return c.sentence.Split(ctx, doc)
	}
}

// Detect inspects text structure and suggests a strategy.
// Text with two or more paragraph breaks is treated as structured.
func Detect(text string) Strategy {
	if strings.Count(text, "\n\n") >= 2 {
		return StrategyRecursive
	}
	return StrategySentence
}
