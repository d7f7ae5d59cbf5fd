package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe-dev/ragpipe/internal/document"
	"github.com/ragpipe-dev/ragpipe/internal/errors"
)

// stubEmbedder returns canned vectors keyed by sentence text.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{1, 0}
		}
		out[i] = v
	}
	return out, nil
}

func TestNewSemanticChunker_RequiresEmbedder(t *testing.T) {
	_, err := NewSemanticChunker(Options{ChunkSize: 100})

	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSemanticChunker_SplitsAtSimilarityDrop(t *testing.T) {
	// Two sentences about one topic, then an unrelated one.
	text := "Cats are small felines. Cats enjoy sleeping. Tax law changed in April."
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Cats are small felines.":      {1, 0},
		"Cats enjoy sleeping.":         {0.95, 0.3},
		"Tax law changed in April.":    {0, 1},
	}}

	c, err := NewSemanticChunker(Options{
		ChunkSize:         200,
		ChunkOverlap:      0,
		SemanticThreshold: 0.75,
		Embedder:          embedder,
	})
	require.NoError(t, err)

	chunks, err := c.Split(context.Background(), &document.Document{ID: "doc-sem", Text: text})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Text, "Cats are small felines.")
	assert.Contains(t, chunks[0].Text, "Cats enjoy sleeping.")
	assert.Equal(t, "Tax law changed in April.", chunks[1].Text)
}

func TestSemanticChunker_KeepsSimilarSentencesTogether(t *testing.T) {
	text := "Alpha beta gamma. Alpha beta delta. Alpha beta epsilon."
	embedder := &stubEmbedder{vectors: map[string][]float32{}} // all default, identical

	c, err := NewSemanticChunker(Options{
		ChunkSize:         200,
		SemanticThreshold: 0.75,
		Embedder:          embedder,
	})
	require.NoError(t, err)

	chunks, err := c.Split(context.Background(), &document.Document{ID: "doc-sim", Text: text})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSemanticChunker_PropagatesEmbedderError(t *testing.T) {
	embedder := &stubEmbedder{err: errors.ProviderError("embedding service down", nil)}
	c, err := NewSemanticChunker(Options{ChunkSize: 100, Embedder: embedder})
	require.NoError(t, err)

	_, err = c.Split(context.Background(), &document.Document{ID: "doc-err", Text: "Some text."})
	require.Error(t, err)
	assert.True(t, errors.IsProviderUnavailable(err))
}

func TestSemanticChunker_EmptyText(t *testing.T) {
	c, err := NewSemanticChunker(Options{ChunkSize: 100, Embedder: &stubEmbedder{}})
	require.NoError(t, err)

	chunks, err := c.Split(context.Background(), &document.Document{ID: "doc-empty", Text: "  \n "})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
