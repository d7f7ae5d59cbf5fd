package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "normalize me please")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 0.001)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   \n ")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_BatchPreservesOrder(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "index %d", i)
	}
}

func TestStaticEmbedder_QueryMatchesEmbed(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	doc, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	query, err := e.EmbedQuery(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, doc, query)
}

func TestStaticEmbedder_ClosedRejectsCalls(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_Identity(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	assert.Equal(t, "static-hash-256", e.ModelName())
	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestTokenize_SplitsIdentifiers(t *testing.T) {
	tokens := tokenize("getUserByID snake_case_name")
	assert.Contains(t, tokens, "get")
	assert.Contains(t, tokens, "user")
	assert.Contains(t, tokens, "snake")
	assert.Contains(t, tokens, "case")
	assert.Contains(t, tokens, "name")
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams("abcd", 3))
	assert.Nil(t, extractNgrams("ab", 3))
}
