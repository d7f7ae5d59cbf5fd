package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int64
	batchCalls int64
	queryCalls int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&c.embedCalls, 1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&c.batchCalls, 1)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&c.queryCalls, 1)
	return c.StaticEmbedder.EmbedQuery(ctx, text)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer c.Close()

	first, err := c.Embed(context.Background(), "repeated text")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "repeated text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.embedCalls)
}

func TestCachedEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer c.Close()

	_, err := c.Embed(context.Background(), "warm")
	require.NoError(t, err)

	batch, err := c.EmbedBatch(context.Background(), []string{"warm", "cold-1", "cold-2"})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, vec := range batch {
		assert.NotNil(t, vec, "index %d", i)
	}

	// The cached "warm" entry must not reach the inner batch call.
	assert.Equal(t, int64(1), inner.batchCalls)
	assert.Equal(t, 3, c.Len())
}

func TestCachedEmbedder_QueryAndDocCachedSeparately(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer c.Close()

	_, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	_, err = c.EmbedQuery(context.Background(), "text")
	require.NoError(t, err)
	_, err = c.EmbedQuery(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.embedCalls)
	assert.Equal(t, int64(1), inner.queryCalls)
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := NewStaticEmbedder()
	c := NewCachedEmbedder(inner, 0) // zero falls back to default size
	defer c.Close()

	assert.Equal(t, inner.ModelName(), c.ModelName())
	assert.Equal(t, inner.Dimensions(), c.Dimensions())
	assert.True(t, c.Available(context.Background()))
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(), 10)
	defer c.Close()

	out, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
