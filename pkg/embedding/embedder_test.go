package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterminism(t *testing.T) {
	e := NewLocalEmbedder(0)
	ctx := context.Background()

	first, err := e.Embed(ctx, "where is my order")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "where is my order")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, DefaultDimension)
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(128)
	vec, err := e.Embed(context.Background(), "I want to return my damaged vase")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-3)
}

func TestSimilaritySelfIsOne(t *testing.T) {
	e := NewLocalEmbedder(0)
	vec, err := e.Embed(context.Background(), "cancel my order please")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Similarity(vec, vec), 1e-3)
}

func TestSimilarityOrdering(t *testing.T) {
	e := NewLocalEmbedder(0)
	ctx := context.Background()

	query, err := e.Embed(ctx, "where is my order")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "where is my order please")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "the quick brown fox jumps over fences")
	require.NoError(t, err)

	assert.Greater(t, Similarity(query, near), Similarity(query, far))
}

func TestEmbedBatchOrder(t *testing.T) {
	e := NewLocalEmbedder(0)
	ctx := context.Background()
	texts := []string{"track my package", "start a return", "item arrived broken"}

	vecs, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vecs[i], "batch vector %d should match single embedding", i)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := make([]float32, 8)
	out := Normalize(vec)
	assert.Equal(t, vec, out)
}
