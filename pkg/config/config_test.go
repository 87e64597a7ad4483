package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, 8*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Engine.ReasoningTokenCost)
	assert.Equal(t, 8, cfg.Batch.ItemConcurrency)
	assert.Equal(t, 100, cfg.Batch.BackpressureDepth)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("EMBEDDING_DIMENSION", "768")
	t.Setenv("REASONING_TOKEN_COST", "1")
	t.Setenv("LLM_TIMEOUT", "4s")
	t.Setenv("EMBEDDING_USE_LOCAL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 1, cfg.Engine.ReasoningTokenCost)
	assert.Equal(t, 4*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Embedding.UseLocal)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSION", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("REASONING_TOKEN_COST", "0")
	_, err := Load()
	assert.Error(t, err)
}
