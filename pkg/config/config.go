// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the umbrella configuration for the engine process.
type Config struct {
	Redis     RedisConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Engine    EngineConfig
	Batch     BatchConfig

	// CatalogSeedPath points at the intent example JSON seed file.
	CatalogSeedPath string
}

// RedisConfig configures the rate-limit store.
type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int `validate:"gte=0"`
}

// EmbeddingConfig configures the hosted embedding model.
type EmbeddingConfig struct {
	APIKey    string
	Model     string `validate:"required"`
	BaseURL   string
	Dimension int `validate:"gt=0"`
	// UseLocal switches to the deterministic in-process embedder for
	// offline development.
	UseLocal bool
}

// LLMConfig configures the decomposition model.
type LLMConfig struct {
	APIKey  string
	Model   string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
}

// EngineConfig tunes the resolution pipeline.
type EngineConfig struct {
	// ReasoningTokenCost is the total rate-limit cost of a
	// reasoning-path resolve (3 by default; 1 is a supported setting).
	ReasoningTokenCost int `validate:"gte=1"`
	DefaultRateLimit   int `validate:"gt=0"`
	DefaultBurstSize   int `validate:"gt=0"`
}

// BatchConfig tunes the batch worker pool.
type BatchConfig struct {
	WorkerCount       int `validate:"gt=0"`
	ItemConcurrency   int `validate:"gt=0"`
	BackpressureDepth int `validate:"gt=0"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	dimension, err := intEnv("EMBEDDING_DIMENSION", 384)
	if err != nil {
		return nil, err
	}
	llmTimeout, err := durationEnv("LLM_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, err
	}
	tokenCost, err := intEnv("REASONING_TOKEN_COST", 3)
	if err != nil {
		return nil, err
	}
	defaultRate, err := intEnv("RATE_LIMIT_DEFAULT_RPM", 60)
	if err != nil {
		return nil, err
	}
	defaultBurst, err := intEnv("RATE_LIMIT_DEFAULT_BURST", 15)
	if err != nil {
		return nil, err
	}
	workerCount, err := intEnv("BATCH_WORKER_COUNT", 2)
	if err != nil {
		return nil, err
	}
	itemConcurrency, err := intEnv("BATCH_ITEM_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	backpressure, err := intEnv("BATCH_BACKPRESSURE_DEPTH", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Embedding: EmbeddingConfig{
			APIKey:    os.Getenv("EMBEDDING_API_KEY"),
			Model:     getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:   os.Getenv("EMBEDDING_BASE_URL"),
			Dimension: dimension,
			UseLocal:  os.Getenv("EMBEDDING_USE_LOCAL") == "true",
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Model:   getEnvOrDefault("LLM_MODEL", "claude-sonnet-4-5"),
			Timeout: llmTimeout,
		},
		Engine: EngineConfig{
			ReasoningTokenCost: tokenCost,
			DefaultRateLimit:   defaultRate,
			DefaultBurstSize:   defaultBurst,
		},
		Batch: BatchConfig{
			WorkerCount:       workerCount,
			ItemConcurrency:   itemConcurrency,
			BackpressureDepth: backpressure,
		},
		CatalogSeedPath: getEnvOrDefault("CATALOG_SEED_PATH", "./deploy/config/intent_examples.json"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}
