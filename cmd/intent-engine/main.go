// Intent engine worker process - wires the resolution pipeline, seeds
// the catalog, and runs the batch worker pool. Transport surfaces
// (HTTP/WebSocket) are deployed separately and consume these packages.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/commercekit/intent-engine/pkg/batch"
	"github.com/commercekit/intent-engine/pkg/catalog"
	"github.com/commercekit/intent-engine/pkg/config"
	"github.com/commercekit/intent-engine/pkg/database"
	"github.com/commercekit/intent-engine/pkg/embedding"
	"github.com/commercekit/intent-engine/pkg/engine"
	"github.com/commercekit/intent-engine/pkg/extraction"
	"github.com/commercekit/intent-engine/pkg/matching"
	"github.com/commercekit/intent-engine/pkg/ratelimit"
	"github.com/commercekit/intent-engine/pkg/reasoning"
	"github.com/commercekit/intent-engine/pkg/tenancy"
	"github.com/commercekit/intent-engine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	seedCatalog := flag.Bool("seed-catalog", false,
		"Refresh the intent catalog from the seed file before starting")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	log.Printf("Starting %s", version.Full())

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	health, err := database.Health(ctx, dbClient.DB.DB)
	if err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}
	log.Printf("✓ Connected to PostgreSQL database (%s, %d/%d connections open, ping %v)",
		health.Status, health.OpenConnections, health.MaxOpenConns, health.ResponseTime)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = redisClient.Close() }()
	log.Println("✓ Connected to Redis")

	// Embedder: hosted model by default, deterministic local embedder
	// for offline development.
	var embedder embedding.Embedder
	if cfg.Embedding.UseLocal {
		embedder = embedding.NewLocalEmbedder(cfg.Embedding.Dimension)
		log.Println("✓ Using local deterministic embedder")
	} else {
		embedder = embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
		})
	}

	catalogStore := catalog.NewStore(dbClient.DB)
	loader := catalog.NewLoader(catalogStore, embedder)
	if *seedCatalog {
		counts, err := loader.Refresh(ctx, cfg.CatalogSeedPath)
		if err != nil {
			log.Fatalf("Failed to refresh intent catalog: %v", err)
		}
		log.Printf("✓ Catalog refreshed with %d intents", len(counts))
	}

	tenantStore := tenancy.NewCachedStore(tenancy.NewPostgresStore(dbClient.DB), 0)
	limiter := ratelimit.NewLimiter(redisClient, cfg.Engine.DefaultRateLimit, cfg.Engine.DefaultBurstSize)

	decomposer := reasoning.NewAnthropicDecomposer(reasoning.AnthropicConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})

	resolver := engine.NewResolver(
		tenantStore,
		limiter,
		extraction.New(),
		matching.NewMatcher(embedder, catalogStore),
		matching.NewCompoundDetector(),
		decomposer,
		engine.Options{ReasoningTokenCost: cfg.Engine.ReasoningTokenCost},
	)
	log.Println("✓ Resolution pipeline initialized")

	podID := getEnv("POD_ID", "intent-engine-local")
	jobStore := batch.NewStore(dbClient.DB)
	pool := batch.NewWorkerPool(podID, jobStore, resolver, batch.NewWebhookNotifier(nil), batch.PoolConfig{
		WorkerCount:     cfg.Batch.WorkerCount,
		ItemConcurrency: cfg.Batch.ItemConcurrency,
	})
	pool.Start(ctx)
	log.Printf("✓ Batch worker pool started (%d workers)", cfg.Batch.WorkerCount)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	pool.Stop()
	log.Println("Shutdown complete")
}
